/*
 * MIT License
 *
 * Copyright (c) 2026 Nguyen Thanh Phuong
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package commands

import (
	"fmt"

	"github.com/phuonguno98/procstatd/internal/config"
	"github.com/phuonguno98/procstatd/internal/store"
	"github.com/spf13/cobra"
)

var initdbCmd = &cobra.Command{
	Use:   "initdb [path]",
	Short: "Create an empty counter database template",
	Long: `Create an empty SQLite database with the current schema. The daemon copies
this template when its own database does not exist yet. An existing file is
never overwritten.

Examples:
  # Create the default template
  procstatd initdb

  # Create it somewhere else
  procstatd initdb /usr/share/procstatd/userstats.sqlite`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInitDB,
}

func init() {
	rootCmd.AddCommand(initdbCmd)
}

func runInitDB(cmd *cobra.Command, args []string) error {
	path := config.DefaultDBTemplate
	if len(args) == 1 {
		path = args[0]
	} else if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		path = cfg.DBTemplate
	}

	if err := store.CreateTemplate(path); err != nil {
		return err
	}
	fmt.Printf("Created database template %s\n", path)
	return nil
}

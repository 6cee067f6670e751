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

package sampler

import (
	"fmt"
	"os/user"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultUserCacheSize bounds the uid -> name cache.
const DefaultUserCacheSize = 1024

// UserResolver maps uids to account names. Lookups go through the
// system user database once per uid; unknown uids resolve to "[uid]".
type UserResolver struct {
	cache  *lru.Cache[uint32, string]
	lookup func(uid string) (*user.User, error)
}

// NewUserResolver creates a resolver caching up to size entries.
func NewUserResolver(size int) (*UserResolver, error) {
	return newUserResolver(size, user.LookupId)
}

func newUserResolver(size int, lookup func(string) (*user.User, error)) (*UserResolver, error) {
	if size <= 0 {
		size = DefaultUserCacheSize
	}
	cache, err := lru.New[uint32, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create user cache: %w", err)
	}
	return &UserResolver{cache: cache, lookup: lookup}, nil
}

// Name returns the account name for uid.
func (r *UserResolver) Name(uid uint32) string {
	if name, ok := r.cache.Get(uid); ok {
		return name
	}

	id := strconv.FormatUint(uint64(uid), 10)
	name := "[" + id + "]"
	if u, err := r.lookup(id); err == nil && u.Username != "" {
		name = u.Username
	}

	r.cache.Add(uid, name)
	return name
}

// Len returns the number of cached entries.
func (r *UserResolver) Len() int {
	return r.cache.Len()
}

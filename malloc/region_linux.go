//go:build linux

/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package malloc

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// MmapRegion is a Region over anonymous memory reserved with mmap.
// The whole limit is reserved up front with MAP_NORESERVE, so pages are only
// committed when the heap first touches them, and growth never moves memory.
type MmapRegion struct {
	mem []byte
	brk int
}

// NewMmapRegion reserves limit bytes, rounded up to the page size.
func NewMmapRegion(limit int) (*MmapRegion, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("mmap region limit must be positive, got %d", limit)
	}
	limit = alignUp(limit, unix.Getpagesize())
	mem, err := unix.Mmap(-1, 0, limit,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_NORESERVE)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", limit, err)
	}
	return &MmapRegion{mem: mem}, nil
}

// Sbrk implements Region.
func (r *MmapRegion) Sbrk(n int) (int, error) {
	if r.mem == nil {
		return 0, ErrRegionClosed
	}
	old := r.brk
	if n < 0 {
		return old, fmt.Errorf("sbrk: negative increment %d", n)
	}
	if n > len(r.mem)-old {
		return old, fmt.Errorf("%w: need %d bytes, %d left", ErrRegionExhausted, n, len(r.mem)-old)
	}
	r.brk += n
	return old, nil
}

// Bytes implements Region.
func (r *MmapRegion) Bytes() []byte {
	return r.mem[:r.brk:r.brk]
}

// Limit returns the maximum size the region can grow to.
func (r *MmapRegion) Limit() int {
	return len(r.mem)
}

// Close implements Region and unmaps the memory.
func (r *MmapRegion) Close() error {
	if r.mem == nil {
		return nil
	}
	err := unix.Munmap(r.mem)
	r.mem, r.brk = nil, 0
	return err
}

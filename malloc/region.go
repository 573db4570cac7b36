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
	"unsafe"

	"github.com/bytedance/gopkg/lang/dirtmake"
)

// Region is the heap-growth primitive a Heap draws memory from.
//
// A Region is a contiguous byte range whose start is aligned to Alignment and
// whose end (the break) only moves up. Growing it must never move memory that
// was handed out before.
type Region interface {
	// Sbrk extends the break by n bytes and returns the previous break.
	// On failure it returns an error and leaves the break unchanged.
	Sbrk(n int) (int, error)

	// Bytes returns the memory from the start of the region to the break.
	Bytes() []byte

	// Close releases the region's memory.
	Close() error
}

// SliceRegion is a Region over a fixed-capacity Go byte slice.
type SliceRegion struct {
	buf    []byte // len is the break, cap is the limit
	closed bool
}

// NewSliceRegion creates a SliceRegion that can grow up to limit bytes.
// The memory is not zeroed.
func NewSliceRegion(limit int) *SliceRegion {
	if limit < 0 {
		limit = 0
	}
	r := NewSliceRegionFrom(dirtmake.Bytes(0, limit+Alignment-1))
	if cap(r.buf) > limit {
		r.buf = r.buf[:0:limit]
	}
	return r
}

// NewSliceRegionFrom creates a SliceRegion over the capacity of buf.
// Leading bytes are skipped so the region starts on an Alignment boundary.
func NewSliceRegionFrom(buf []byte) *SliceRegion {
	buf = buf[:cap(buf)]
	if len(buf) == 0 {
		return &SliceRegion{}
	}
	start := uintptr(unsafe.Pointer(&buf[0]))
	skip := (Alignment - int(start%Alignment)) % Alignment
	if skip > len(buf) {
		skip = len(buf)
	}
	buf = buf[skip:]
	return &SliceRegion{buf: buf[:0:len(buf)]}
}

// Sbrk implements Region.
func (r *SliceRegion) Sbrk(n int) (int, error) {
	if r.closed {
		return 0, ErrRegionClosed
	}
	old := len(r.buf)
	if n < 0 {
		return old, fmt.Errorf("sbrk: negative increment %d", n)
	}
	if n > cap(r.buf)-old {
		return old, fmt.Errorf("%w: need %d bytes, %d left", ErrRegionExhausted, n, cap(r.buf)-old)
	}
	r.buf = r.buf[:old+n]
	return old, nil
}

// Bytes implements Region.
func (r *SliceRegion) Bytes() []byte {
	return r.buf
}

// Limit returns the maximum size the region can grow to.
func (r *SliceRegion) Limit() int {
	return cap(r.buf)
}

// Close implements Region. The memory is left to the garbage collector.
func (r *SliceRegion) Close() error {
	r.closed = true
	r.buf = nil
	return nil
}

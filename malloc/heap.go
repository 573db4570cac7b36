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
)

// maxRequest bounds a single request so size arithmetic cannot overflow.
const maxRequest = 1 << 48

// Heap is a segregated-fit allocator over one growable Region.
//
// Free blocks are kept in numBuckets LIFO lists keyed by size class. Every
// block carries identical header and footer boundary tags, which lets Free
// merge a block with both neighbours in O(1). The heap grows at its high end
// by at least ChunkSize bytes when no free block fits a request.
//
// A Heap is not safe for concurrent use; see SyncHeap.
type Heap struct {
	region Region

	// mem is the region's memory up to the current break.
	mem []byte

	// ready is set once the bucket table and sentinels are in place.
	ready bool

	chunkSize int
	debug     bool

	// err is the last out-of-memory error seen by Malloc or Realloc.
	err error

	inUseBytes  int
	inUseBlocks int
	stats       Stats
}

// New creates a Heap from o, or from DefaultOption if o is nil.
// The heap is bootstrapped lazily by the first allocation, or explicitly by Init.
func New(o *Option) (*Heap, error) {
	if o == nil {
		o = DefaultOption()
	}
	chunk := o.ChunkSize
	if chunk == 0 {
		chunk = DefaultChunkSize
	}
	if chunk < 0 || chunk%Alignment != 0 {
		return nil, fmt.Errorf("chunk size must be a positive multiple of %d, got %d", Alignment, chunk)
	}
	region := o.Region
	if region == nil {
		region = NewSliceRegion(DefaultHeapLimit)
	}
	if n := len(region.Bytes()); n != 0 {
		return nil, fmt.Errorf("region must be empty, break is at %d", n)
	}
	return &Heap{
		region:    region,
		chunkSize: chunk,
		debug:     o.Debug,
	}, nil
}

// Init reserves the bucket table and sentinel blocks and seeds the heap with
// one chunk of free space. It is safe to call more than once.
//
// If the initial chunk cannot be obtained the heap is still usable and the
// error is returned; later allocations retry the growth.
func (h *Heap) Init() error {
	if h.ready {
		return nil
	}
	old, err := h.region.Sbrk(bootstrapSize)
	if err != nil {
		return fmt.Errorf("%w: bootstrap: %w", ErrOutOfMemory, err)
	}
	h.mem = h.region.Bytes()
	if old != 0 {
		return fmt.Errorf("bootstrap: region break was %d, want 0", old)
	}
	if start := uintptr(unsafe.Pointer(unsafe.SliceData(h.mem))); start%Alignment != 0 {
		return fmt.Errorf("bootstrap: region start %#x is not %d-byte aligned", start, Alignment)
	}

	for i := 0; i < numBuckets; i++ {
		h.setBucketHead(i, 0)
	}
	// Prologue: an allocated block with no payload at numBuckets*wordSize.
	prologue := (numBuckets + 1) * wordSize
	h.setTags(prologue, prologueSize, true)
	// Epilogue: a zero-size allocated header just below the break.
	h.setHeader(bootstrapSize, pack(0, true))
	h.ready = true

	if _, err := h.extend(h.chunkSize); err != nil {
		return err
	}
	return nil
}

// Malloc returns a payload of at least size bytes aligned to Alignment,
// or Nil if size <= 0 or the heap cannot grow.
func (h *Heap) Malloc(size int) Ptr {
	p, err := h.malloc(size)
	if err != nil {
		h.err = err
	}
	return p
}

func (h *Heap) malloc(size int) (Ptr, error) {
	if size <= 0 {
		return Nil, nil
	}
	if size > maxRequest {
		return Nil, fmt.Errorf("%w: request of %d bytes", ErrOutOfMemory, size)
	}
	if err := h.Init(); err != nil && !h.ready {
		return Nil, err
	}
	h.stats.AllocCalls++

	asize := adjustSize(size)
	if bp := h.findFit(asize); bp != 0 {
		h.place(bp, asize)
		return Ptr(bp), nil
	}

	grow := asize
	if grow < h.chunkSize {
		grow = h.chunkSize
	}
	bp, err := h.extend(grow)
	if err != nil {
		return Nil, err
	}
	h.place(bp, asize)
	return Ptr(bp), nil
}

// findFit returns the first free block of at least asize bytes, scanning
// buckets upward from asize's own class, or 0 if there is none.
func (h *Heap) findFit(asize int) int {
	for i := sizeClass(asize); i < numBuckets; i++ {
		for bp := h.bucketHead(i); bp != 0; bp = h.succ(bp) {
			if h.header(bp).size() >= asize {
				return bp
			}
		}
	}
	return 0
}

// place allocates asize bytes at the start of the free block bp, splitting
// off the remainder when it can hold a minimum block.
func (h *Heap) place(bp, asize int) {
	h.remove(bp)
	size := h.header(bp).size()
	if size-asize >= MinBlockSize {
		h.setTags(bp, asize, true)
		rest := bp + asize
		h.setTags(rest, size-asize, false)
		h.insert(rest)
		h.stats.SplitCount++
		size = asize
	} else {
		h.setTags(bp, size, true)
	}
	h.inUseBytes += size
	h.inUseBlocks++
}

// Free releases p. Freeing Nil does nothing.
// Panics if p is not a live allocation of this heap, which also catches
// double frees and writes past the end of a payload that reached the footer.
func (h *Heap) Free(p Ptr) {
	if p == Nil {
		return
	}
	bp := h.mustValidate(p)
	size := h.header(bp).size()
	h.setTags(bp, size, false)
	h.insert(bp)
	h.coalesce(bp)
	h.stats.FreeCalls++
	h.inUseBytes -= size
	h.inUseBlocks--
}

// Realloc returns a payload of at least size bytes holding the first
// min(UsableSize(p), size) bytes of p, and frees p. It always moves the data.
// If p is Nil it behaves like Malloc. If the new payload cannot be
// allocated (including size <= 0) it returns Nil and p stays valid.
func (h *Heap) Realloc(p Ptr, size int) Ptr {
	if p == Nil {
		return h.Malloc(size)
	}
	bp := h.mustValidate(p)
	h.stats.ReallocCalls++

	q := h.Malloc(size)
	if q == Nil {
		return Nil
	}
	n := h.usable(bp)
	if size < n {
		n = size
	}
	copy(h.mem[int(q):int(q)+n], h.mem[bp:bp+n])
	h.Free(p)
	return q
}

// UsableSize returns the number of payload bytes available at p.
// Panics if p is not a live allocation.
func (h *Heap) UsableSize(p Ptr) int {
	return h.usable(h.mustValidate(p))
}

func (h *Heap) usable(bp int) int {
	return h.header(bp).size() - overhead
}

// Bytes returns the whole usable payload of p, or nil for Nil.
// The slice stays valid until p is freed.
func (h *Heap) Bytes(p Ptr) []byte {
	if p == Nil {
		return nil
	}
	bp := h.mustValidate(p)
	end := bp + h.usable(bp)
	return h.mem[bp:end:end]
}

// Alloc allocates size bytes and returns them as a slice with len size and
// cap equal to the usable size. It returns nil when Malloc would return Nil.
func (h *Heap) Alloc(size int) []byte {
	p := h.Malloc(size)
	if p == Nil {
		return nil
	}
	bp := int(p)
	return h.mem[bp : bp+size : bp+h.usable(bp)]
}

// FreeSlice frees a slice returned by Alloc, Bytes or ReallocSlice.
// The slice must start at the payload; do not reslice b[n:] before freeing.
func (h *Heap) FreeSlice(b []byte) {
	if cap(b) == 0 {
		return
	}
	p := h.PtrOf(b)
	if p == Nil {
		panic("malloc: block not in heap")
	}
	h.Free(p)
}

// ReallocSlice is Realloc for slices. The result has len size.
// On failure it returns nil and b stays valid.
func (h *Heap) ReallocSlice(b []byte, size int) []byte {
	if cap(b) == 0 {
		return h.Alloc(size)
	}
	p := h.PtrOf(b)
	if p == Nil {
		panic("malloc: block not in heap")
	}
	q := h.Realloc(p, size)
	if q == Nil {
		return nil
	}
	bq := int(q)
	return h.mem[bq : bq+size : bq+h.usable(bq)]
}

// PtrOf returns the Ptr whose payload starts where b starts,
// or Nil if b does not point into this heap.
func (h *Heap) PtrOf(b []byte) Ptr {
	if cap(b) == 0 || len(h.mem) == 0 {
		return Nil
	}
	start := uintptr(unsafe.Pointer(unsafe.SliceData(h.mem)))
	data := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	if data < start+bootstrapSize || data >= start+uintptr(len(h.mem)) {
		return Nil
	}
	return Ptr(data - start)
}

// IsValidPtr reports whether p is a live allocation of this heap.
// Use it to pre-validate untrusted input before Free.
func (h *Heap) IsValidPtr(p Ptr) bool {
	return h.validate(p) == ""
}

// validate returns why p is not a live allocation, or "" if it is.
func (h *Heap) validate(p Ptr) string {
	if !h.ready {
		return "heap not initialized"
	}
	bp := int(p)
	if bp < bootstrapSize || bp >= len(h.mem) {
		return "block not in heap"
	}
	if bp%Alignment != 0 {
		return "misaligned block"
	}
	hdr := h.header(bp)
	if !hdr.allocated() {
		return "double free or invalid block"
	}
	size := hdr.size()
	if size < MinBlockSize || bp+size > len(h.mem) {
		return "corrupted size"
	}
	if ftr := tag(h.word(h.footerOff(bp, size))); ftr != hdr {
		return "corrupted footer"
	}
	return ""
}

func (h *Heap) mustValidate(p Ptr) int {
	if reason := h.validate(p); reason != "" {
		panic("malloc: " + reason)
	}
	return int(p)
}

// Err returns the last out-of-memory error seen by Malloc or Realloc.
func (h *Heap) Err() error {
	return h.err
}

// Close releases the region. The heap must not be used afterwards.
func (h *Heap) Close() error {
	h.ready = false
	h.mem = nil
	return h.region.Close()
}

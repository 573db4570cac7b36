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

import "fmt"

// Stats holds heap statistics.
type Stats struct {
	HeapSize      int   // Bytes between the region start and the break
	GrowCalls     int   // Growth attempts, including failed ones
	GrowBytes     int64 // Bytes added by successful growth
	AllocCalls    int   // Malloc calls with a positive size
	FreeCalls     int   // Free calls with a non-Nil pointer
	ReallocCalls  int   // Realloc calls with a non-Nil pointer
	SplitCount    int   // Free blocks split by placement
	CoalesceCount int   // Merges of adjacent free blocks
	InUseBytes    int   // Bytes in allocated blocks, boundary tags included
	InUseBlocks   int   // Allocated blocks
	FreeBytes     int   // Bytes in free blocks
	FreeBlocks    int   // Free blocks
}

// Stats returns a snapshot of the heap statistics.
func (h *Heap) Stats() Stats {
	s := h.stats
	s.HeapSize = len(h.mem)
	s.InUseBytes = h.inUseBytes
	s.InUseBlocks = h.inUseBlocks
	if h.ready {
		for i := 0; i < numBuckets; i++ {
			for bp := h.bucketHead(i); bp != 0; bp = h.succ(bp) {
				s.FreeBlocks++
				s.FreeBytes += h.header(bp).size()
			}
		}
	}
	return s
}

// BlockInfo describes one block visited by Walk.
type BlockInfo struct {
	Ptr       Ptr
	Size      int // Block size including boundary tags
	Allocated bool
}

// Walk calls fn for every block between the prologue and the epilogue in
// address order, until fn returns false.
func (h *Heap) Walk(fn func(BlockInfo) bool) {
	if !h.ready {
		return
	}
	for bp := bootstrapSize; ; {
		t := h.header(bp)
		if t.size() == 0 {
			return
		}
		if !fn(BlockInfo{Ptr: Ptr(bp), Size: t.size(), Allocated: t.allocated()}) {
			return
		}
		bp += t.size()
	}
}

// Check verifies the heap invariants: sentinel blocks are intact, every
// block is aligned with agreeing boundary tags, no two free blocks are
// adjacent, and the free lists hold exactly the free blocks, each in its
// own size class, with consistent links.
func (h *Heap) Check() error {
	if !h.ready {
		return nil
	}
	n := len(h.mem)

	prologue := (numBuckets + 1) * wordSize
	if h.header(prologue) != pack(prologueSize, true) || h.footer(prologue) != pack(prologueSize, true) {
		return fmt.Errorf("%w: bad prologue", ErrCorrupted)
	}

	// Collect the free lists first.
	listed := make(map[int]int)
	for i := 0; i < numBuckets; i++ {
		want := headLink(i)
		for bp := h.bucketHead(i); bp != 0; bp = h.succ(bp) {
			if bp < bootstrapSize || bp >= n || bp%Alignment != 0 {
				return fmt.Errorf("%w: bucket %d links to bad offset %d", ErrCorrupted, i, bp)
			}
			if _, ok := listed[bp]; ok {
				return fmt.Errorf("%w: block %d linked twice", ErrCorrupted, bp)
			}
			listed[bp] = i
			t := h.header(bp)
			if t.allocated() {
				return fmt.Errorf("%w: allocated block %d in bucket %d", ErrCorrupted, bp, i)
			}
			if c := sizeClass(t.size()); c != i {
				return fmt.Errorf("%w: block %d of size %d in bucket %d, want %d", ErrCorrupted, bp, t.size(), i, c)
			}
			if p := h.pred(bp); p != want {
				return fmt.Errorf("%w: block %d pred %#x, want %#x", ErrCorrupted, bp, uint64(p), uint64(want))
			}
			want = blockLink(bp)
		}
	}

	free := 0
	prevFree := false
	bp := bootstrapSize
	for {
		if bp > n {
			return fmt.Errorf("%w: block %d past the break %d", ErrCorrupted, bp, n)
		}
		t := h.header(bp)
		if t.size() == 0 {
			break
		}
		size := t.size()
		if bp%Alignment != 0 {
			return fmt.Errorf("%w: block %d misaligned", ErrCorrupted, bp)
		}
		if size < MinBlockSize || bp+size > n {
			return fmt.Errorf("%w: block %d has bad size %d", ErrCorrupted, bp, size)
		}
		if f := h.footer(bp); f != t {
			return fmt.Errorf("%w: block %d header %#x footer %#x", ErrCorrupted, bp, uint64(t), uint64(f))
		}
		if !t.allocated() {
			if prevFree {
				return fmt.Errorf("%w: free block %d follows a free block", ErrCorrupted, bp)
			}
			if _, ok := listed[bp]; !ok {
				return fmt.Errorf("%w: free block %d not in any bucket", ErrCorrupted, bp)
			}
			free++
		}
		prevFree = !t.allocated()
		bp += size
	}

	if bp != n {
		return fmt.Errorf("%w: epilogue at %d, break at %d", ErrCorrupted, bp-wordSize, n)
	}
	if !h.header(bp).allocated() {
		return fmt.Errorf("%w: epilogue not allocated", ErrCorrupted)
	}
	if free != len(listed) {
		return fmt.Errorf("%w: %d free blocks in heap, %d in buckets", ErrCorrupted, free, len(listed))
	}
	return nil
}

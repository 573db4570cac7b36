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
// Package mempool provides Malloc/Free/Realloc for []byte over a process-wide
// segregated-fit heap. All calls are serialized by one mutex.
package mempool

import (
	"log"
	"sync"

	"github.com/cloudwego/segheap/malloc"
)

const (
	// defaultMmapLimit is the address space reserved for the default heap
	// where mmap is available. Pages are committed on first use.
	defaultMmapLimit = 1 << 30 // 1GB

	// defaultSliceLimit is the default heap size elsewhere.
	defaultSliceLimit = malloc.DefaultHeapLimit
)

var (
	defaultOnce sync.Once
	defaultHeap *malloc.SyncHeap
)

func heap() *malloc.SyncHeap {
	defaultOnce.Do(func() {
		defaultHeap = newDefaultHeap()
	})
	return defaultHeap
}

func newDefaultHeap() *malloc.SyncHeap {
	o := malloc.DefaultOption()
	if r, err := malloc.NewMmapRegion(defaultMmapLimit); err == nil {
		o.Region = r
	} else {
		log.Printf("MEMPOOL: falling back to a %d-byte slice region: %v", defaultSliceLimit, err)
		o.Region = malloc.NewSliceRegion(defaultSliceLimit)
	}
	h, err := malloc.NewSyncHeap(o)
	if err != nil {
		panic(err)
	}
	return h
}

// Malloc returns a buf of len size from the default heap.
// Tips for usage:
// * buf returned by Malloc is not initialized with zeros.
// * call Free when buf is no longer used, DO NOT REUSE buf after calling Free.
// * use buf = buf[:mempool.Cap(buf)] to make use of the whole payload.
// * appending within cap(buf) is safe; beyond it, use Append or Realloc.
//
// Malloc(0) returns an empty non-nil slice that does not come from the heap.
// Malloc returns nil if the default heap is out of memory.
func Malloc(size int) []byte {
	if size == 0 {
		return []byte{}
	}
	return heap().Alloc(size)
}

// Free should be called when a buf is no longer used.
// Bufs that do not come from Malloc are ignored. Freeing the same buf twice panics.
func Free(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	h := heap()
	if h.PtrOf(buf) == malloc.Nil {
		return
	}
	h.FreeSlice(buf)
}

// Realloc returns a buf of len size holding the first min(len(buf), size)
// bytes of buf, and frees buf. If buf is not from Malloc, it is copied into
// a new buf and left alone. On failure it returns nil and buf stays valid.
func Realloc(buf []byte, size int) []byte {
	h := heap()
	if cap(buf) == 0 || h.PtrOf(buf) == malloc.Nil {
		ret := Malloc(size)
		if ret != nil {
			copy(ret, buf)
		}
		return ret
	}
	return h.ReallocSlice(buf, size)
}

// Cap returns the usable size of a buf returned by Malloc.
// It panics if buf does not come from Malloc or was resliced from the front.
func Cap(buf []byte) int {
	h := heap()
	p := h.PtrOf(buf)
	if p == malloc.Nil {
		panic("buf not malloc by this package")
	}
	return h.UsableSize(p)
}

// Append appends bytes to the given []byte.
// It frees a and creates a new one if needed.
// Please make sure you're calling the func like b = mempool.Append(b, data...)
func Append(a []byte, b ...byte) []byte {
	if cap(a)-len(a) >= len(b) {
		return append(a, b...)
	}
	return appendSlow(a, b)
}

func appendSlow(a, b []byte) []byte {
	n := len(a)
	ret := Realloc(a, n+len(b))
	if ret == nil {
		panic("mempool: out of memory")
	}
	copy(ret[n:], b)
	return ret
}

// AppendStr ... same as Append for string.
// See comment of Append for details.
func AppendStr(a []byte, b string) []byte {
	if cap(a)-len(a) >= len(b) {
		return append(a, b...)
	}
	return appendStrSlow(a, b)
}

func appendStrSlow(a []byte, b string) []byte {
	n := len(a)
	ret := Realloc(a, n+len(b))
	if ret == nil {
		panic("mempool: out of memory")
	}
	copy(ret[n:], b)
	return ret
}

// Stats returns the statistics of the default heap.
func Stats() malloc.Stats {
	return heap().Stats()
}

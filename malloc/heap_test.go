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
	"bytes"
	"log"
	"math/rand"
	"os"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opt     *Option
		wantErr bool
	}{
		{"nil_option", nil, false},
		{"default", DefaultOption(), false},
		{"zero_chunk_uses_default", &Option{}, false},
		{"custom_chunk", &Option{ChunkSize: 64 * 1024}, false},
		{"negative_chunk", &Option{ChunkSize: -16}, true},
		{"unaligned_chunk", &Option{ChunkSize: 1000}, true},
		{"used_region", &Option{Region: usedRegion(t)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opt)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInit(t *testing.T) {
	r := newCountingRegion(1 << 20)
	h, err := New(&Option{Region: r})
	require.NoError(t, err)

	require.NoError(t, h.Init())
	require.NoError(t, h.Init()) // idempotent
	assert.Equal(t, []int{bootstrapSize, DefaultChunkSize}, r.calls)

	s := h.Stats()
	assert.Equal(t, bootstrapSize+DefaultChunkSize, s.HeapSize)
	assert.Equal(t, 1, s.GrowCalls)
	assert.Equal(t, 1, s.FreeBlocks)
	assert.Equal(t, DefaultChunkSize, s.FreeBytes)
	require.NoError(t, h.Check())
}

func TestInitOutOfMemory(t *testing.T) {
	h, err := New(&Option{Region: NewSliceRegion(100)})
	require.NoError(t, err)
	assert.ErrorIs(t, h.Init(), ErrOutOfMemory)
	assert.Equal(t, Nil, h.Malloc(1))

	// The bootstrap fits but the first chunk does not.
	h, err = New(&Option{Region: NewSliceRegion(bootstrapSize + 1024)})
	require.NoError(t, err)
	assert.ErrorIs(t, h.Init(), ErrOutOfMemory)
	require.NoError(t, h.Check())
	p := h.Malloc(100)
	assert.Equal(t, Nil, p)
	assert.ErrorIs(t, h.Err(), ErrOutOfMemory)
}

func TestMallocLazyInit(t *testing.T) {
	h := newUninitHeap(t)
	p := h.Malloc(10)
	require.NotEqual(t, Nil, p)
	assert.Equal(t, Ptr(bootstrapSize), p)
	require.NoError(t, h.Check())
}

func TestMallocZero(t *testing.T) {
	h := newUninitHeap(t)
	assert.Equal(t, Nil, h.Malloc(0))
	assert.Equal(t, Nil, h.Malloc(-1))
	assert.Equal(t, Stats{}, h.Stats())

	require.NoError(t, h.Init())
	before := h.Stats()
	assert.Equal(t, Nil, h.Malloc(0))
	assert.Nil(t, h.Alloc(0))
	assert.Equal(t, before, h.Stats())
	assert.NoError(t, h.Err())
}

func TestMallocAlignment(t *testing.T) {
	h := newTestHeap(t)
	live := map[Ptr]int{}
	for n := 1; n <= 300; n++ {
		p := h.Malloc(n)
		require.NotEqual(t, Nil, p, "size=%d", n)
		assert.Zero(t, int(p)%Alignment, "size=%d", n)
		b := h.Bytes(p)
		assert.Zero(t, uintptr(unsafe.Pointer(&b[0]))%Alignment, "size=%d", n)
		require.GreaterOrEqual(t, len(b), n)
		fill(b[:n], byte(n))
		live[p] = n
	}
	require.NoError(t, h.Check())
	for p, n := range live {
		assertFilled(t, h.Bytes(p)[:n], byte(n))
	}
}

func TestMallocNoOverlap(t *testing.T) {
	h := newTestHeap(t)
	var blocks [][]byte
	for _, n := range []int{1, 16, 17, 100, 1000, 4000, 5000, 64, 33} {
		b := h.Alloc(n)
		require.NotNil(t, b)
		assert.Equal(t, n, len(b))
		for _, o := range blocks {
			assert.False(t, overlap(b, o))
		}
		blocks = append(blocks, b)
	}
}

func TestLIFOReuse(t *testing.T) {
	r := newCountingRegion(1 << 20)
	h, err := New(&Option{Region: r})
	require.NoError(t, err)

	p := h.Malloc(64)
	require.NotEqual(t, Nil, p)
	calls := len(r.calls)
	h.Free(p)
	q := h.Malloc(64)
	assert.Equal(t, p, q)
	assert.Equal(t, calls, len(r.calls))
}

func TestReuseAfterFreeAll(t *testing.T) {
	h := newTestHeap(t)
	const n, size = 100, 100
	ptrs := make([]Ptr, n)
	for i := range ptrs {
		ptrs[i] = h.Malloc(size)
		require.NotEqual(t, Nil, ptrs[i])
	}
	grows := h.Stats().GrowCalls
	heapSize := h.Stats().HeapSize
	for _, p := range ptrs {
		h.Free(p)
	}
	require.NoError(t, h.Check())
	assert.Equal(t, 1, h.Stats().FreeBlocks)

	p := h.Malloc(size)
	require.NotEqual(t, Nil, p)
	assert.Equal(t, grows, h.Stats().GrowCalls)
	assert.Equal(t, heapSize, h.Stats().HeapSize)
}

func TestGrowthSizing(t *testing.T) {
	r := newCountingRegion(1 << 20)
	h, err := New(&Option{Region: r})
	require.NoError(t, err)
	require.NoError(t, h.Init())

	// Larger than the chunk: grow by exactly the adjusted size.
	p := h.Malloc(10000)
	require.NotEqual(t, Nil, p)
	assert.Equal(t, adjustSize(10000), r.calls[len(r.calls)-1])
	// The new space merged with the initial chunk, so the block starts there.
	assert.Equal(t, Ptr(bootstrapSize), p)

	// Small requests that do not fit grow by the chunk size.
	for h.Stats().GrowCalls == 2 {
		require.NotEqual(t, Nil, h.Malloc(1000))
	}
	assert.Equal(t, DefaultChunkSize, r.calls[len(r.calls)-1])
	require.NoError(t, h.Check())
}

func TestCustomChunkSize(t *testing.T) {
	r := newCountingRegion(1 << 20)
	h, err := New(&Option{Region: r, ChunkSize: 64 * 1024})
	require.NoError(t, err)
	require.NotEqual(t, Nil, h.Malloc(1))
	assert.Equal(t, []int{bootstrapSize, 64 * 1024}, r.calls)
}

func TestOutOfMemory(t *testing.T) {
	h, err := New(&Option{Region: NewSliceRegion(8192)})
	require.NoError(t, err)
	require.NoError(t, h.Init())
	before := h.Stats()

	assert.Equal(t, Nil, h.Malloc(8000))
	assert.ErrorIs(t, h.Err(), ErrOutOfMemory)
	assert.ErrorIs(t, h.Err(), ErrRegionExhausted)
	assert.Equal(t, before.HeapSize, h.Stats().HeapSize)
	assert.Equal(t, before.FreeBytes, h.Stats().FreeBytes)
	require.NoError(t, h.Check())

	// Smaller requests still succeed.
	assert.NotEqual(t, Nil, h.Malloc(100))
	assert.Equal(t, Nil, h.Malloc(maxRequest+1))
	require.NoError(t, h.Check())
}

func TestSplitThreshold(t *testing.T) {
	h := newTestHeap(t)
	a := h.Malloc(80)    // 96-byte block
	guard := h.Malloc(1) // keeps a from merging with the tail
	require.NotEqual(t, Nil, guard)
	h.Free(a)

	// 96 - 80 leaves 16 bytes, too small to split.
	p := h.Malloc(64)
	assert.Equal(t, a, p)
	assert.Equal(t, 80, h.UsableSize(p))
	h.Free(p)

	// 96 - 64 leaves a minimum block.
	splits := h.Stats().SplitCount
	p = h.Malloc(48)
	assert.Equal(t, a, p)
	assert.Equal(t, 48, h.UsableSize(p))
	assert.Equal(t, splits+1, h.Stats().SplitCount)
	assert.Equal(t, []BlockInfo{
		{Ptr: a, Size: 64, Allocated: true},
		{Ptr: a + 64, Size: MinBlockSize, Allocated: false},
		{Ptr: guard, Size: 32, Allocated: true},
	}, walk(h)[:3])
	require.NoError(t, h.Check())
}

func TestFirstFitAscending(t *testing.T) {
	h := newTestHeap(t)
	big := h.Malloc(1000)
	g1 := h.Malloc(1)
	small := h.Malloc(100)
	g2 := h.Malloc(1)
	require.NotEqual(t, Nil, g1)
	require.NotEqual(t, Nil, g2)
	h.Free(big)
	h.Free(small)

	// The 128-byte hole is in a lower bucket than the 1024-byte one.
	assert.Equal(t, small, h.Malloc(90))
	assert.Equal(t, big, h.Malloc(90))
}

func TestCoalesce(t *testing.T) {
	h := newTestHeap(t)
	a := h.Malloc(64)
	b := h.Malloc(64)
	c := h.Malloc(64)
	d := h.Malloc(64)
	tail := d + 80

	// Both neighbours allocated.
	h.Free(b)
	require.NoError(t, h.Check())
	assert.Contains(t, walk(h), BlockInfo{Ptr: b, Size: 80})
	assert.Equal(t, 0, h.Stats().CoalesceCount)

	// Previous neighbour free.
	h.Free(c)
	require.NoError(t, h.Check())
	assert.Contains(t, walk(h), BlockInfo{Ptr: b, Size: 160})

	// Next neighbour free.
	h.Free(a)
	require.NoError(t, h.Check())
	assert.Contains(t, walk(h), BlockInfo{Ptr: a, Size: 240})

	// Both neighbours free.
	assert.False(t, h.header(int(tail)).allocated())
	h.Free(d)
	require.NoError(t, h.Check())
	assert.Equal(t, []BlockInfo{{Ptr: a, Size: DefaultChunkSize}}, walk(h))
	assert.Equal(t, 3, h.Stats().CoalesceCount)
}

func TestRealloc(t *testing.T) {
	t.Run("Grow", func(t *testing.T) {
		h := newTestHeap(t)
		p := h.Malloc(100)
		fill(h.Bytes(p)[:100], 0xA5)
		q := h.Realloc(p, 200)
		require.NotEqual(t, Nil, q)
		assert.NotEqual(t, p, q)
		assertFilled(t, h.Bytes(q)[:100], 0xA5)
		assert.False(t, h.IsValidPtr(p))
		require.NoError(t, h.Check())
	})

	t.Run("Shrink", func(t *testing.T) {
		h := newTestHeap(t)
		p := h.Malloc(200)
		b := h.Bytes(p)[:200]
		for i := range b {
			b[i] = byte(i)
		}
		q := h.Realloc(p, 50)
		require.NotEqual(t, Nil, q)
		got := h.Bytes(q)[:50]
		for i := range got {
			assert.Equal(t, byte(i), got[i])
		}
		require.NoError(t, h.Check())
	})

	t.Run("Nil", func(t *testing.T) {
		h := newTestHeap(t)
		p := h.Realloc(Nil, 10)
		assert.NotEqual(t, Nil, p)
		assert.Equal(t, 0, h.Stats().ReallocCalls)
	})

	t.Run("ZeroKeepsPointer", func(t *testing.T) {
		h := newTestHeap(t)
		p := h.Malloc(10)
		assert.Equal(t, Nil, h.Realloc(p, 0))
		assert.True(t, h.IsValidPtr(p))
	})

	t.Run("FailureKeepsPointer", func(t *testing.T) {
		h, err := New(&Option{Region: NewSliceRegion(8192)})
		require.NoError(t, err)
		p := h.Malloc(100)
		fill(h.Bytes(p)[:100], 7)
		assert.Equal(t, Nil, h.Realloc(p, 8000))
		assert.ErrorIs(t, h.Err(), ErrOutOfMemory)
		assert.True(t, h.IsValidPtr(p))
		assertFilled(t, h.Bytes(p)[:100], 7)
		require.NoError(t, h.Check())
	})

	t.Run("NeverInPlace", func(t *testing.T) {
		h := newTestHeap(t)
		p := h.Malloc(64) // followed by the free tail
		q := h.Realloc(p, 128)
		assert.NotEqual(t, p, q)
	})
}

func TestSlices(t *testing.T) {
	h := newTestHeap(t)
	b := h.Alloc(100)
	require.NotNil(t, b)
	assert.Equal(t, 100, len(b))
	assert.Equal(t, 112, cap(b))
	p := h.PtrOf(b)
	assert.Equal(t, int(p), int(uintptr(unsafe.Pointer(&b[0]))-uintptr(unsafe.Pointer(&h.mem[0]))))

	fill(b, 3)
	b = h.ReallocSlice(b, 1000)
	require.NotNil(t, b)
	assert.Equal(t, 1000, len(b))
	assertFilled(t, b[:100], 3)

	h.FreeSlice(b)
	assert.False(t, h.IsValidPtr(p))
	require.NoError(t, h.Check())

	assert.NotPanics(t, func() { h.FreeSlice(nil) })
	assert.NotNil(t, h.ReallocSlice(nil, 10))
	assert.Panics(t, func() { h.FreeSlice(make([]byte, 10)) })
	assert.Equal(t, Nil, h.PtrOf(make([]byte, 10)))
}

func TestFreeInvalid(t *testing.T) {
	h := newTestHeap(t)
	p := h.Malloc(64)
	q := h.Malloc(64)

	tests := []struct {
		name string
		ptr  Ptr
	}{
		{"bucket_table", 8},
		{"prologue", Ptr(bootstrapSize - Alignment)},
		{"past_break", 1 << 20},
		{"negative", -16},
		{"misaligned", p + 8},
		{"free_block", q + 80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, h.IsValidPtr(tt.ptr))
			assert.Panics(t, func() { h.Free(tt.ptr) })
		})
	}

	assert.NotPanics(t, func() { h.Free(Nil) })
	assert.NotPanics(t, func() { h.Free(p) })
	// double free
	assert.Panics(t, func() { h.Free(p) })
	assert.Panics(t, func() { h.Realloc(p, 10) })
	require.NoError(t, h.Check())

	// overrun into the footer
	h.mem[int(q)+h.UsableSize(q)] ^= 0xFF
	assert.Panics(t, func() { h.Free(q) })
	assert.Panics(t, func() { h.Bytes(q) })
	assert.ErrorIs(t, h.Check(), ErrCorrupted)
}

func TestFreeUninitialized(t *testing.T) {
	h := newUninitHeap(t)
	assert.NotPanics(t, func() { h.Free(Nil) })
	assert.Panics(t, func() { h.Free(Ptr(bootstrapSize)) })
	assert.False(t, h.IsValidPtr(Ptr(bootstrapSize)))
	assert.NoError(t, h.Check())
}

func TestCheckDetectsCorruption(t *testing.T) {
	t.Run("AdjacentFree", func(t *testing.T) {
		h := newTestHeap(t)
		a := h.Malloc(64)
		h.Malloc(64)
		// Mark a free behind the allocator's back, without coalescing.
		h.setTags(int(a), 80, false)
		h.insert(int(a))
		require.NoError(t, h.Check())
		b := int(a) + 80
		h.setTags(b, 80, false)
		h.insert(b)
		assert.ErrorIs(t, h.Check(), ErrCorrupted)
	})

	t.Run("Unlisted", func(t *testing.T) {
		h := newTestHeap(t)
		a := h.Malloc(64)
		h.Malloc(64)
		h.setTags(int(a), 80, false)
		assert.ErrorIs(t, h.Check(), ErrCorrupted)
	})

	t.Run("WrongBucket", func(t *testing.T) {
		h := newTestHeap(t)
		bp := h.bucketHead(sizeClass(DefaultChunkSize))
		h.remove(bp)
		h.setBucketHead(0, bp)
		h.setPred(bp, headLink(0))
		h.setSucc(bp, 0)
		assert.ErrorIs(t, h.Check(), ErrCorrupted)
	})

	t.Run("Epilogue", func(t *testing.T) {
		h := newTestHeap(t)
		h.setHeader(len(h.mem), pack(0, false))
		assert.ErrorIs(t, h.Check(), ErrCorrupted)
	})
}

func TestRandomAllocFree(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	h := newTestHeap(t)

	type alloc struct {
		size int
		fill byte
	}
	live := map[Ptr]alloc{}
	var ptrs []Ptr

	for i := 0; i < 20000; i++ {
		switch op := rng.Intn(10); {
		case op < 4 || len(ptrs) == 0:
			size := 1 + rng.Intn(2000)
			if rng.Intn(20) == 0 {
				size = 5000 + rng.Intn(20000)
			}
			p := h.Malloc(size)
			require.NotEqual(t, Nil, p)
			_, dup := live[p]
			require.False(t, dup)
			a := alloc{size: size, fill: byte(rng.Intn(256))}
			fill(h.Bytes(p)[:size], a.fill)
			live[p] = a
			ptrs = append(ptrs, p)
		case op < 8:
			j := rng.Intn(len(ptrs))
			p := ptrs[j]
			assertFilled(t, h.Bytes(p)[:live[p].size], live[p].fill)
			h.Free(p)
			delete(live, p)
			ptrs[j] = ptrs[len(ptrs)-1]
			ptrs = ptrs[:len(ptrs)-1]
		default:
			j := rng.Intn(len(ptrs))
			p := ptrs[j]
			a := live[p]
			size := 1 + rng.Intn(3000)
			q := h.Realloc(p, size)
			require.NotEqual(t, Nil, q)
			n := a.size
			if size < n {
				n = size
			}
			assertFilled(t, h.Bytes(q)[:n], a.fill)
			fill(h.Bytes(q)[:size], a.fill)
			delete(live, p)
			live[q] = alloc{size: size, fill: a.fill}
			ptrs[j] = q
		}
		if i%1000 == 0 {
			require.NoError(t, h.Check(), "op %d", i)
		}
	}

	for _, p := range ptrs {
		assertFilled(t, h.Bytes(p)[:live[p].size], live[p].fill)
		h.Free(p)
	}
	require.NoError(t, h.Check())
	s := h.Stats()
	assert.Equal(t, 0, s.InUseBlocks)
	assert.Equal(t, 0, s.InUseBytes)
	assert.Equal(t, 1, s.FreeBlocks)
	assert.Equal(t, s.HeapSize-bootstrapSize, s.FreeBytes)
}

func TestHeapOverCallerBuffer(t *testing.T) {
	buf := make([]byte, 64*1024)
	h, err := New(&Option{Region: NewSliceRegionFrom(buf)})
	require.NoError(t, err)
	b := h.Alloc(1000)
	require.NotNil(t, b)
	fill(b, 9)
	require.NoError(t, h.Check())
	require.NoError(t, h.Close())
}

// helpers

func TestDebugLog(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	h, err := New(&Option{Region: NewSliceRegion(bootstrapSize + DefaultChunkSize), Debug: true})
	require.NoError(t, err)
	require.NoError(t, h.Init())
	assert.Contains(t, buf.String(), "MALLOC: grew 4096 bytes")

	assert.Equal(t, Nil, h.Malloc(2*DefaultChunkSize))
	assert.Contains(t, buf.String(), "MALLOC: grow")
	assert.Contains(t, buf.String(), "failed")
}

func newTestHeap(t *testing.T) *Heap {
	t.Helper()
	h := newUninitHeap(t)
	require.NoError(t, h.Init())
	return h
}

func newUninitHeap(t *testing.T) *Heap {
	t.Helper()
	h, err := New(&Option{Region: NewSliceRegion(16 << 20)})
	require.NoError(t, err)
	return h
}

// countingRegion records the size of every Sbrk call.
type countingRegion struct {
	*SliceRegion
	calls []int
}

func newCountingRegion(limit int) *countingRegion {
	return &countingRegion{SliceRegion: NewSliceRegion(limit)}
}

func (r *countingRegion) Sbrk(n int) (int, error) {
	r.calls = append(r.calls, n)
	return r.SliceRegion.Sbrk(n)
}

func usedRegion(t *testing.T) Region {
	t.Helper()
	r := NewSliceRegion(1024)
	_, err := r.Sbrk(16)
	require.NoError(t, err)
	return r
}

func walk(h *Heap) []BlockInfo {
	var blocks []BlockInfo
	h.Walk(func(b BlockInfo) bool {
		blocks = append(blocks, b)
		return true
	})
	return blocks
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

func assertFilled(t *testing.T, b []byte, v byte) {
	t.Helper()
	for i := range b {
		if b[i] != v {
			t.Fatalf("byte %d = %#x, want %#x", i, b[i], v)
		}
	}
}

func overlap(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	aStart := uintptr(unsafe.Pointer(&a[0]))
	aEnd := aStart + uintptr(len(a))
	bStart := uintptr(unsafe.Pointer(&b[0]))
	bEnd := bStart + uintptr(len(b))
	return !(aEnd <= bStart || bEnd <= aStart)
}

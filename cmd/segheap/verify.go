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
package main

import (
	"bytes"
	"fmt"
	"math/rand"

	"github.com/bytedance/gopkg/lang/mcache"
	"github.com/bytedance/gopkg/util/xxhash3"

	"github.com/cloudwego/segheap/malloc"
)

// maxPattern bounds the scratch pattern. Longer payloads repeat it.
const maxPattern = 64 << 10

// block is a live allocation whose payload is the filler's pattern read
// cyclically from off.
type block struct {
	p   malloc.Ptr
	n   int
	off int
	sum uint64
}

// filler writes random payloads into heap blocks and verifies them later.
type filler struct {
	h       *malloc.Heap
	rng     *rand.Rand
	pattern []byte
}

func newFiller(h *malloc.Heap, maxSize int, seed int64) *filler {
	rng := rand.New(rand.NewSource(seed))
	n := 2 * maxSize
	if n > maxPattern {
		n = maxPattern
	}
	pattern := mcache.Malloc(n)
	rng.Read(pattern)
	return &filler{h: h, rng: rng, pattern: pattern}
}

func (f *filler) release() {
	mcache.Free(f.pattern)
	f.pattern = nil
}

// fill writes b.n pattern bytes into b's payload and records their digest.
func (f *filler) fill(b *block) {
	b.off = f.rng.Intn(len(f.pattern))
	if b.n == 0 {
		b.sum = 0
		return
	}
	buf := f.h.Bytes(b.p)[:b.n]
	for i, off := 0, b.off; i < len(buf); off = 0 {
		i += copy(buf[i:], f.pattern[off:])
	}
	b.sum = xxhash3.Hash(buf)
}

// verify checks the first n payload bytes of b against the pattern.
func (f *filler) verify(b *block, n int) error {
	if n == 0 {
		return nil
	}
	buf := f.h.Bytes(b.p)[:n]
	if n == b.n {
		if got := xxhash3.Hash(buf); got != b.sum {
			return fmt.Errorf("payload of block %d (%d bytes) corrupted: digest %x, want %x", b.p, n, got, b.sum)
		}
		return nil
	}
	for i, off := 0, b.off; i < len(buf); off = 0 {
		m := len(f.pattern) - off
		if m > len(buf)-i {
			m = len(buf) - i
		}
		if !bytes.Equal(buf[i:i+m], f.pattern[off:off+m]) {
			return fmt.Errorf("payload of block %d corrupted within the first %d bytes", b.p, n)
		}
		i += m
	}
	return nil
}

// realloc resizes b to n bytes, checks that the common prefix survived and
// refills the payload. It reports false if the heap is out of memory, in
// which case b is unchanged.
func (f *filler) realloc(b *block, n int) (bool, error) {
	if n == 0 {
		f.h.Free(b.p)
		*b = block{}
		return true, nil
	}
	q := f.h.Realloc(b.p, n)
	if q == malloc.Nil {
		return false, nil
	}
	old := *b
	old.p = q
	keep := old.n
	if n < keep {
		keep = n
	}
	if err := f.verify(&old, keep); err != nil {
		return true, fmt.Errorf("realloc %d -> %d bytes: %w", b.n, n, err)
	}
	b.p, b.n = q, n
	f.fill(b)
	return true, nil
}

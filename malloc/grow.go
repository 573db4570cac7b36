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
	"log"
)

// extend grows the heap by size bytes, rounded up to an even number of
// words, and returns the free block covering the new space after it has
// been coalesced with a trailing free block. On failure nothing in the
// heap is modified.
func (h *Heap) extend(size int) (int, error) {
	words := alignUp(size, wordSize) / wordSize
	if words%2 != 0 {
		words++
	}
	size = words * wordSize

	h.stats.GrowCalls++
	old, err := h.region.Sbrk(size)
	if err != nil {
		if h.debug {
			log.Printf("MALLOC: grow %d bytes failed at heap size %d: %v", size, len(h.mem), err)
		}
		return 0, fmt.Errorf("%w: grow %d bytes: %w", ErrOutOfMemory, size, err)
	}
	h.mem = h.region.Bytes()
	h.stats.GrowBytes += int64(size)
	if h.debug {
		log.Printf("MALLOC: grew %d bytes, heap size %d", size, len(h.mem))
	}

	// The new block's header takes the place of the old epilogue.
	bp := old
	h.setTags(bp, size, false)
	h.setHeader(h.next(bp), pack(0, true))
	h.insert(bp)
	return h.coalesce(bp), nil
}

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

// link is the back-pointer stored in a free block. It names either the
// bucket slot that heads the list or the previous free block. Block
// offsets are multiples of Alignment, so bit 0 tells the two apart.
type link uint64

const linkHead link = 1

func headLink(bucket int) link {
	return link(bucket)<<1 | linkHead
}

func blockLink(bp int) link {
	return link(bp)
}

func (l link) isHead() bool {
	return l&linkHead != 0
}

func (l link) bucket() int {
	return int(l >> 1)
}

func (l link) block() int {
	return int(l)
}

// Free blocks overlay pred at bp and succ at bp+wordSize.

func (h *Heap) pred(bp int) link {
	return link(h.word(bp))
}

func (h *Heap) setPred(bp int, l link) {
	h.putWord(bp, uint64(l))
}

func (h *Heap) succ(bp int) int {
	return int(h.word(bp + wordSize))
}

func (h *Heap) setSucc(bp, next int) {
	h.putWord(bp+wordSize, uint64(next))
}

// Bucket heads live in the first numBuckets words of the region.

func (h *Heap) bucketHead(i int) int {
	return int(h.word(i * wordSize))
}

func (h *Heap) setBucketHead(i, bp int) {
	h.putWord(i*wordSize, uint64(bp))
}

// insert pushes the free block at bp onto the head of its bucket.
func (h *Heap) insert(bp int) {
	i := sizeClass(h.header(bp).size())
	head := h.bucketHead(i)
	h.setPred(bp, headLink(i))
	h.setSucc(bp, head)
	if head != 0 {
		h.setPred(head, blockLink(bp))
	}
	h.setBucketHead(i, bp)
}

// remove unlinks the free block at bp from whichever bucket holds it.
func (h *Heap) remove(bp int) {
	p, s := h.pred(bp), h.succ(bp)
	if p.isHead() {
		h.setBucketHead(p.bucket(), s)
	} else {
		h.setSucc(p.block(), s)
	}
	if s != 0 {
		h.setPred(s, p)
	}
}

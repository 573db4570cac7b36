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

import "encoding/binary"

// tag is a boundary tag: the block size with the allocated flag in bit 0.
// Sizes are multiples of Alignment, so the low four bits are free.
type tag uint64

const (
	tagAllocated tag = 1
	tagFlagMask  tag = Alignment - 1
)

func pack(size int, allocated bool) tag {
	t := tag(size)
	if allocated {
		t |= tagAllocated
	}
	return t
}

func (t tag) size() int {
	return int(t &^ tagFlagMask)
}

func (t tag) allocated() bool {
	return t&tagAllocated != 0
}

// word reads the 8-byte little-endian word at off.
func (h *Heap) word(off int) uint64 {
	return binary.LittleEndian.Uint64(h.mem[off : off+wordSize])
}

func (h *Heap) putWord(off int, v uint64) {
	binary.LittleEndian.PutUint64(h.mem[off:off+wordSize], v)
}

// header returns the boundary tag in front of the payload at bp.
func (h *Heap) header(bp int) tag {
	return tag(h.word(bp - wordSize))
}

func (h *Heap) setHeader(bp int, t tag) {
	h.putWord(bp-wordSize, uint64(t))
}

// footer returns the boundary tag at the end of the block at bp,
// located using the size in its header.
func (h *Heap) footer(bp int) tag {
	return tag(h.word(h.footerOff(bp, h.header(bp).size())))
}

func (h *Heap) footerOff(bp, size int) int {
	return bp + size - overhead
}

// setTags writes identical header and footer tags for a block of size
// bytes starting at bp.
func (h *Heap) setTags(bp, size int, allocated bool) {
	t := pack(size, allocated)
	h.putWord(bp-wordSize, uint64(t))
	h.putWord(h.footerOff(bp, size), uint64(t))
}

// next returns the payload offset of the block that follows bp.
func (h *Heap) next(bp int) int {
	return bp + h.header(bp).size()
}

// prev returns the payload offset of the block that precedes bp,
// read from its footer just below bp's header.
func (h *Heap) prev(bp int) int {
	return bp - tag(h.word(bp-overhead)).size()
}

// prevTag returns the footer tag of the block preceding bp.
func (h *Heap) prevTag(bp int) tag {
	return tag(h.word(bp - overhead))
}

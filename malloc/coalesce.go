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

// coalesce merges the free block at bp with any free neighbours and
// returns the payload offset of the merged block. bp must already be
// linked into its bucket.
func (h *Heap) coalesce(bp int) int {
	prevFree := !h.prevTag(bp).allocated()
	next := h.next(bp)
	nextFree := !h.header(next).allocated()
	size := h.header(bp).size()

	switch {
	case !prevFree && !nextFree:
		return bp
	case !prevFree && nextFree:
		h.remove(bp)
		h.remove(next)
		size += h.header(next).size()
	case prevFree && !nextFree:
		prev := h.prev(bp)
		h.remove(bp)
		h.remove(prev)
		size += h.header(prev).size()
		bp = prev
	default:
		prev := h.prev(bp)
		h.remove(bp)
		h.remove(prev)
		h.remove(next)
		size += h.header(prev).size() + h.header(next).size()
		bp = prev
	}

	h.setTags(bp, size, false)
	h.insert(bp)
	h.stats.CoalesceCount++
	return bp
}

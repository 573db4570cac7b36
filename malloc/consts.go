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

const (
	// wordSize is the size of a boundary tag or a free-list link.
	wordSize = 8

	// Alignment is the alignment of every payload returned by a Heap.
	Alignment = 16

	// MinBlockSize is the smallest block: header, footer and two links.
	MinBlockSize = 4 * wordSize

	// numBuckets is the number of segregated free lists.
	numBuckets = 21

	// classOffset is subtracted from a block size before picking its bucket,
	// so the smallest blocks land in bucket 0.
	classOffset = MinBlockSize - 1

	// overhead is the per-block cost of the header and footer.
	overhead = 2 * wordSize

	// bootstrapSize covers the bucket table, the prologue header and footer,
	// and the initial epilogue header.
	bootstrapSize = (numBuckets + 3) * wordSize

	// prologueSize is the size encoded in the prologue's boundary tags.
	prologueSize = 2 * wordSize

	// DefaultChunkSize is the default heap growth increment (4KB).
	DefaultChunkSize = 4 * 1024

	// DefaultHeapLimit is the capacity of the SliceRegion created when no
	// Region is configured (64MB).
	DefaultHeapLimit = 64 << 20
)

// Ptr is the offset of a payload from the start of the heap region.
// The zero value is Nil; offset 0 always belongs to the bucket table.
type Ptr int

// Nil is the null Ptr.
const Nil Ptr = 0

func alignUp(n, a int) int {
	return (n + a - 1) &^ (a - 1)
}

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

import "math/bits"

// sizeClass maps a block size to its bucket. Bucket i holds blocks whose
// size minus classOffset is in (2^(i-1), 2^i]; the last bucket takes
// everything larger.
//
// Insertion and fit search both use this mapping, so a bucket below
// sizeClass(asize) never holds a block of at least asize bytes.
func sizeClass(size int) int {
	n := size - classOffset
	if n <= 1 {
		return 0
	}
	i := bits.Len(uint(n - 1))
	if i >= numBuckets {
		return numBuckets - 1
	}
	return i
}

// adjustSize converts a request into a block size including the boundary
// tags, rounded to Alignment.
func adjustSize(size int) int {
	if size <= Alignment {
		return 2 * Alignment
	}
	return alignUp(size+overhead, Alignment)
}

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

// Option configures a Heap.
type Option struct {
	// ChunkSize is the minimum number of bytes the heap grows by when no
	// free block fits a request. It must be a positive multiple of Alignment.
	// Requests larger than ChunkSize grow the heap by exactly their block size.
	ChunkSize int

	// Region supplies the heap's memory.
	// If nil, a SliceRegion of DefaultHeapLimit bytes is used.
	Region Region

	// Debug logs every heap growth and growth failure with the standard logger.
	Debug bool
}

// DefaultOption returns the default values of Option.
func DefaultOption() *Option {
	return &Option{
		ChunkSize: DefaultChunkSize,
	}
}

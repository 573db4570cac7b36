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
// Package malloc implements a segregated-fit heap allocator over a single
// growable memory region.
//
// # Layout
//
// The region starts with a table of 21 free-list heads, followed by an
// allocated prologue block and, at the break, a zero-size allocated epilogue
// header. Blocks in between carry an 8-byte header and an 8-byte footer
// holding the block size and an allocated bit:
//
//	| bucket heads | prologue | block | block | ... | epilogue |
//	0              168        192                    brk-8
//
// Payloads start 8 bytes after a header and are aligned to 16 bytes.
// A free block stores two links in its payload: pred, which names either
// its bucket or the previous free block, and succ.
//
// # Policy
//
// Free lists are LIFO. Malloc does a first-fit search starting at the
// request's own size class, splits a block when the remainder can hold a
// minimum block, and grows the region by max(request, ChunkSize) when
// nothing fits. Free coalesces eagerly, so no two free blocks are ever
// adjacent. Realloc always allocates, copies and frees.
//
// Free, Realloc, Bytes and UsableSize panic on pointers that are not live
// allocations, including double frees and payload overruns that reached the
// footer.
//
// # Thread Safety
//
// A Heap is not safe for concurrent use. SyncHeap guards a Heap with a mutex.
package malloc

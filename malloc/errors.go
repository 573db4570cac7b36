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

import "errors"

var (
	// ErrOutOfMemory indicates that the heap could not grow to satisfy a request.
	ErrOutOfMemory = errors.New("malloc: out of memory")

	// ErrRegionExhausted is returned by a Region that cannot extend its break.
	ErrRegionExhausted = errors.New("malloc: region exhausted")

	// ErrRegionClosed is returned by a Region after Close.
	ErrRegionClosed = errors.New("malloc: region closed")

	// ErrCorrupted is returned by Check when a heap invariant does not hold.
	ErrCorrupted = errors.New("malloc: heap corrupted")
)

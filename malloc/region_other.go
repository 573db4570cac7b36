//go:build !linux

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
	"runtime"
)

// MmapRegion is only available on linux.
type MmapRegion struct{}

// NewMmapRegion always fails on this platform; use NewSliceRegion instead.
func NewMmapRegion(limit int) (*MmapRegion, error) {
	return nil, fmt.Errorf("mmap region is not supported on %s", runtime.GOOS)
}

// Sbrk implements Region.
func (r *MmapRegion) Sbrk(n int) (int, error) { return 0, ErrRegionClosed }

// Bytes implements Region.
func (r *MmapRegion) Bytes() []byte { return nil }

// Limit returns the maximum size the region can grow to.
func (r *MmapRegion) Limit() int { return 0 }

// Close implements Region.
func (r *MmapRegion) Close() error { return nil }

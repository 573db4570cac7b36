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

import "sync"

// SyncHeap serializes every call to a Heap with a single mutex.
type SyncHeap struct {
	mu sync.Mutex
	h  *Heap
}

// NewSyncHeap creates a SyncHeap from o. See New.
func NewSyncHeap(o *Option) (*SyncHeap, error) {
	h, err := New(o)
	if err != nil {
		return nil, err
	}
	return &SyncHeap{h: h}, nil
}

// Init calls Heap.Init.
func (s *SyncHeap) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.Init()
}

// Malloc calls Heap.Malloc.
func (s *SyncHeap) Malloc(size int) Ptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.Malloc(size)
}

// Free calls Heap.Free.
func (s *SyncHeap) Free(p Ptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.h.Free(p)
}

// Realloc calls Heap.Realloc.
func (s *SyncHeap) Realloc(p Ptr, size int) Ptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.Realloc(p, size)
}

// Alloc calls Heap.Alloc.
func (s *SyncHeap) Alloc(size int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.Alloc(size)
}

// FreeSlice calls Heap.FreeSlice.
func (s *SyncHeap) FreeSlice(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.h.FreeSlice(b)
}

// ReallocSlice calls Heap.ReallocSlice.
func (s *SyncHeap) ReallocSlice(b []byte, size int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.ReallocSlice(b, size)
}

// Bytes calls Heap.Bytes.
func (s *SyncHeap) Bytes(p Ptr) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.Bytes(p)
}

// PtrOf calls Heap.PtrOf.
func (s *SyncHeap) PtrOf(b []byte) Ptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.PtrOf(b)
}

// UsableSize calls Heap.UsableSize.
func (s *SyncHeap) UsableSize(p Ptr) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.UsableSize(p)
}

// Stats calls Heap.Stats.
func (s *SyncHeap) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.Stats()
}

// Check calls Heap.Check.
func (s *SyncHeap) Check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.Check()
}

// Close calls Heap.Close.
func (s *SyncHeap) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.Close()
}

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
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloudwego/segheap/malloc"
)

var (
	// Global flags
	jsonOut bool
	useMmap bool
	limit   int
	chunk   int
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "segheap",
	Short: "Drive and verify a segregated-fit heap",
	Long: `segheap runs allocation workloads against one or more heaps, checks
every payload for corruption and every heap invariant, and reports statistics.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&useMmap, "mmap", false, "Back heaps with anonymous mmap instead of a Go slice")
	rootCmd.PersistentFlags().IntVar(&limit, "limit", malloc.DefaultHeapLimit, "Maximum heap size in bytes")
	rootCmd.PersistentFlags().IntVar(&chunk, "chunk", malloc.DefaultChunkSize, "Heap growth chunk in bytes")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log heap growth")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newHeap creates a heap according to the global flags.
func newHeap() (*malloc.Heap, error) {
	var r malloc.Region
	if useMmap {
		mr, err := malloc.NewMmapRegion(limit)
		if err != nil {
			return nil, err
		}
		r = mr
	} else {
		r = malloc.NewSliceRegion(limit)
	}
	o := malloc.DefaultOption()
	o.Region = r
	o.ChunkSize = chunk
	o.Debug = debug
	h, err := malloc.New(o)
	if err != nil {
		r.Close()
		return nil, err
	}
	return h, nil
}

// printJSON outputs data as JSON
func printJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func printStats(w io.Writer, s malloc.Stats) {
	fmt.Fprintf(w, "  heap size:   %d bytes (%d grows, %d bytes)\n", s.HeapSize, s.GrowCalls, s.GrowBytes)
	fmt.Fprintf(w, "  calls:       %d malloc, %d free, %d realloc\n", s.AllocCalls, s.FreeCalls, s.ReallocCalls)
	fmt.Fprintf(w, "  splits:      %d\n", s.SplitCount)
	fmt.Fprintf(w, "  coalesces:   %d\n", s.CoalesceCount)
	fmt.Fprintf(w, "  in use:      %d bytes in %d blocks\n", s.InUseBytes, s.InUseBlocks)
	fmt.Fprintf(w, "  free:        %d bytes in %d blocks\n", s.FreeBytes, s.FreeBlocks)
}

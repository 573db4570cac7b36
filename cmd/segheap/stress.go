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
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sync"

	"github.com/bytedance/gopkg/util/gopool"
	"github.com/spf13/cobra"

	"github.com/cloudwego/segheap/malloc"
)

type stressConfig struct {
	Ops     int   `json:"ops"`
	Seed    int64 `json:"seed"`
	MaxSize int   `json:"max_size"`
	Heaps   int   `json:"heaps"`
}

var stressCfg = stressConfig{
	Ops:     100000,
	Seed:    1,
	MaxSize: 4096,
	Heaps:   1,
}

func init() {
	cmd := newStressCmd()
	cmd.Flags().IntVar(&stressCfg.Ops, "ops", stressCfg.Ops, "Operations per heap")
	cmd.Flags().Int64Var(&stressCfg.Seed, "seed", stressCfg.Seed, "Random seed; heap i uses seed+i")
	cmd.Flags().IntVar(&stressCfg.MaxSize, "max-size", stressCfg.MaxSize, "Largest request in bytes")
	cmd.Flags().IntVar(&stressCfg.Heaps, "heaps", stressCfg.Heaps, "Independent heaps run in parallel")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stress",
		Short: "Run a random malloc/free/realloc workload",
		Long: `The stress command runs a random workload on each heap, verifies every
payload digest and the heap invariants, then frees everything and reports
statistics.

Example:
  segheap stress --ops 1000000 --heaps 8
  segheap stress --max-size 65536 --limit 16777216 --mmap --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress(stressCfg, os.Stdout)
		},
	}
}

// stressReport is the result of one heap's workload.
type stressReport struct {
	Heap        int          `json:"heap"`
	Ops         int          `json:"ops"`
	OutOfMemory int          `json:"out_of_memory"`
	PeakLive    int          `json:"peak_live"`
	Stats       malloc.Stats `json:"stats"`
}

func runStress(cfg stressConfig, w io.Writer) error {
	if cfg.Ops < 0 || cfg.MaxSize <= 0 || cfg.Heaps <= 0 {
		return fmt.Errorf("invalid stress config: ops=%d max-size=%d heaps=%d", cfg.Ops, cfg.MaxSize, cfg.Heaps)
	}

	reports := make([]stressReport, cfg.Heaps)
	errs := make([]error, cfg.Heaps)

	pool := gopool.NewPool("segheap-stress", int32(cfg.Heaps), gopool.NewConfig())
	var wg sync.WaitGroup
	for i := 0; i < cfg.Heaps; i++ {
		i := i
		wg.Add(1)
		pool.Go(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("heap %d: panic: %v", i, r)
				}
			}()
			reports[i], errs[i] = stressHeap(i, cfg)
		})
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(w, struct {
			Config  stressConfig   `json:"config"`
			Reports []stressReport `json:"reports"`
		}{cfg, reports})
	}
	for _, r := range reports {
		fmt.Fprintf(w, "heap %d: %d ops, %d out of memory, peak %d live blocks\n", r.Heap, r.Ops, r.OutOfMemory, r.PeakLive)
		printStats(w, r.Stats)
	}
	return nil
}

// stressHeap runs cfg.Ops random operations on a fresh heap.
// Half the operations allocate, three in ten free and the rest reallocate.
func stressHeap(id int, cfg stressConfig) (stressReport, error) {
	rep := stressReport{Heap: id, Ops: cfg.Ops}
	h, err := newHeap()
	if err != nil {
		return rep, err
	}
	defer h.Close()
	if err := h.Init(); err != nil {
		return rep, fmt.Errorf("heap %d: %w", id, err)
	}

	f := newFiller(h, cfg.MaxSize, cfg.Seed+int64(id))
	defer f.release()
	rng := rand.New(rand.NewSource(cfg.Seed + int64(id)))

	var live []block
	for i := 0; i < cfg.Ops; i++ {
		op := rng.Intn(10)
		switch {
		case op < 5 || len(live) == 0:
			b := block{n: 1 + rng.Intn(cfg.MaxSize)}
			if b.p = h.Malloc(b.n); b.p == malloc.Nil {
				if !errors.Is(h.Err(), malloc.ErrOutOfMemory) {
					return rep, fmt.Errorf("heap %d: malloc %d bytes: %w", id, b.n, h.Err())
				}
				rep.OutOfMemory++
				continue
			}
			f.fill(&b)
			live = append(live, b)
			if len(live) > rep.PeakLive {
				rep.PeakLive = len(live)
			}
		case op < 8:
			j := rng.Intn(len(live))
			if err := f.verify(&live[j], live[j].n); err != nil {
				return rep, fmt.Errorf("heap %d op %d: %w", id, i, err)
			}
			h.Free(live[j].p)
			live[j] = live[len(live)-1]
			live = live[:len(live)-1]
		default:
			j := rng.Intn(len(live))
			ok, err := f.realloc(&live[j], 1+rng.Intn(cfg.MaxSize))
			if err != nil {
				return rep, fmt.Errorf("heap %d op %d: %w", id, i, err)
			}
			if !ok {
				rep.OutOfMemory++
			}
		}
	}

	if err := h.Check(); err != nil {
		return rep, fmt.Errorf("heap %d: %w", id, err)
	}
	for i := range live {
		if err := f.verify(&live[i], live[i].n); err != nil {
			return rep, fmt.Errorf("heap %d: %w", id, err)
		}
		h.Free(live[i].p)
	}
	if err := h.Check(); err != nil {
		return rep, fmt.Errorf("heap %d: %w", id, err)
	}
	rep.Stats = h.Stats()
	return rep, nil
}

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
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloudwego/segheap/malloc"
)

var traceSeed int64 = 1

func init() {
	cmd := newTraceCmd()
	cmd.Flags().Int64Var(&traceSeed, "seed", traceSeed, "Random seed for payload contents")
	rootCmd.AddCommand(cmd)
}

func newTraceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trace <file>",
		Short: "Replay a malloc-lab style trace",
		Long: `The trace command replays an allocation trace on a fresh heap.
Each operation is one line:

  a <id> <size>   allocate size bytes as id
  r <id> <size>   reallocate id to size bytes
  f <id>          free id

Any other line, such as the numeric header of malloc-lab traces, is ignored.
Payloads are verified before every free and reallocation.

Example:
  segheap trace amptjp-bal.rep
  segheap trace realloc-bal.rep --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open trace: %w", err)
			}
			defer f.Close()
			return runTrace(f, os.Stdout)
		},
	}
}

type traceOp struct {
	kind byte // 'a', 'r' or 'f'
	id   int
	size int
	line int
}

// parseTrace reads the operations of a trace.
func parseTrace(r io.Reader) ([]traceOp, error) {
	var ops []traceOp
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || len(fields[0]) != 1 {
			continue
		}
		op := traceOp{kind: fields[0][0], line: line}
		want := 3
		switch op.kind {
		case 'a', 'r':
		case 'f':
			want = 2
		default:
			continue
		}
		if len(fields) != want {
			return nil, fmt.Errorf("line %d: %q: expected %d fields", line, sc.Text(), want)
		}
		var err error
		if op.id, err = strconv.Atoi(fields[1]); err != nil || op.id < 0 {
			return nil, fmt.Errorf("line %d: bad id %q", line, fields[1])
		}
		if want == 3 {
			if op.size, err = strconv.Atoi(fields[2]); err != nil || op.size < 0 {
				return nil, fmt.Errorf("line %d: bad size %q", line, fields[2])
			}
		}
		ops = append(ops, op)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return ops, nil
}

// traceReport is the result of a trace replay.
type traceReport struct {
	Ops      int          `json:"ops"`
	PeakLive int          `json:"peak_live_bytes"`
	Util     float64      `json:"utilization"`
	Stats    malloc.Stats `json:"stats"`
}

func runTrace(r io.Reader, w io.Writer) error {
	ops, err := parseTrace(r)
	if err != nil {
		return err
	}
	rep, err := replay(ops)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(w, rep)
	}
	fmt.Fprintf(w, "%d ops, peak payload %d bytes, utilization %.1f%%\n", rep.Ops, rep.PeakLive, rep.Util*100)
	printStats(w, rep.Stats)
	return nil
}

func replay(ops []traceOp) (traceReport, error) {
	rep := traceReport{Ops: len(ops)}
	maxSize := 1
	for _, op := range ops {
		if op.size > maxSize {
			maxSize = op.size
		}
	}

	h, err := newHeap()
	if err != nil {
		return rep, err
	}
	defer h.Close()
	f := newFiller(h, maxSize, traceSeed)
	defer f.release()

	live := make(map[int]*block)
	payload := 0
	for _, op := range ops {
		b := live[op.id]
		switch op.kind {
		case 'a':
			if b != nil {
				return rep, fmt.Errorf("line %d: id %d already allocated", op.line, op.id)
			}
			b = &block{n: op.size}
			if b.p = h.Malloc(op.size); b.p == malloc.Nil && op.size > 0 {
				return rep, fmt.Errorf("line %d: malloc %d bytes: %w", op.line, op.size, outOfMemory(h))
			}
			f.fill(b)
			live[op.id] = b
			payload += op.size
		case 'r':
			if b == nil {
				return rep, fmt.Errorf("line %d: realloc of unknown id %d", op.line, op.id)
			}
			old := b.n
			ok, err := f.realloc(b, op.size)
			if err != nil {
				return rep, fmt.Errorf("line %d: %w", op.line, err)
			}
			if !ok {
				return rep, fmt.Errorf("line %d: realloc %d bytes: %w", op.line, op.size, outOfMemory(h))
			}
			payload += op.size - old
		case 'f':
			if b == nil {
				return rep, fmt.Errorf("line %d: free of unknown id %d", op.line, op.id)
			}
			if err := f.verify(b, b.n); err != nil {
				return rep, fmt.Errorf("line %d: %w", op.line, err)
			}
			h.Free(b.p)
			delete(live, op.id)
			payload -= b.n
		}
		if payload > rep.PeakLive {
			rep.PeakLive = payload
		}
	}

	if err := h.Check(); err != nil {
		return rep, err
	}
	rep.Stats = h.Stats()
	if rep.Stats.HeapSize > 0 {
		rep.Util = float64(rep.PeakLive) / float64(rep.Stats.HeapSize)
	}
	return rep, nil
}

func outOfMemory(h *malloc.Heap) error {
	if err := h.Err(); err != nil {
		return err
	}
	return errors.New("out of memory")
}

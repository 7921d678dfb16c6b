// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/errors"
	"github.com/colmeta/metastore"
	"github.com/colmeta/metastore/internal/rate"
	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

const (
	minLatency = 10 * time.Nanosecond
	maxLatency = 10 * time.Second
)

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(minLatency.Nanoseconds(), maxLatency.Nanoseconds(), 1)
}

// recordLatency records d in h, clamped to the histogram's range.
func recordLatency(h *hdrhistogram.Histogram, d time.Duration) {
	d = min(max(d, minLatency), maxLatency)
	if err := h.RecordValue(d.Nanoseconds()); err != nil {
		// Clamping keeps d in range, so this should never happen.
		panic(fmt.Sprintf("recording latency %s: %s", d, err))
	}
}

// benchT implements the write benchmark.
type benchT struct {
	Root  *cobra.Command
	Write *cobra.Command

	opts            *metastore.Options
	count           int
	valueSize       int
	checkpointEvery int
	blockSize       int
	pageSize        int
	rateMBPerSec    float64
	plot            bool
	seed            uint64
}

func newBench(opts *metastore.Options) *benchT {
	b := &benchT{opts: opts}
	b.Root = &cobra.Command{
		Use:   "bench",
		Short: "benchmarks",
	}
	b.Write = &cobra.Command{
		Use:   "write <dir>",
		Short: "measure write and checkpoint latency",
		Long: `
Write --count random values of --value-size bytes to the store in <dir>,
creating it if needed. Every --checkpoint-every values the current chain is
closed and checkpointed as the root; each chain starts with the pointer to
the previous one. Prints latency percentiles of writes and checkpoints.
`,
		Args: cobra.ExactArgs(1),
		Run:  b.runWrite,
	}
	b.Root.AddCommand(b.Write)

	f := b.Write.Flags()
	f.IntVarP(&b.count, "count", "n", 10000, "number of values to write")
	f.IntVar(&b.valueSize, "value-size", 64, "size of each value")
	f.IntVar(&b.checkpointEvery, "checkpoint-every", 1000, "number of values per checkpoint")
	f.IntVar(&b.blockSize, "block-size", 0, "block size (0 for the default)")
	f.IntVar(&b.pageSize, "page-size", 0, "page size of a new store (0 for the default)")
	f.Float64Var(&b.rateMBPerSec, "rate", 0, "limit the write rate in MB/s (0 for unlimited)")
	f.BoolVar(&b.plot, "plot", false, "plot the checkpoint latencies")
	f.Uint64Var(&b.seed, "seed", 1, "seed for the random values")
	return b
}

func (b *benchT) runWrite(cmd *cobra.Command, args []string) {
	stdout, stderr := cmd.OutOrStdout(), cmd.OutOrStderr()
	if err := b.write(stdout, args[0]); err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
	}
}

func (b *benchT) write(w io.Writer, dir string) (err error) {
	if b.count <= 0 || b.valueSize < 0 || b.checkpointEvery <= 0 {
		return errors.New("--count and --checkpoint-every must be positive")
	}
	opts := *b.opts
	opts.ReadOnly = false
	opts.ErrorIfNotExists = false
	opts.BlockSize = b.blockSize
	opts.PageSize = b.pageSize
	st, err := metastore.Open(dir, &opts)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.CombineErrors(err, st.Close())
	}()

	var limiter *rate.Limiter
	if b.rateMBPerSec > 0 {
		r := b.rateMBPerSec * (1 << 20)
		limiter = rate.NewLimiter(r, r*0.1)
	}
	rng := rand.New(rand.NewPCG(0, b.seed))
	value := make([]byte, b.valueSize)

	writeHist := newHistogram()
	checkpointHist := newHistogram()
	var checkpointLatencies []float64
	prev := st.Root()
	start := crtime.NowMono()

	for written := 0; written < b.count; {
		wr, err := st.NewWriter()
		if err != nil {
			return err
		}
		root, err := wr.CurrentPointer()
		if err == nil {
			err = wr.WritePointer(prev)
		}
		for i := 0; err == nil && i < b.checkpointEvery && written < b.count; i++ {
			for j := range value {
				value[j] = byte(rng.Uint32())
			}
			if limiter != nil {
				limiter.Wait(float64(len(value)))
			}
			opStart := crtime.NowMono()
			if _, err = wr.Write(value); err == nil {
				recordLatency(writeHist, opStart.Elapsed())
				written++
			}
		}
		if cerr := st.CloseWriter(wr); err == nil {
			err = cerr
		}
		if err != nil {
			return errors.Wrapf(err, "after %d values", written)
		}

		opStart := crtime.NowMono()
		if err := st.Checkpoint(root); err != nil {
			return err
		}
		elapsed := opStart.Elapsed()
		recordLatency(checkpointHist, elapsed)
		checkpointLatencies = append(checkpointLatencies, float64(elapsed.Microseconds()))
		prev = root
	}
	elapsed := start.Elapsed()

	total := uint64(b.count) * uint64(b.valueSize)
	fmt.Fprintf(w, "wrote %d values (%s) in %s: %s/s\n", b.count,
		crhumanize.Bytes(total, crhumanize.Compact, crhumanize.OmitI),
		elapsed.Round(time.Millisecond),
		crhumanize.Bytes(uint64(float64(total)/max(elapsed.Seconds(), 1e-9)), crhumanize.Compact, crhumanize.OmitI))
	fmt.Fprintf(w, "root: %s\n", prev)
	if limiter != nil {
		fmt.Fprintf(w, "throttled %d times\n", limiter.Throttled())
	}

	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader([]string{"op", "count", "mean", "p50", "p95", "p99", "max"})
	for _, h := range []struct {
		name string
		hist *hdrhistogram.Histogram
	}{
		{"write", writeHist},
		{"checkpoint", checkpointHist},
	} {
		tbl.Append([]string{
			h.name,
			fmt.Sprint(h.hist.TotalCount()),
			time.Duration(h.hist.Mean()).String(),
			time.Duration(h.hist.ValueAtPercentile(50)).String(),
			time.Duration(h.hist.ValueAtPercentile(95)).String(),
			time.Duration(h.hist.ValueAtPercentile(99)).String(),
			time.Duration(h.hist.Max()).String(),
		})
	}
	tbl.Render()
	fmt.Fprintf(w, "%s\n", st.Metrics())

	if b.plot && len(checkpointLatencies) > 1 {
		fmt.Fprintln(w, asciigraph.Plot(checkpointLatencies,
			asciigraph.Height(10), asciigraph.Caption("checkpoint latency (µs)")))
	}
	return nil
}

// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/errors"
	"github.com/colmeta/metastore/bitpack"
	"github.com/colmeta/metastore/internal/compression"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// bitpackT implements codec analysis tools.
type bitpackT struct {
	Root    *cobra.Command
	Width   *cobra.Command
	Analyze *cobra.Command

	typ string
}

func newBitpack() *bitpackT {
	b := &bitpackT{}
	b.Root = &cobra.Command{
		Use:   "bitpack",
		Short: "bit-packing codec tools",
	}
	b.Width = &cobra.Command{
		Use:   "width <values>",
		Short: "print the packing widths of a list of integers",
		Long: `
Print the minimum bit width, the width after the effective width policy and
the frame of reference width of the given integers, interpreted as --type.
`,
		Args: cobra.MinimumNArgs(1),
		Run:  b.runWidth,
	}
	b.Analyze = &cobra.Command{
		Use:   "analyze <file>",
		Short: "compare packed sizes with general-purpose compression",
		Long: `
Read whitespace separated integers of --type from <file> ("-" for stdin) and
print the size of the raw, bit-packed and frame-of-reference encodings, both
uncompressed and after each compression preset.
`,
		Args: cobra.ExactArgs(1),
		Run:  b.runAnalyze,
	}
	b.Root.AddCommand(b.Width, b.Analyze)
	for _, cmd := range []*cobra.Command{b.Width, b.Analyze} {
		cmd.Flags().StringVar(
			&b.typ, "type", "int64", "integer type: int8..int64 or uint8..uint64")
	}
	return b
}

func (b *bitpackT) runWidth(cmd *cobra.Command, args []string) {
	stdout, stderr := cmd.OutOrStdout(), cmd.OutOrStderr()
	var err error
	switch b.typ {
	case "int8":
		err = printWidths[int8](stdout, args)
	case "int16":
		err = printWidths[int16](stdout, args)
	case "int32":
		err = printWidths[int32](stdout, args)
	case "int64":
		err = printWidths[int64](stdout, args)
	case "uint8":
		err = printWidths[uint8](stdout, args)
	case "uint16":
		err = printWidths[uint16](stdout, args)
	case "uint32":
		err = printWidths[uint32](stdout, args)
	case "uint64":
		err = printWidths[uint64](stdout, args)
	default:
		err = errors.Newf("unknown type %q", b.typ)
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
	}
}

func (b *bitpackT) runAnalyze(cmd *cobra.Command, args []string) {
	stdout, stderr := cmd.OutOrStdout(), cmd.OutOrStderr()
	fields, err := readFields(cmd.InOrStdin(), args[0])
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	switch b.typ {
	case "int8":
		err = analyze[int8](stdout, fields)
	case "int16":
		err = analyze[int16](stdout, fields)
	case "int32":
		err = analyze[int32](stdout, fields)
	case "int64":
		err = analyze[int64](stdout, fields)
	case "uint8":
		err = analyze[uint8](stdout, fields)
	case "uint16":
		err = analyze[uint16](stdout, fields)
	case "uint32":
		err = analyze[uint32](stdout, fields)
	case "uint64":
		err = analyze[uint64](stdout, fields)
	default:
		err = errors.Newf("unknown type %q", b.typ)
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
	}
}

func readFields(stdin io.Reader, name string) ([]string, error) {
	r := stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		defer f.Close()
		r = f
	}
	var fields []string
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		fields = append(fields, sc.Text())
	}
	return fields, errors.WithStack(sc.Err())
}

func parseValues[T bitpack.Integer](fields []string) ([]T, error) {
	var zero T
	signed := ^zero < 0
	bitSize := binary.Size(zero) * 8
	values := make([]T, len(fields))
	for i, f := range fields {
		if signed {
			v, err := strconv.ParseInt(f, 0, bitSize)
			if err != nil {
				return nil, errors.Wrapf(err, "value %d", i)
			}
			values[i] = T(v)
		} else {
			v, err := strconv.ParseUint(f, 0, bitSize)
			if err != nil {
				return nil, errors.Wrapf(err, "value %d", i)
			}
			values[i] = T(v)
		}
	}
	return values, nil
}

func printWidths[T bitpack.Integer](w io.Writer, fields []string) error {
	values, err := parseValues[T](fields)
	if err != nil {
		return err
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo, hi = min(lo, v), max(hi, v)
	}
	minimum := bitpack.MinimumBitWidth(values)
	fmt.Fprintf(w, "range: [%d, %d]\n", lo, hi)
	fmt.Fprintf(w, "width: %s\n", minimum)
	fmt.Fprintf(w, "for: %d+%s\n", lo, bitpack.FORWidth(lo, hi))
	fmt.Fprintf(w, "size: %d bytes packed, %d bytes with frame of reference, %d bytes raw\n",
		bitpack.RequiredSize(len(values), minimum),
		bitpack.RequiredSize(len(values), bitpack.FORWidth(lo, hi)),
		len(values)*binary.Size(lo))
	return nil
}

// encoding is one serialized form of the analyzed values.
type encoding struct {
	name  string
	width string
	data  []byte
}

func analyze[T bitpack.Integer](w io.Writer, fields []string) error {
	values, err := parseValues[T](fields)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return errors.New("no values")
	}

	size := binary.Size(values[0])
	raw := make([]byte, 0, len(values)*size)
	var tmp [8]byte
	for _, v := range values {
		binary.LittleEndian.PutUint64(tmp[:], uint64(v))
		raw = append(raw, tmp[:size]...)
	}

	width := bitpack.MinimumBitWidth(values)
	packed := make([]byte, bitpack.RequiredSize(len(values), width))
	bitpack.Pack(packed, values, width)

	forPacked := make([]byte, bitpack.RequiredSize(len(values), 64))
	frameOfReference, forWidth := bitpack.EncodeFOR(forPacked, values)
	forPacked = forPacked[:bitpack.RequiredSize(len(values), forWidth)]

	// Verify before reporting.
	check := make([]T, len(values))
	bitpack.Unpack(check, packed, width, 0, false /* skipSignExtension */)
	for i := range values {
		if check[i] != values[i] {
			return errors.AssertionFailedf("value %d: packed %d, unpacked %d", i, values[i], check[i])
		}
	}
	bitpack.DecodeFOR(check, forPacked, forWidth, frameOfReference)
	for i := range values {
		if check[i] != values[i] {
			return errors.AssertionFailedf("value %d: encoded %d, decoded %d", i, values[i], check[i])
		}
	}

	encodings := []encoding{
		{name: "raw", width: bitpack.Width(size * 8).String(), data: raw},
		{name: "packed", width: width.String(), data: packed},
		{name: "for", width: fmt.Sprintf("%d+%s", frameOfReference, forWidth), data: forPacked},
	}

	fmt.Fprintf(w, "%d values\n", len(values))
	tbl := tablewriter.NewWriter(w)
	header := []string{"Encoding", "Width"}
	for _, s := range compression.Presets {
		header = append(header, s.String())
	}
	tbl.SetHeader(header)
	tbl.SetAutoFormatHeaders(false)
	var buf []byte
	for _, e := range encodings {
		row := []string{e.name, e.width}
		for _, s := range compression.Presets {
			c := compression.GetCompressor(s)
			buf, _ = c.Compress(buf, e.data)
			c.Close()
			row = append(row, string(crhumanize.Bytes(uint64(len(buf)), crhumanize.Compact, crhumanize.OmitI)))
		}
		tbl.Append(row)
	}
	tbl.Render()
	return nil
}

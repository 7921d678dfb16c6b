// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/errors"
	"github.com/colmeta/metastore"
	"github.com/colmeta/metastore/metadata"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// storeT implements store-level and chain-level tools, including both
// configuration state and the commands themselves.
type storeT struct {
	Root  *cobra.Command
	Info  *cobra.Command
	Chain *cobra.Command
	Dump  *cobra.Command
	Read  *cobra.Command

	opts      *metastore.Options
	blockSize int
	ptr       pointerFlag
	payload   int
	format    string
	count     int
}

func newStore(opts *metastore.Options) *storeT {
	s := &storeT{opts: opts}

	s.Root = &cobra.Command{
		Use:   "store",
		Short: "store introspection tools",
	}
	s.Info = &cobra.Command{
		Use:   "info <dir>",
		Short: "print store header and block metrics",
		Long: `
Print the page size, page count and root pointer of the store in <dir>,
followed by its block metrics.
`,
		Args: cobra.ExactArgs(1),
		Run:  s.runInfo,
	}
	s.Root.AddCommand(s.Info)

	s.Chain = &cobra.Command{
		Use:   "chain",
		Short: "block chain introspection tools",
	}
	s.Dump = &cobra.Command{
		Use:   "dump <dir>",
		Short: "print the blocks of a chain",
		Long: `
Print every block of the chain starting at the store's root pointer, or at
--ptr if given. Each row shows the block, its forward link and, with
--payload=N, the first N payload bytes.
`,
		Args: cobra.ExactArgs(1),
		Run:  s.runDump,
	}
	s.Read = &cobra.Command{
		Use:   "read <dir>",
		Short: "decode values from a chain",
		Long: `
Decode --count values of the given --format from the stream starting at the
store's root pointer, or at --ptr if given. Formats are strings (uvarint
length prefixed), uvarint, uint64 and pointer.
`,
		Args: cobra.ExactArgs(1),
		Run:  s.runRead,
	}
	s.Chain.AddCommand(s.Dump, s.Read)

	for _, cmd := range []*cobra.Command{s.Info, s.Dump, s.Read} {
		cmd.Flags().IntVar(
			&s.blockSize, "block-size", metadata.DefaultBlockSize, "block size the store was written with")
	}
	for _, cmd := range []*cobra.Command{s.Dump, s.Read} {
		cmd.Flags().Var(
			&s.ptr, "ptr", "start pointer (page.slot+offset); defaults to the root pointer")
	}
	s.Dump.Flags().IntVar(
		&s.payload, "payload", 0, "number of leading payload bytes to print per block")
	s.Read.Flags().StringVar(
		&s.format, "format", "strings", "value format: strings, uvarint, uint64 or pointer")
	s.Read.Flags().IntVarP(
		&s.count, "count", "n", 1, "number of values to decode")
	return s
}

func (s *storeT) open(dir string) (*metastore.Store, error) {
	opts := *s.opts
	opts.BlockSize = s.blockSize
	return metastore.Open(dir, &opts)
}

// start returns the pointer a chain command starts from.
func (s *storeT) start(st *metastore.Store) (metastore.MetaBlockPointer, error) {
	ptr := st.Root()
	if s.ptr.set {
		ptr = s.ptr.ptr
	}
	if !ptr.IsValid() {
		return ptr, errors.New("store has no root pointer; use --ptr")
	}
	return ptr, nil
}

func (s *storeT) runInfo(cmd *cobra.Command, args []string) {
	stdout, stderr := cmd.OutOrStdout(), cmd.OutOrStderr()
	st, err := s.open(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	defer st.Close()

	m := st.Manager()
	pageSize := m.Provider().PageSize()
	fmt.Fprintf(stdout, "page-size: %s\n", crhumanize.Bytes(uint64(pageSize), crhumanize.Compact, crhumanize.OmitI))
	fmt.Fprintf(stdout, "block-size: %d (%d blocks per page)\n", m.BlockSize(), m.BlocksPerPage())
	fmt.Fprintf(stdout, "pages: %d\n", m.Provider().NumPages())
	fmt.Fprintf(stdout, "root: %s\n", st.Root())
	fmt.Fprintf(stdout, "%s\n", st.Metrics().Blocks)
}

func (s *storeT) runDump(cmd *cobra.Command, args []string) {
	stdout, stderr := cmd.OutOrStdout(), cmd.OutOrStderr()
	st, err := s.open(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	defer st.Close()
	start, err := s.start(st)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	if err := dumpChain(stdout, st.Manager(), start, s.payload); err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
	}
}

// dumpChain renders the chain starting at start as a table. The first block
// is reported from start.Offset; later blocks from their header.
func dumpChain(w io.Writer, m *metadata.Manager, start metastore.MetaBlockPointer, payload int) error {
	if start.Offset < metadata.HeaderSize || int(start.Offset) >= m.BlockSize() {
		return errors.Newf("pointer %s: offset out of range for block size %d", start, m.BlockSize())
	}
	tbl := tablewriter.NewWriter(w)
	header := []string{"Block", "Next", "Offset", "Bytes"}
	if payload > 0 {
		header = append(header, "Payload")
	}
	tbl.SetHeader(header)
	tbl.SetAutoFormatHeaders(false)

	var blocks int
	var total int
	offset := int(start.Offset)
	err := metadata.WalkChain(m, m.Narrow(start), func(b metadata.BlockInfo) error {
		data := b.Payload[offset-metadata.HeaderSize:]
		row := []string{
			b.ID.String(),
			b.Next.String(),
			fmt.Sprintf("%d", offset),
			fmt.Sprintf("%d", len(data)),
		}
		if payload > 0 {
			row = append(row, hex.EncodeToString(data[:min(payload, len(data))]))
		}
		tbl.Append(row)
		blocks++
		total += len(data)
		offset = metadata.HeaderSize
		return nil
	})
	tbl.Render()
	fmt.Fprintf(w, "%d blocks, %s of payload\n", blocks,
		crhumanize.Bytes(uint64(total), crhumanize.Compact, crhumanize.OmitI))
	return err
}

func (s *storeT) runRead(cmd *cobra.Command, args []string) {
	stdout, stderr := cmd.OutOrStdout(), cmd.OutOrStderr()
	st, err := s.open(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	defer st.Close()
	start, err := s.start(st)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	r, err := st.NewReader(start)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	defer func() { _ = st.CloseReader(r) }()

	for i := 0; i < s.count; i++ {
		pos, _ := r.CurrentPointer()
		var v string
		switch s.format {
		case "strings":
			v, err = r.ReadString()
			v = fmt.Sprintf("%q", v)
		case "uvarint":
			var u uint64
			u, err = r.ReadUvarint()
			v = fmt.Sprint(u)
		case "uint64":
			var u uint64
			u, err = r.ReadUint64()
			v = fmt.Sprint(u)
		case "pointer":
			var p metastore.MetaBlockPointer
			p, err = r.ReadPointer()
			v = p.String()
		default:
			err = errors.Newf("unknown format %q", s.format)
		}
		if err != nil {
			fmt.Fprintf(stderr, "value %d: %s\n", i, err)
			return
		}
		fmt.Fprintf(stdout, "%s: %s\n", pos, v)
	}
}

// pointerFlag is a pflag.Value holding a MetaBlockPointer.
type pointerFlag struct {
	ptr metastore.MetaBlockPointer
	set bool
}

func (f *pointerFlag) String() string {
	if !f.set {
		return ""
	}
	return f.ptr.String()
}

func (f *pointerFlag) Type() string {
	return "pointer"
}

func (f *pointerFlag) Set(s string) error {
	ptr, err := metadata.ParseMetaBlockPointer(s)
	if err != nil {
		return err
	}
	f.ptr, f.set = ptr, true
	return nil
}

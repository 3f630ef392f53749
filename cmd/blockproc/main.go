// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Command blockproc drives a blockproc.Processor over one or more
// input files, for manual exercising and smoke testing of the
// package. Files may be local, on S3 or a URL, mirroring the teacher
// CLI's input handling.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"

	"cloudeng.io/cmdutil"
	"cloudeng.io/cmdutil/subcmd"
	"cloudeng.io/errors"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/schollz/progressbar/v2"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/kestrelfs/blockproc"
	"github.com/kestrelfs/blockproc/codec"
	"github.com/kestrelfs/blockproc/inode"
	"github.com/kestrelfs/blockproc/store"
)

type packFlags struct {
	Workers     int  `subcmd:"workers,4,'number of compression worker goroutines, 0 or 1 for synchronous'"`
	BlockSize   int  `subcmd:"block-size,131072,'block size in bytes'"`
	MaxBacklog  int  `subcmd:"max-backlog,64,'maximum in-flight blocks'"`
	ProgressBar bool `subcmd:"progress,true,'display a progress bar'"`
	Verbose     bool `subcmd:"verbose,false,'verbose debug/trace information'"`
	Output      string `subcmd:"output,out.blk,'output file'"`
}

var cmdSet *subcmd.CommandSet

func init() {
	defaultWorkers := map[string]interface{}{
		"workers": runtime.GOMAXPROCS(-1),
	}

	packCmd := subcmd.NewCommand("pack",
		subcmd.MustRegisterFlagStruct(&packFlags{}, defaultWorkers, nil),
		pack, subcmd.AtLeastNArguments(1))
	packCmd.Document(`pack one or more files into a deduplicated, compressed block stream. Files may be local, on S3 or a URL.`)

	cmdSet = subcmd.NewCommandSet(packCmd)
	cmdSet.Document(`exercise the blockproc package's concurrent block processor.`)

	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(
			s3file.NewDefaultProvider(session.Options{}), s3file.Options{})
	})
}

func main() {
	cmdSet.MustDispatch(context.Background())
}

func openFileOrURL(ctx context.Context, name string) (io.Reader, int64, func(context.Context) error, error) {
	if strings.HasPrefix(name, "http") {
		resp, err := http.Get(name)
		if err != nil {
			return nil, 0, nil, err
		}
		return resp.Body,
			resp.ContentLength,
			func(context.Context) error {
				resp.Body.Close()
				return nil
			},
			err
	}
	info, err := file.Stat(ctx, name)
	if err != nil {
		return nil, 0, nil, err
	}
	f, err := file.Open(ctx, name)
	if err != nil {
		return nil, 0, nil, err
	}
	return f.Reader(ctx), info.Size(), f.Close, nil
}

func progressBar(ctx context.Context, wr io.Writer, ch chan blockproc.Progress, size int64) {
	bar := progressbar.NewOptions64(size,
		progressbar.OptionSetBytes64(size),
		progressbar.OptionSetWriter(wr),
		progressbar.OptionSetPredictTime(true))
	bar.RenderBlank()
	for {
		select {
		case p, ok := <-ch:
			if !ok {
				fmt.Fprintf(wr, "\n")
				return
			}
			bar.Add(p.Compressed)
		case <-ctx.Done():
			return
		}
	}
}

func pack(ctx context.Context, values interface{}, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cl := values.(*packFlags)
	cmdutil.HandleSignals(cancel, os.Interrupt)

	out, err := os.Create(cl.Output)
	if err != nil {
		return err
	}

	writer := store.New(out, 4096)
	fragTable := store.NewFragmentTable(writer)
	compressor := codec.NewZstd(0)

	var (
		progressCh chan blockproc.Progress
		progressWg sync.WaitGroup
	)
	isTTY := terminal.IsTerminal(int(os.Stdout.Fd()))
	if cl.ProgressBar {
		progressCh = make(chan blockproc.Progress, cl.Workers+1)
		wr := os.Stdout
		if !isTTY {
			wr = os.Stderr
		}
		progressWg.Add(1)
		go func() {
			defer progressWg.Done()
			progressBar(ctx, wr, progressCh, 0)
		}()
	}

	opts := []blockproc.Option{
		blockproc.WithWorkers(cl.Workers),
		blockproc.WithMaxBacklog(cl.MaxBacklog),
		blockproc.WithVerbose(cl.Verbose),
	}
	if progressCh != nil {
		opts = append(opts, blockproc.WithProgress(progressCh))
	}

	proc, err := blockproc.New(cl.BlockSize, compressor, writer, fragTable, func() blockproc.Inode { return inode.New() }, opts...)
	if err != nil {
		return err
	}

	errs := &errors.M{}
	for _, name := range args {
		rd, _, cleanup, err := openFileOrURL(ctx, name)
		if err != nil {
			errs.Append(err)
			continue
		}
		if err := packOne(proc, rd); err != nil {
			errs.Append(err)
		}
		errs.Append(cleanup(ctx))
	}

	errs.Append(proc.Destroy())

	if progressCh != nil {
		close(progressCh)
		progressWg.Wait()
	}

	var super blockproc.FragmentSuperblockFields
	errs.Append(proc.WriteFragmentTable(&super))
	errs.Append(out.Close())

	stats := proc.GetStats()
	log.Printf("data blocks: %d, fragment blocks: %d, sparse blocks: %d, fragments: %d/%d, fragment table: offset=%d count=%d",
		stats.DataBlockCount, stats.FragBlockCount, stats.SparseBlockCount,
		stats.ActualFragCount, stats.TotalFragCount,
		super.FragmentTableStart, super.FragmentTableCount)

	return errs.Err()
}

func packOne(proc *blockproc.Processor, rd io.Reader) error {
	fi, err := proc.BeginFile(0)
	if err != nil {
		return err
	}
	_ = fi

	buf := make([]byte, 1<<16)
	for {
		n, rerr := rd.Read(buf)
		if n > 0 {
			if _, werr := proc.Append(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}
	return proc.EndFile()
}

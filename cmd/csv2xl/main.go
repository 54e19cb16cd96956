// Copyright 2021, 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

// Command csv2xl collects CSV files into the sheets of one spreadsheet.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/UNO-SOFT/zlog/v2"
	"github.com/google/renameio/v2"
	"github.com/peterbourgon/ff/v3/ffcli"
	"golang.org/x/sync/errgroup"

	"github.com/UNO-SOFT/excel"
	"github.com/UNO-SOFT/excel/dsv"
)

var verbose zlog.VerboseVar
var logger = zlog.NewLogger(zlog.MaybeConsoleHandler(&verbose, os.Stderr)).SLog()

func main() {
	if err := Main(); err != nil {
		logger.Error("MAIN", "error", err)
		os.Exit(1)
	}
}

func Main() error {
	fs := flag.NewFlagSet("csv2xl", flag.ContinueOnError)
	fs.Var(&verbose, "v", "logging verbosity")
	flagEnc := fs.String("charset", dsv.EncName, "csv charset name")
	flagDelim := fs.String("delim", "", "csv delimiter: comma, semicolon or tab (default: sniffed)")
	flagNumbers := fs.Bool("parse-numbers", false, "store numbers as numbers, not text")
	flagDates := fs.Bool("parse-dates", false, "store dates as dates, not text")
	flagPassword := fs.String("password", "", "encrypt the output with this password")
	flagHeader := fs.Bool("header", true, "the first row is the header")

	app := ffcli.Command{Name: "csv2xl", FlagSet: fs,
		ShortUsage: "csv2xl [flags] out.xlsx|out.xls in1.csv [name:in2.csv ...]",
		Exec: func(ctx context.Context, args []string) error {
			if len(args) < 2 {
				return flag.ErrHelp
			}
			opts := dsv.Options{Charset: *flagEnc, ParseNumbers: *flagNumbers, ParseDates: *flagDates}
			if *flagDelim != "" {
				t, err := excel.ParseCsvType(*flagDelim)
				if err != nil {
					return err
				}
				if opts.Comma, err = t.Comma(); err != nil {
					return err
				}
			}
			var saveOpts excel.SaveOptions
			fn := args[0]
			switch strings.ToLower(filepath.Ext(fn)) {
			case ".xls":
				saveOpts = excel.XlsSaveOptions{Password: *flagPassword}
			default:
				saveOpts = excel.XlsxSaveOptions{Password: *flagPassword}
			}

			var out io.Writer = os.Stdout
			if !(fn == "" || fn == "-") {
				fh, err := renameio.NewPendingFile(fn, renameio.WithPermissions(0o644))
				if err != nil {
					return err
				}
				defer fh.Cleanup()
				out = fh
			}
			w := excel.NewWriter(out, saveOpts)

			// Sheets are created in argument order, their rows copied concurrently.
			grp, grpCtx := errgroup.WithContext(ctx)
			for i, fn := range args[1:] {
				sheetName := fmt.Sprintf("Sheet%d", i+1)
				if i := strings.IndexByte(fn, ':'); i >= 0 {
					sheetName, fn = fn[:i], fn[i+1:]
				} else if fn != "" && fn != "-" {
					sheetName = strings.TrimSuffix(filepath.Base(fn), filepath.Ext(fn))
				}
				src, err := openSheet(w, sheetName, fn, opts, *flagHeader)
				if err != nil {
					grp.Wait()
					return fmt.Errorf("%q: %w", fn, err)
				}
				grp.Go(func() error {
					defer src.Close()
					if err := src.copy(grpCtx); err != nil {
						return fmt.Errorf("%q: %w", fn, err)
					}
					return nil
				})
			}
			if err := grp.Wait(); err != nil {
				return err
			}

			if err := w.Close(); err != nil {
				return err
			}
			if fh, ok := out.(*renameio.PendingFile); ok {
				return fh.CloseAtomicallyReplace()
			}
			return nil
		},
	}

	if err := app.Parse(os.Args[1:]); err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return app.Run(ctx)
}

// source is an opened CSV file with its sheet already created.
type source struct {
	io.Closer
	cr    *csv.Reader
	sheet excel.Sheet
	opts  dsv.Options
	fn    string
}

func openSheet(w excel.Writer, sheetName, fn string, opts dsv.Options, header bool) (*source, error) {
	fh := os.Stdin
	if !(fn == "" || fn == "-") {
		var err error
		if fh, err = os.Open(fn); err != nil {
			return nil, fmt.Errorf("open %q: %w", fn, err)
		}
	}
	src := source{Closer: fh, opts: opts, fn: fn}
	var err error
	if src.cr, err = dsv.NewReader(fh, opts); err != nil {
		fh.Close()
		return nil, err
	}

	var cols []excel.Column
	row, err := src.cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			src.sheet, err = w.NewSheet(sheetName, nil)
		}
		if err != nil {
			fh.Close()
			return nil, err
		}
		return &src, nil
	}
	var first []any
	if header {
		cols = make([]excel.Column, len(row))
		for i, r := range row {
			cols[i].Name = r
		}
	} else {
		first = cellsOf(first, row, opts)
	}
	if src.sheet, err = w.NewSheet(sheetName, cols); err == nil && first != nil {
		err = src.sheet.AppendRow(first...)
	}
	if err != nil {
		fh.Close()
		return nil, err
	}
	return &src, nil
}

func (src *source) copy(ctx context.Context) error {
	var rowI []any
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := src.cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		rowI = cellsOf(rowI[:0], row, src.opts)
		if err := src.sheet.AppendRow(rowI...); err != nil {
			return err
		}
	}
	slog.Debug("copied", "file", src.fn)
	return src.sheet.Close()
}

func cellsOf(dst []any, row []string, opts dsv.Options) []any {
	for _, s := range row {
		dst = append(dst, dsv.ParseCell(s, opts))
	}
	return dst
}

// Copyright 2021, 2026 Tamás Gulácsi.
//
// SPDX-License-Identifier: Apache-2.0

// Command xlconv converts between XLSX, XLS and CSV files, and dumps their cells.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/UNO-SOFT/zlog/v2"
	"github.com/peterbourgon/ff/v3/ffcli"

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

type config struct {
	password, outPassword string
	delim, charset        string
	sheet                 string
	parseNumbers          bool
	parseDates            bool
}

func Main() error {
	var cfg config
	fs := flag.NewFlagSet("xlconv", flag.ContinueOnError)
	fs.Var(&verbose, "v", "logging verbosity")
	fs.StringVar(&cfg.password, "password", "", "password of the input")
	fs.StringVar(&cfg.outPassword, "out-password", "", "encrypt the output (xlsx, xls) with this password")
	fs.StringVar(&cfg.delim, "delim", "", "csv delimiter: comma, semicolon or tab")
	fs.StringVar(&cfg.charset, "charset", dsv.EncName, "csv charset name")
	fs.StringVar(&cfg.sheet, "sheet", "", "name of the sheet to write to csv (default: the active one)")
	fs.BoolVar(&cfg.parseNumbers, "parse-numbers", false, "csv input: store numbers as numbers")
	fs.BoolVar(&cfg.parseDates, "parse-dates", false, "csv input: store dates as dates")

	dumpCmd := ffcli.Command{Name: "dump",
		ShortUsage: "xlconv dump in.xlsx",
		ShortHelp:  "print row,col,kind,value of each non-empty cell of the active sheet",
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return flag.ErrHelp
			}
			s, err := cfg.open(args[0])
			if err != nil {
				return err
			}
			return dump(os.Stdout, s)
		},
	}

	app := ffcli.Command{Name: "xlconv", FlagSet: fs,
		ShortUsage:  "xlconv [flags] in.xlsx|in.xls|in.csv out.xlsx|out.xls|out.csv",
		Subcommands: []*ffcli.Command{&dumpCmd},
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 2 {
				return flag.ErrHelp
			}
			s, err := cfg.open(args[0])
			if err != nil {
				return err
			}
			if cfg.sheet != "" {
				wb := s.Workbook()
				for i, ws := range wb.Worksheets() {
					if strings.EqualFold(ws.Name, cfg.sheet) {
						if err := wb.SetActive(i); err != nil {
							return err
						}
						break
					}
				}
				if !strings.EqualFold(s.Worksheet().Name, cfg.sheet) {
					return fmt.Errorf("%w: no sheet named %q", excel.ErrInvalidArgument, cfg.sheet)
				}
			}
			opts, err := cfg.saveOptions(args[1])
			if err != nil {
				return err
			}
			if args[1] == "-" {
				bw := bufio.NewWriter(os.Stdout)
				if err := s.Write(bw, opts); err != nil {
					return err
				}
				return bw.Flush()
			}
			slog.Debug("convert", "from", args[0], "to", args[1], "format", opts.Format())
			return s.SaveAs(args[1], opts)
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

func (cfg config) csvType() (excel.CsvType, error) {
	return excel.ParseCsvType(cfg.delim)
}

func (cfg config) open(fn string) (*excel.Spreadsheet, error) {
	var r io.Reader = os.Stdin
	if fn != "-" {
		fh, err := os.Open(fn)
		if err != nil {
			return nil, err
		}
		defer fh.Close()
		r = fh
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var opts excel.LoadOptions
	switch f := excel.DetectFormat(b, fn); f {
	case excel.Xlsx:
		opts = excel.XlsxLoadOptions{Password: cfg.password}
	case excel.Xls:
		opts = excel.XlsLoadOptions{Password: cfg.password}
	case excel.Csv:
		o := excel.CsvLoadOptions{Charset: cfg.charset, ParseNumbers: cfg.parseNumbers, ParseDates: cfg.parseDates}
		if cfg.delim == "" {
			o.CsvType = sniffed(b)
		} else if o.CsvType, err = cfg.csvType(); err != nil {
			return nil, err
		}
		opts = o
	}
	return excel.OpenReader(bytes.NewReader(b), opts)
}

// sniffed returns the CsvType of the first line's delimiter.
func sniffed(b []byte) excel.CsvType {
	t, err := excel.ParseCsvType(string(dsv.Sniff(b)))
	if err != nil {
		return excel.CommaDelimited
	}
	return t
}

func (cfg config) saveOptions(fn string) (excel.SaveOptions, error) {
	if fn == "-" {
		fn = ".csv"
	}
	opts, err := excel.SaveOptionsFor(fn)
	if err != nil {
		return nil, err
	}
	switch o := opts.(type) {
	case excel.XlsxSaveOptions:
		return excel.XlsxSaveOptions{Password: cfg.outPassword}, nil
	case excel.XlsSaveOptions:
		return excel.XlsSaveOptions{Password: cfg.outPassword}, nil
	case excel.CsvSaveOptions:
		o.Charset = cfg.charset
		if cfg.delim != "" {
			if o.CsvType, err = cfg.csvType(); err != nil {
				return nil, err
			}
		}
		return o, nil
	}
	return opts, nil
}

func dump(w io.Writer, s *excel.Spreadsheet) error {
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)
	ws := s.Worksheet()
	fmt.Fprintf(bw, "# %s: %d rows, %d columns\n", ws.Name, ws.RowCount(), ws.MaxUsedColumns())
	for i, r := range ws.Rows {
		for _, j := range r.Columns() {
			c := r.Cell(j)
			if err := cw.Write([]string{strconv.Itoa(i), strconv.Itoa(j), c.Kind().String(), c.String()}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

package main

// This file defines tableWriter and tableReader. tableWriter dumps the raw
// cell → gene → UMI table into a recordio file before any merging, and
// tableReader loads it back, so that merging and filtering can be rerun
// with different options without reading the BAM file again.

import (
	"bytes"
	"context"
	"encoding/gob"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/grailbio/scrna/cells"
	"github.com/grailbio/scrna/umi"
)

const (
	// <fileVersionHeader, fileVersion> is stored in a recordio header.
	fileVersionHeader = "scrnaversion"
	fileVersion       = "SCRNA_TABLE_V1"
)

// cellRecord is one recordio record: the raw table of one cell.
type cellRecord struct {
	Barcode string
	Genes   map[string]map[string]umi.Record
}

// tableTrailer is stored in the trailer section of the recordio file.
type tableTrailer struct {
	// Stats holds the counts of reads that never reached the table.
	Stats cells.Stats
	// Cells is the # of cell records.
	Cells int
}

type tableWriter struct {
	out file.File
	w   recordio.Writer
	n   int
}

func newTableWriter(ctx context.Context, path string) (*tableWriter, error) {
	recordiozstd.Init()
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.E(err, "create", path)
	}
	w := recordio.NewWriter(out.Writer(ctx), recordio.WriterOpts{
		Transformers: []string{recordiozstd.Name},
	})
	w.AddHeader(fileVersionHeader, fileVersion)
	w.AddHeader(recordio.KeyTrailer, true)
	return &tableWriter{out: out, w: w}, nil
}

// Write appends the table of one cell.
func (w *tableWriter) Write(cb string, genes cells.Genes) error {
	rec := cellRecord{Barcode: cb, Genes: make(map[string]map[string]umi.Record, len(genes))}
	for gene, umis := range genes {
		m := make(map[string]umi.Record, len(umis))
		for umiSeq, r := range umis {
			m[umiSeq] = *r
		}
		rec.Genes[gene] = m
	}
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(rec); err != nil {
		return err
	}
	w.w.Append(b.Bytes())
	w.n++
	return nil
}

// Close writes the trailer and closes the file. It must be called exactly
// once, after all cells are written.
func (w *tableWriter) Close(ctx context.Context, stats cells.Stats) error {
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(tableTrailer{Stats: stats, Cells: w.n}); err != nil {
		return err
	}
	w.w.SetTrailer(b.Bytes())
	once := errors.Once{}
	once.Set(w.w.Finish())
	once.Set(w.out.Close(ctx))
	return once.Err()
}

// dumpTable writes every cell of c, which must not have been merged yet.
func dumpTable(ctx context.Context, path string, c *cells.Container, stats cells.Stats) error {
	w, err := newTableWriter(ctx, path)
	if err != nil {
		return err
	}
	for id, cb := range c.CellBarcodesRaw() {
		if err := w.Write(cb, c.CellGenes(id)); err != nil {
			_ = w.Close(ctx, stats)
			return errors.E(err, "write", path)
		}
	}
	return w.Close(ctx, stats)
}

// loadTable adds the table dumped at path to c and returns the stats stored
// with it.
func loadTable(ctx context.Context, path string, c *cells.Container) (stats cells.Stats, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return stats, errors.E(err, "open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	recordiozstd.Init()
	r := recordio.NewScanner(in.Reader(ctx), recordio.ScannerOpts{})
	versionFound := false
	for _, kv := range r.Header() {
		if kv.Key == fileVersionHeader {
			if v, _ := kv.Value.(string); v != fileVersion {
				return stats, errors.E(errors.Invalid, "table file version mismatch, got", v, "expect", fileVersion)
			}
			versionFound = true
			break
		}
	}
	if !versionFound {
		return stats, errors.E(errors.Invalid, path, fileVersionHeader+" not found")
	}
	n := 0
	for r.Scan() {
		var rec cellRecord
		if err := gob.NewDecoder(bytes.NewReader(r.Get().([]byte))).Decode(&rec); err != nil {
			return stats, errors.E(err, "decode", path)
		}
		if _, err := c.InsertOrGetCell(rec.Barcode); err != nil && err != cells.ErrCapacityExceeded {
			return stats, err
		}
		for gene, umis := range rec.Genes {
			for umiSeq, ur := range umis {
				if _, err := c.AddUMIRecord(rec.Barcode, gene, umiSeq, ur); err != nil && err != cells.ErrCapacityExceeded {
					return stats, err
				}
			}
		}
		n++
	}
	if err := r.Err(); err != nil {
		return stats, errors.E(err, "scan", path)
	}
	var trailer tableTrailer
	if err := gob.NewDecoder(bytes.NewReader(r.Trailer())).Decode(&trailer); err != nil {
		return stats, errors.E(err, "decode trailer", path)
	}
	if trailer.Cells != n {
		return stats, errors.E(errors.Invalid, path, "truncated table file")
	}
	return trailer.Stats, nil
}

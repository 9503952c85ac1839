package main

import (
	"context"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/scrna/cells"
	"github.com/klauspost/compress/gzip"
)

// Output file suffixes, appended to the -output prefix.
const (
	countsSuffix          = ".counts.tsv"
	readsPerUMISuffix     = ".reads_per_umi.tsv"
	cellsSuffix           = ".cells.tsv"
	umiDistributionSuffix = ".umi_distribution.tsv"
	cellStatusSuffix      = ".cell_status.tsv"
)

func writeTSV(ctx context.Context, path, header string, body func(w *tsv.Writer) error) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	var dst io.Writer = out.Writer(ctx)
	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(dst)
		defer func() {
			if e := gz.Close(); e != nil && err == nil {
				err = e
			}
		}()
		dst = gz
	}
	w := tsv.NewWriter(dst)
	w.WriteString(header)
	if err = w.EndLine(); err != nil {
		return err
	}
	if err = body(w); err != nil {
		return errors.E(err, "write", path)
	}
	return w.Flush()
}

// writeCounts writes the UMI count of every gene of every real cell, in
// sparse long format.
func writeCounts(ctx context.Context, path string, c *cells.Container) error {
	ids, err := c.FilteredCells()
	if err != nil {
		return err
	}
	return writeTSV(ctx, path, "#CELL\tGENE\tUMIS", func(w *tsv.Writer) error {
		for _, id := range ids {
			counts := c.QueryUMIsPerGene(id, false)
			for _, gene := range sortedKeys(counts) {
				w.WriteString(c.CellBarcode(id))
				w.WriteString(gene)
				w.WriteUint32(uint32(counts[gene]))
				if err := w.EndLine(); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// writeReadsPerUMI writes the read count and mark of every UMI of every real
// cell. When the container tracks UMI quality, a last column lists the mean
// Phred score of each UMI base, comma separated.
func writeReadsPerUMI(ctx context.Context, path string, c *cells.Container) error {
	ids, err := c.FilteredCells()
	if err != nil {
		return err
	}
	header := "#CELL\tGENE\tUMI\tREADS\tMARK"
	withQual := c.QualityLength() > 0
	if withQual {
		header += "\tUMI_QUAL"
	}
	return writeTSV(ctx, path, header, func(w *tsv.Writer) error {
		for _, id := range ids {
			genes := c.CellGenes(id)
			for _, gene := range genes.Names() {
				umis := genes[gene]
				for _, umiSeq := range umis.Names() {
					rec := umis[umiSeq]
					w.WriteString(c.CellBarcode(id))
					w.WriteString(gene)
					w.WriteString(umiSeq)
					w.WriteUint32(uint32(rec.ReadCount))
					w.WriteString(rec.Mark.String())
					if withQual {
						w.WriteString(formatQuality(rec.MeanQuality()))
					}
					if err := w.EndLine(); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

// writeCells writes every active cell by descending gene count. Plotting
// UMIS against rank gives the knee curve used to pick real cells.
func writeCells(ctx context.Context, path string, c *cells.Container) error {
	counts, err := c.CellsGeneCountsSorted()
	if err != nil {
		return err
	}
	return writeTSV(ctx, path, "#CELL\tGENES\tUMIS\tREADS\tREAL", func(w *tsv.Writer) error {
		for _, ic := range counts {
			w.WriteString(c.CellBarcode(ic.Index))
			w.WriteUint32(uint32(ic.Count))
			w.WriteUint32(uint32(c.CellSize(ic.Index)))
			w.WriteUint32(uint32(c.CellReads(ic.Index)))
			if c.IsCellReal(ic.Index) {
				w.WriteByte('1')
			} else {
				w.WriteByte('0')
			}
			if err := w.EndLine(); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeUMIDistribution writes how often each UMI occurs across the genes of
// real cells.
func writeUMIDistribution(ctx context.Context, path string, c *cells.Container) error {
	dist, err := c.UMIsDistribution()
	if err != nil {
		return err
	}
	return writeTSV(ctx, path, "#UMI\tCOUNT", func(w *tsv.Writer) error {
		for _, umiSeq := range sortedKeys(dist) {
			w.WriteString(umiSeq)
			w.WriteUint32(uint32(dist[umiSeq]))
			if err := w.EndLine(); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeCellStatus lists the cells removed by cell merging: excluded cells,
// and merged cells with the barcode they were merged into.
func writeCellStatus(ctx context.Context, path string, c *cells.Container) error {
	targets := c.MergeTargets()
	return writeTSV(ctx, path, "#CELL\tSTATUS\tTARGET", func(w *tsv.Writer) error {
		for id, cb := range c.CellBarcodesRaw() {
			switch {
			case c.IsCellExcluded(id):
				w.WriteString(cb)
				w.WriteString("excluded")
				w.WriteByte('.')
			case c.IsCellMerged(id):
				w.WriteString(cb)
				w.WriteString("merged")
				w.WriteString(c.CellBarcode(targets[id]))
			default:
				continue
			}
			if err := w.EndLine(); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeOutputs writes all tables under the given path prefix, gzipped if gz
// is set.
func writeOutputs(ctx context.Context, prefix string, gz bool, c *cells.Container) error {
	for _, out := range []struct {
		suffix string
		write  func(context.Context, string, *cells.Container) error
	}{
		{countsSuffix, writeCounts},
		{readsPerUMISuffix, writeReadsPerUMI},
		{cellsSuffix, writeCells},
		{umiDistributionSuffix, writeUMIDistribution},
		{cellStatusSuffix, writeCellStatus},
	} {
		path := prefix + out.suffix
		if gz {
			path += ".gz"
		}
		if err := out.write(ctx, path, c); err != nil {
			return err
		}
		log.Printf("wrote %s", path)
	}
	return nil
}

func formatQuality(mean []float64) string {
	if len(mean) == 0 {
		return "."
	}
	fields := make([]string, len(mean))
	for i, q := range mean {
		fields[i] = strconv.FormatFloat(q, 'f', 1, 64)
	}
	return strings.Join(fields, ",")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

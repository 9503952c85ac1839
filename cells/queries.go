package cells

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/grailbio/scrna/umi"
)

// NumCells returns the # of cells created, including excluded and merged
// ones.
func (c *Container) NumCells() int { return len(c.barcodes) }

// CellBarcodesRaw returns the barcode of every cell, indexed by cell id.
func (c *Container) CellBarcodesRaw() []string { return c.barcodes }

// CellBarcode returns the barcode of a cell.
func (c *Container) CellBarcode(id int) string { return c.barcodes[id] }

// CellIDsByCB returns the barcode to cell id index.
func (c *Container) CellIDsByCB() map[string]int { return c.cellIDsByCB }

// CellID returns the id of the cell that holds the reads of barcode cb,
// following merges. It returns false if cb is unknown.
func (c *Container) CellID(cb string) (int, bool) {
	id, ok := c.cellIDsByCB[cb]
	if !ok {
		return -1, false
	}
	for c.mergeTargets[id] != id {
		id = c.mergeTargets[id]
	}
	return id, true
}

// CellGenes returns the gene table of a cell.
func (c *Container) CellGenes(id int) Genes { return c.cellsGenes[id] }

// CellSize returns the # of UMIs of a cell.
func (c *Container) CellSize(id int) int { return c.cellsGenes[id].NumUMIs() }

// CellReads returns the # of reads attributed to a cell. A merged cell has
// zero reads; they were moved to its target.
func (c *Container) CellReads(id int) int { return c.cellReads[id] }

// IsCellExcluded reports whether a cell was excluded.
func (c *Container) IsCellExcluded(id int) bool { return c.excluded[id] }

// IsCellMerged reports whether a cell was merged into another cell.
func (c *Container) IsCellMerged(id int) bool { return c.merged[id] }

// IsCellReal reports whether a cell passed the real cell thresholds. It is
// false for every cell before MergeAndFilter.
func (c *Container) IsCellReal(id int) bool { return c.real[id] }

// ExcludedCells returns the barcodes of the excluded cells, by cell id.
func (c *Container) ExcludedCells() []string {
	var cbs []string
	for id, excluded := range c.excluded {
		if excluded {
			cbs = append(cbs, c.barcodes[id])
		}
	}
	return cbs
}

// MergeTargets returns, for every cell id, the id of the cell it was merged
// into, or its own id.
func (c *Container) MergeTargets() []int { return c.mergeTargets }

// GeneMatchLevels returns the UMI marks kept by the gene match filter.
func (c *Container) GeneMatchLevels() []umi.Mark { return c.opts.GeneMatchLevels }

// QualityLength returns the # of UMI bases whose quality is tracked, 0 if
// none.
func (c *Container) QualityLength() int { return c.opts.QualityLength }

// MergeType names the cell merge strategy.
func (c *Container) MergeType() string {
	if c.cellMerge == nil {
		return "none"
	}
	return c.cellMerge.Name()
}

// HasExonReadsNum returns the # of reads added with an exon mark.
func (c *Container) HasExonReadsNum() int { return c.exonReads }

// HasIntronReadsNum returns the # of reads added with an intron mark.
func (c *Container) HasIntronReadsNum() int { return c.intronReads }

// HasNotAnnotatedReadsNum returns the # of reads added with a not-annotated
// mark.
func (c *Container) HasNotAnnotatedReadsNum() int { return c.notAnnotatedReads }

// FilteredCells returns the ids of the real cells by descending gene count.
func (c *Container) FilteredCells() ([]int, error) {
	if err := c.checkInitialized("FilteredCells"); err != nil {
		return nil, err
	}
	return c.filteredCells, nil
}

// CellsGeneCountsSorted returns every active cell with at least one gene
// and its gene count, by descending gene count. This is the knee plot.
func (c *Container) CellsGeneCountsSorted() ([]IndexedCount, error) {
	if err := c.checkInitialized("CellsGeneCountsSorted"); err != nil {
		return nil, err
	}
	return c.geneCountsSorted, nil
}

// NumberOfRealCells returns the # of real cells.
func (c *Container) NumberOfRealCells() (int, error) {
	if err := c.checkInitialized("NumberOfRealCells"); err != nil {
		return 0, err
	}
	return c.numberOfRealCells, nil
}

// QueryUMIsPerGene returns, per gene of a cell, its # of UMIs, or its # of
// reads if returnReads is set.
func (c *Container) QueryUMIsPerGene(id int, returnReads bool) map[string]int {
	counts := make(map[string]int, len(c.cellsGenes[id]))
	for gene, umis := range c.cellsGenes[id] {
		if !returnReads {
			counts[gene] = len(umis)
			continue
		}
		n := 0
		for _, rec := range umis {
			n += rec.ReadCount
		}
		counts[gene] = n
	}
	return counts
}

// QueryReadsPerUMIPerGene returns gene → UMI → # of reads for a cell.
func (c *Container) QueryReadsPerUMIPerGene(id int) map[string]map[string]int {
	counts := make(map[string]map[string]int, len(c.cellsGenes[id]))
	for gene, umis := range c.cellsGenes[id] {
		m := make(map[string]int, len(umis))
		for umiSeq, rec := range umis {
			m[umiSeq] = rec.ReadCount
		}
		counts[gene] = m
	}
	return counts
}

// UMIsDistribution returns, for every UMI sequence, the # of (cell, gene)
// pairs of real cells it appears in.
func (c *Container) UMIsDistribution() (map[string]int, error) {
	if err := c.checkInitialized("UMIsDistribution"); err != nil {
		return nil, err
	}
	dist := map[string]int{}
	for _, id := range c.filteredCells {
		for _, umis := range c.cellsGenes[id] {
			for umiSeq := range umis {
				dist[umiSeq]++
			}
		}
	}
	return dist, nil
}

// Stats returns a copy of the container statistics.
func (c *Container) Stats() Stats { return c.stats }

// RecordStats adds driver-side counts to the container statistics. It must
// not be called concurrently with itself or with any mutator.
func (c *Container) RecordStats(s Stats) { c.stats = c.stats.Merge(s) }

func (c *Container) cbCountTopVerbose(counts []IndexedCount) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "rank\tbarcode\tgenes\tumis\treads")
	for i, ic := range counts {
		if i >= c.opts.TopPrintSize {
			break
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\n", i+1, c.barcodes[ic.Index], ic.Count,
			c.CellSize(ic.Index), c.cellReads[ic.Index])
	}
	w.Flush()
	return buf.String()
}

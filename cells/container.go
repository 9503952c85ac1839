// Package cells aggregates tagged reads into a cell → gene → UMI table, merges
// barcodes and UMIs that differ by sequencing errors, and separates real
// cells from background barcodes.
package cells

import (
	goerrors "errors"
	"fmt"
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/scrna/umi"
)

// ErrCapacityExceeded is returned by AddRecord when a new barcode arrives
// after Opts.MaxCellsNum cells have been admitted.
var ErrCapacityExceeded = goerrors.New("cell capacity exceeded")

// UMIs maps a UMI sequence to its record.
type UMIs map[string]*umi.Record

// Names returns the UMI sequences in lexicographic order.
func (u UMIs) Names() []string {
	names := make([]string, 0, len(u))
	for name := range u {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Genes maps a gene name to the UMIs observed for it.
type Genes map[string]UMIs

// Names returns the gene names in lexicographic order.
func (g Genes) Names() []string {
	names := make([]string, 0, len(g))
	for name := range g {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NumUMIs returns the total # of UMIs over all genes.
func (g Genes) NumUMIs() int {
	n := 0
	for _, umis := range g {
		n += len(umis)
	}
	return n
}

// IndexedCount pairs a cell id with a count.
type IndexedCount struct {
	Index int
	Count int
}

// Container owns the cell → gene → UMI table of a run.
//
// Cells are created by AddRecord and are never removed; they are only
// flagged excluded or merged. MergeAndFilter runs once, after which the
// container is read-only and its query methods may be called concurrently.
// Mutators are not safe for concurrent use.
type Container struct {
	opts      Opts
	cellMerge CellMergeStrategy
	umiMerge  UMIMergeStrategy

	cellsGenes  []Genes
	barcodes    []string
	excluded    []bool
	merged      []bool
	real        []bool
	cellReads   []int
	cellIDsByCB map[string]int
	// mergeTargets[i] is the cell i was merged into, or i.
	mergeTargets []int

	filteredCells    []int
	geneCountsSorted []IndexedCount
	initialized      bool

	exonReads         int
	intronReads       int
	notAnnotatedReads int
	numberOfRealCells int

	stats Stats
}

// NewContainer creates an empty container. Either strategy may be nil, in
// which case the corresponding merge pass is skipped.
func NewContainer(cellMerge CellMergeStrategy, umiMerge UMIMergeStrategy, opts Opts) *Container {
	return &Container{
		opts:        opts,
		cellMerge:   cellMerge,
		umiMerge:    umiMerge,
		cellIDsByCB: map[string]int{},
	}
}

func (c *Container) checkMutable() error {
	if c.initialized {
		return errors.E(errors.Precondition, "cells: container is already initialized")
	}
	return nil
}

func (c *Container) checkInitialized(op string) error {
	if !c.initialized {
		return errors.E(errors.Precondition, "cells:", op, "called before MergeAndFilter")
	}
	return nil
}

func (c *Container) checkCell(id int) error {
	if id < 0 || id >= len(c.barcodes) {
		return errors.E(errors.Invalid, fmt.Sprintf("cells: cell id %d out of range [0, %d)", id, len(c.barcodes)))
	}
	return nil
}

// InsertOrGetCell returns the id of the cell with the given barcode,
// creating the cell if it is new. It returns ErrCapacityExceeded if the
// cell is new and the container is full.
func (c *Container) InsertOrGetCell(cb string) (int, error) {
	if err := c.checkMutable(); err != nil {
		return -1, err
	}
	if id, ok := c.cellIDsByCB[cb]; ok {
		return id, nil
	}
	if c.opts.MaxCellsNum >= 0 && len(c.barcodes) >= c.opts.MaxCellsNum {
		return -1, ErrCapacityExceeded
	}
	id := len(c.barcodes)
	c.cellIDsByCB[cb] = id
	c.barcodes = append(c.barcodes, cb)
	c.cellsGenes = append(c.cellsGenes, Genes{})
	c.excluded = append(c.excluded, false)
	c.merged = append(c.merged, false)
	c.real = append(c.real, false)
	c.cellReads = append(c.cellReads, 0)
	c.mergeTargets = append(c.mergeTargets, id)
	return id, nil
}

// AddRecord adds one read of the given UMI and gene to the cell with barcode
// cb and returns the cell id.
func (c *Container) AddRecord(cb, umiSeq, gene string, mark umi.Mark) (int, error) {
	return c.AddRecordQuality(cb, umiSeq, gene, mark, "")
}

// AddRecordQuality is AddRecord with the Phred+33 qualities of the UMI
// bases. Qualities are kept only when Opts.QualityLength > 0.
func (c *Container) AddRecordQuality(cb, umiSeq, gene string, mark umi.Mark, umiQual string) (int, error) {
	if cb == "" || umiSeq == "" || gene == "" {
		return -1, errors.E(errors.Invalid, fmt.Sprintf("cells: empty tag in record (%q, %q, %q)", cb, umiSeq, gene))
	}
	id, err := c.InsertOrGetCell(cb)
	if err != nil {
		if err == ErrCapacityExceeded {
			c.stats.DroppedReads++
		}
		return -1, err
	}
	rec := c.umiRecord(id, gene, umiSeq)
	rec.AddRead(mark, umiQual)
	c.cellReads[id]++
	c.stats.Reads++
	c.countMark(mark, 1)
	return id, nil
}

// AddUMIRecord merges a complete UMI record into the table. It is used to
// reload a dumped table and to combine partial containers.
func (c *Container) AddUMIRecord(cb, gene, umiSeq string, r umi.Record) (int, error) {
	if cb == "" || umiSeq == "" || gene == "" {
		return -1, errors.E(errors.Invalid, fmt.Sprintf("cells: empty tag in record (%q, %q, %q)", cb, umiSeq, gene))
	}
	id, err := c.InsertOrGetCell(cb)
	if err != nil {
		if err == ErrCapacityExceeded {
			c.stats.DroppedReads += r.ReadCount
		}
		return -1, err
	}
	c.umiRecord(id, gene, umiSeq).Merge(r)
	c.cellReads[id] += r.ReadCount
	c.stats.Reads += r.ReadCount
	c.countMark(r.Mark, r.ReadCount)
	return id, nil
}

func (c *Container) umiRecord(id int, gene, umiSeq string) *umi.Record {
	genes := c.cellsGenes[id]
	umis, ok := genes[gene]
	if !ok {
		umis = UMIs{}
		genes[gene] = umis
	}
	rec, ok := umis[umiSeq]
	if !ok {
		rec = umi.NewRecord(c.opts.QualityLength)
		umis[umiSeq] = rec
	}
	return rec
}

func (c *Container) countMark(mark umi.Mark, n int) {
	if mark.Check(umi.HasExons) {
		c.exonReads += n
	}
	if mark.Check(umi.HasIntrons) {
		c.intronReads += n
	}
	if mark.Check(umi.HasNotAnnotated) {
		c.notAnnotatedReads += n
	}
}

// ExcludeCell flags a cell as excluded. Excluding an excluded cell is a
// no-op; excluding a merged cell is an error.
func (c *Container) ExcludeCell(id int) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	if err := c.checkCell(id); err != nil {
		return err
	}
	if c.merged[id] {
		return errors.E(errors.Precondition, "cells: cannot exclude merged cell", c.barcodes[id])
	}
	if !c.excluded[id] {
		c.excluded[id] = true
		c.stats.ExcludedCells++
	}
	return nil
}

// MergeCells moves every UMI of source into target, summing the records of
// UMIs present in both, and flags source as merged into target. Neither
// cell may be excluded or merged.
func (c *Container) MergeCells(source, target int) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	if err := c.checkCell(source); err != nil {
		return err
	}
	if err := c.checkCell(target); err != nil {
		return err
	}
	switch {
	case source == target:
		return errors.E(errors.Precondition, "cells: cannot merge cell into itself", c.barcodes[source])
	case c.excluded[source] || c.merged[source]:
		return errors.E(errors.Precondition, fmt.Sprintf("cells: merge source %s is not active", c.barcodes[source]))
	case c.excluded[target] || c.merged[target]:
		return errors.E(errors.Precondition, fmt.Sprintf("cells: merge target %s is not active", c.barcodes[target]))
	}
	dst := c.cellsGenes[target]
	for gene, umis := range c.cellsGenes[source] {
		dstUMIs, ok := dst[gene]
		if !ok {
			dst[gene] = umis
			continue
		}
		for umiSeq, rec := range umis {
			if d, ok := dstUMIs[umiSeq]; ok {
				d.Merge(*rec)
			} else {
				dstUMIs[umiSeq] = rec
			}
		}
	}
	c.cellsGenes[source] = Genes{}
	c.cellReads[target] += c.cellReads[source]
	c.cellReads[source] = 0
	c.merged[source] = true
	c.mergeTargets[source] = target
	c.stats.MergedCells++
	return nil
}

// MergeUMIs folds UMIs of one gene of a cell. targets maps a UMI to the UMI
// it merges into; chains are followed to their end.
func (c *Container) MergeUMIs(id int, gene string, targets map[string]string) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	if err := c.checkCell(id); err != nil {
		return err
	}
	n, err := mergeUMIs(c.cellsGenes[id][gene], targets)
	c.stats.MergedUMIs += n
	return err
}

func mergeUMIs(umis UMIs, targets map[string]string) (int, error) {
	if umis == nil {
		return 0, nil
	}
	n := 0
	for src := range targets {
		dst := src
		for steps := 0; ; steps++ {
			next, ok := targets[dst]
			if !ok || next == dst {
				break
			}
			if steps > len(targets) {
				return n, errors.E(errors.Invalid, "cells: cycle in UMI merge targets at", src)
			}
			dst = next
		}
		rec, ok := umis[src]
		if !ok || dst == src {
			continue
		}
		if d, ok := umis[dst]; ok {
			d.Merge(*rec)
		} else {
			umis[dst] = rec
		}
		delete(umis, src)
		n++
	}
	return n, nil
}

// MergeAndFilter runs the filtering and merging passes. It drops UMIs
// outside the gene match levels, merges cells with the cell merge strategy,
// merges UMIs with the UMI merge strategy, and classifies real cells. It
// may be called only once.
func (c *Container) MergeAndFilter() error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	c.filterGeneMatchLevels()

	candidates := c.geneCounts(c.opts.MinGenesBeforeMerge)
	log.Debug.Printf("cells: %d of %d cells have at least %d genes before merge",
		len(candidates), len(c.barcodes), c.opts.MinGenesBeforeMerge)
	if c.cellMerge != nil {
		plan, err := c.cellMerge.Plan(c, candidates)
		if err != nil {
			return errors.E(err, "cells: merge strategy", c.cellMerge.Name())
		}
		for _, id := range plan.Exclude {
			if err := c.ExcludeCell(id); err != nil {
				return err
			}
		}
		for _, m := range plan.Merges {
			if err := c.MergeCells(m.Source, m.Target); err != nil {
				return err
			}
		}
		log.Printf("cells: %s merge: %d cells merged, %d excluded", c.cellMerge.Name(), len(plan.Merges), len(plan.Exclude))
	}
	if c.umiMerge != nil {
		if err := c.mergeAllUMIs(); err != nil {
			return err
		}
	}
	c.UpdateCellSizes(c.opts.MinGenesAfterMerge, c.opts.MinCellUMIs, c.opts.Verbose)
	c.initialized = true
	return nil
}

func (c *Container) filterGeneMatchLevels() {
	if len(c.opts.GeneMatchLevels) == 0 {
		return
	}
	for _, genes := range c.cellsGenes {
		for gene, umis := range genes {
			for umiSeq, rec := range umis {
				if !rec.Mark.Match(c.opts.GeneMatchLevels) {
					delete(umis, umiSeq)
					c.stats.ExcludedUMIs++
				}
			}
			if len(umis) == 0 {
				delete(genes, gene)
			}
		}
	}
}

func (c *Container) mergeAllUMIs() error {
	parallelism := c.opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	nCells := len(c.cellsGenes)
	if nCells == 0 {
		return nil
	}
	if parallelism > nCells {
		parallelism = nCells
	}
	var merged int64
	err := traverse.Each(parallelism, func(jobIdx int) error {
		// Each job owns a disjoint set of cells.
		var n int
		for id := jobIdx; id < nCells; id += parallelism {
			if c.excluded[id] || c.merged[id] {
				continue
			}
			for _, umis := range c.cellsGenes[id] {
				k, err := mergeUMIs(umis, c.umiMerge.Targets(umis))
				if err != nil {
					return err
				}
				n += k
			}
		}
		atomic.AddInt64(&merged, int64(n))
		return nil
	})
	c.stats.MergedUMIs += int(merged)
	return err
}

// geneCounts returns the active cells with at least minGenes genes, by
// descending gene count. Ties are ordered by cell id.
func (c *Container) geneCounts(minGenes int) []IndexedCount {
	var counts []IndexedCount
	for id, genes := range c.cellsGenes {
		if c.excluded[id] || c.merged[id] {
			continue
		}
		if n := len(genes); n > 0 && n >= minGenes {
			counts = append(counts, IndexedCount{Index: id, Count: n})
		}
	}
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})
	return counts
}

// UpdateCellSizes classifies active cells as real when they have at least
// genesThreshold genes and cellThreshold UMIs, and recomputes the gene
// count ranking. If logs is set it logs the top of the ranking.
func (c *Container) UpdateCellSizes(genesThreshold, cellThreshold int, logs bool) {
	c.geneCountsSorted = c.geneCounts(1)
	c.filteredCells = c.filteredCells[:0]
	c.numberOfRealCells = 0
	for i := range c.real {
		c.real[i] = false
	}
	for _, ic := range c.geneCountsSorted {
		if ic.Count < genesThreshold || c.cellsGenes[ic.Index].NumUMIs() < cellThreshold {
			continue
		}
		c.real[ic.Index] = true
		c.filteredCells = append(c.filteredCells, ic.Index)
		c.numberOfRealCells++
	}
	log.Printf("cells: %d real cells (>= %d genes, >= %d UMIs) of %d active cells",
		c.numberOfRealCells, genesThreshold, cellThreshold, len(c.geneCountsSorted))
	if logs {
		log.Printf("cells: top cells by gene count:\n%s", c.cbCountTopVerbose(c.geneCountsSorted))
	}
}

package cells

import (
	"sort"

	"github.com/antzucaro/matchr"
	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/scrna/umi"
)

// CellMerge moves the reads of Source into Target.
type CellMerge struct {
	Source, Target int
}

// CellMergePlan is the outcome of a cell merge strategy. The container
// applies the exclusions first, then the merges in order.
type CellMergePlan struct {
	Exclude []int
	Merges  []CellMerge
}

// CellMergeStrategy decides which barcodes are sequencing-error variants of
// another barcode.
type CellMergeStrategy interface {
	// Name identifies the strategy in logs and reports.
	Name() string
	// Plan inspects the container and returns the merges to apply.
	// candidates lists the active cells with enough genes, by descending
	// gene count. Plan may create cells with InsertOrGetCell.
	Plan(c *Container, candidates []IndexedCount) (CellMergePlan, error)
}

// UMIMergeStrategy decides which UMIs of one gene of one cell are
// sequencing-error variants of another UMI.
type UMIMergeStrategy interface {
	// Targets maps each UMI to merge to the UMI it merges into. It must
	// not modify umis and must be safe for concurrent use.
	Targets(umis UMIs) map[string]string
}

// SimpleMergeStrategy merges a cell into a larger cell whose barcode is
// within MaxEditDistance edits and which shares at least MinMergeFraction
// of the smaller cell's (gene, UMI) pairs.
type SimpleMergeStrategy struct {
	MaxEditDistance  int
	MinMergeFraction float64
}

// DefaultSimpleMergeStrategy holds the default parameters.
var DefaultSimpleMergeStrategy = SimpleMergeStrategy{
	MaxEditDistance:  2,
	MinMergeFraction: 0.2,
}

// Name implements CellMergeStrategy.
func (s SimpleMergeStrategy) Name() string { return "simple" }

const umiKeySeed = 0x5eed

// umiKeys hashes the (gene, UMI) pairs of a cell.
func umiKeys(genes Genes) map[uint64]struct{} {
	keys := make(map[uint64]struct{}, genes.NumUMIs())
	var buf []byte
	for gene, umis := range genes {
		for umiSeq := range umis {
			buf = append(buf[:0], gene...)
			buf = append(buf, 0)
			buf = append(buf, umiSeq...)
			keys[farm.Hash64WithSeed(buf, umiKeySeed)] = struct{}{}
		}
	}
	return keys
}

func overlapFraction(src, dst map[uint64]struct{}) float64 {
	if len(src) == 0 {
		return 0
	}
	n := 0
	for k := range src {
		if _, ok := dst[k]; ok {
			n++
		}
	}
	return float64(n) / float64(len(src))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Plan implements CellMergeStrategy. Candidates are visited from the
// smallest up, so a cell may absorb smaller cells before being merged
// itself.
func (s SimpleMergeStrategy) Plan(c *Container, candidates []IndexedCount) (CellMergePlan, error) {
	var plan CellMergePlan
	if s.MaxEditDistance < 0 || s.MinMergeFraction < 0 || s.MinMergeFraction > 1 {
		return plan, errors.E(errors.Invalid, "simple merge: bad parameters")
	}
	keys := make([]map[uint64]struct{}, len(candidates))
	keysOf := func(i int) map[uint64]struct{} {
		if keys[i] == nil {
			keys[i] = umiKeys(c.CellGenes(candidates[i].Index))
		}
		return keys[i]
	}
	for i := len(candidates) - 1; i > 0; i-- {
		src := c.CellBarcode(candidates[i].Index)
		best, bestFraction := -1, 0.0
		for j := 0; j < i; j++ {
			if candidates[j].Count <= candidates[i].Count {
				continue
			}
			dst := c.CellBarcode(candidates[j].Index)
			if abs(len(dst)-len(src)) > s.MaxEditDistance || matchr.Levenshtein(src, dst) > s.MaxEditDistance {
				continue
			}
			if f := overlapFraction(keysOf(i), keysOf(j)); f > bestFraction {
				best, bestFraction = j, f
			}
		}
		if best < 0 || bestFraction < s.MinMergeFraction {
			continue
		}
		log.Debug.Printf("simple merge: %s -> %s, overlap %.3f", src, c.CellBarcode(candidates[best].Index), bestFraction)
		plan.Merges = append(plan.Merges, CellMerge{Source: candidates[i].Index, Target: candidates[best].Index})
	}
	return plan, nil
}

// KnownBarcodesMergeStrategy snaps every candidate barcode to a list of
// known barcodes. A candidate that snaps to another barcode is merged into
// that barcode's cell, which is created if needed. A candidate that does
// not snap is excluded.
type KnownBarcodesMergeStrategy struct {
	Corrector *umi.SnapCorrector
}

// Name implements CellMergeStrategy.
func (s KnownBarcodesMergeStrategy) Name() string { return "known_barcodes" }

// Plan implements CellMergeStrategy.
func (s KnownBarcodesMergeStrategy) Plan(c *Container, candidates []IndexedCount) (CellMergePlan, error) {
	var plan CellMergePlan
	if s.Corrector == nil {
		return plan, errors.E(errors.Invalid, "known barcodes merge: no known barcodes")
	}
	for _, cand := range candidates {
		cb := c.CellBarcode(cand.Index)
		corrected, _, ok := s.Corrector.Correct(cb)
		if !ok {
			plan.Exclude = append(plan.Exclude, cand.Index)
			continue
		}
		if corrected == cb {
			continue
		}
		target, err := c.InsertOrGetCell(corrected)
		if err == ErrCapacityExceeded {
			plan.Exclude = append(plan.Exclude, cand.Index)
			continue
		}
		if err != nil {
			return plan, err
		}
		plan.Merges = append(plan.Merges, CellMerge{Source: cand.Index, Target: target})
	}
	return plan, nil
}

// SimpleUMIMergeStrategy clusters the UMIs of a gene that are within
// MaxDistance substitutions of each other. Each cluster collapses onto its
// UMI with the most reads, ties going to the lexicographically smallest.
type SimpleUMIMergeStrategy struct {
	MaxDistance int
}

// DefaultSimpleUMIMergeStrategy holds the default parameters.
var DefaultSimpleUMIMergeStrategy = SimpleUMIMergeStrategy{MaxDistance: 1}

// Targets implements UMIMergeStrategy.
func (s SimpleUMIMergeStrategy) Targets(umis UMIs) map[string]string {
	if len(umis) < 2 || s.MaxDistance <= 0 {
		return nil
	}
	names := umis.Names()
	parent := make([]int, len(names))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for i := range names {
		for j := i + 1; j < len(names); j++ {
			d, err := matchr.Hamming(names[i], names[j])
			if err != nil || d > s.MaxDistance {
				continue
			}
			if ri, rj := find(i), find(j); ri != rj {
				parent[rj] = ri
			}
		}
	}
	clusters := map[int][]int{}
	for i := range names {
		r := find(i)
		clusters[r] = append(clusters[r], i)
	}
	targets := map[string]string{}
	for _, members := range clusters {
		if len(members) < 2 {
			continue
		}
		// members are in lexicographic order.
		sort.Ints(members)
		canonical := members[0]
		for _, m := range members[1:] {
			if umis[names[m]].ReadCount > umis[names[canonical]].ReadCount {
				canonical = m
			}
		}
		for _, m := range members {
			if m != canonical {
				targets[names[m]] = names[canonical]
			}
		}
	}
	return targets
}

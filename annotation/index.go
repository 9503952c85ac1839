package annotation

import (
	"sort"

	"github.com/biogo/store/interval"
	"github.com/grailbio/scrna/umi"
	"github.com/pkg/errors"
)

// Range is a half-open, 0-based reference interval [Start, End).
type Range struct {
	Start, End int
}

// feature is a gene or exon stored in an interval tree.
type feature struct {
	start, end int
	id         uintptr
	gene       string
}

func (f feature) Overlap(b interval.IntRange) bool {
	return f.start < b.End && b.Start < f.end
}

func (f feature) ID() uintptr { return f.id }

func (f feature) Range() interval.IntRange {
	return interval.IntRange{Start: f.start, End: f.end}
}

// query adapts a Range for tree lookups.
type query Range

func (q query) Overlap(b interval.IntRange) bool {
	return q.Start < b.End && b.Start < q.End
}

// Index holds per-chromosome gene and exon interval trees.
type Index struct {
	genes  map[string]*interval.IntTree
	exons  map[string]*interval.IntTree
	nextID uintptr
	nGenes int
	nExons int
}

func newIndex() *Index {
	return &Index{
		genes: map[string]*interval.IntTree{},
		exons: map[string]*interval.IntTree{},
	}
}

func (idx *Index) insert(trees map[string]*interval.IntTree, chrom string, start, end int, gene string) error {
	t, ok := trees[chrom]
	if !ok {
		t = &interval.IntTree{}
		trees[chrom] = t
	}
	idx.nextID++
	if err := t.Insert(feature{start: start, end: end, id: idx.nextID, gene: gene}, true); err != nil {
		return errors.Wrapf(err, "insert %s %s:%d-%d", gene, chrom, start, end)
	}
	return nil
}

// NumGenes returns the number of genes in the index.
func (idx *Index) NumGenes() int { return idx.nGenes }

// Genes returns the sorted names of the genes that overlap r.
func (idx *Index) Genes(chrom string, r Range) []string {
	return lookup(idx.genes, chrom, r)
}

// Exons returns the sorted names of the genes with an exon that overlaps r.
func (idx *Index) Exons(chrom string, r Range) []string {
	return lookup(idx.exons, chrom, r)
}

func lookup(trees map[string]*interval.IntTree, chrom string, r Range) []string {
	t, ok := trees[chrom]
	if !ok || r.End <= r.Start {
		return nil
	}
	hits := t.Get(query(r))
	if len(hits) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(hits))
	names := make([]string, 0, len(hits))
	for _, h := range hits {
		g := h.(feature).gene
		if !seen[g] {
			seen[g] = true
			names = append(names, g)
		}
	}
	sort.Strings(names)
	return names
}

// Classify assigns an aligned read, given as its reference blocks, to a
// gene. Each block contributes one mark: HasExons when it overlaps an exon,
// HasIntrons when it overlaps only a gene body, HasNotAnnotated otherwise.
// The gene is the single gene whose exons the read hits; failing that, the
// single gene whose body the read hits. Reads that hit several genes get
// no gene.
func (idx *Index) Classify(chrom string, blocks []Range) (gene string, mark umi.Mark) {
	exonGenes := map[string]bool{}
	bodyGenes := map[string]bool{}
	for _, b := range blocks {
		if ex := idx.Exons(chrom, b); len(ex) > 0 {
			mark = mark.Or(umi.HasExons)
			for _, g := range ex {
				exonGenes[g] = true
			}
			continue
		}
		if gs := idx.Genes(chrom, b); len(gs) > 0 {
			mark = mark.Or(umi.HasIntrons)
			for _, g := range gs {
				bodyGenes[g] = true
			}
			continue
		}
		mark = mark.Or(umi.HasNotAnnotated)
	}
	switch {
	case len(exonGenes) == 1:
		gene = only(exonGenes)
	case len(exonGenes) == 0 && len(bodyGenes) == 1:
		gene = only(bodyGenes)
	}
	return gene, mark
}

func only(m map[string]bool) string {
	for k := range m {
		return k
	}
	return ""
}

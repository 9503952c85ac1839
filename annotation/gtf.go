// Package annotation classifies aligned reads against a gene annotation
// loaded from a GTF file.
package annotation

import (
	"bufio"
	"context"
	"io"
	"sort"
	"strings"

	"github.com/biogo/store/interval"
	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/pkg/errors"
)

// Opts configures GTF loading.
type Opts struct {
	// GeneAttr is the attribute that names a gene, e.g. "gene_id" or
	// "gene_name".
	GeneAttr string
}

// DefaultOpts holds the default GTF loading parameters.
var DefaultOpts = Opts{GeneAttr: "gene_id"}

// gtfRecord holds one line of a GTF file.
type gtfRecord struct {
	Chrom    string
	Source   string
	Molecule string
	Start    int
	Stop     int
	Score    string
	Strand   string
	Frame    string
	Fields   string
}

// attribute returns the value of key in a GTF attribute column such as
// `gene_id "ENSG01"; gene_name "ABC";`.
func attribute(fields, key string) string {
	for _, field := range strings.Split(fields, ";") {
		field = strings.TrimSpace(field)
		if !strings.HasPrefix(field, key+" ") {
			continue
		}
		return strings.Trim(strings.TrimSpace(field[len(key):]), "\"")
	}
	return ""
}

// ReadGTF loads the genes and exons of a GTF file, optionally compressed.
// Gene extents come from "gene" records, widened to cover the gene's exons.
// Genes without a "gene" record span their exons.
func ReadGTF(ctx context.Context, path string, opts Opts) (idx *Index, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, in.Name()); u != nil {
		r = u
	}
	idx, err = readGTF(r, opts)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	log.Printf("annotation: %s: %d genes, %d exons on %d chromosomes", path, idx.nGenes, idx.nExons, len(idx.exons))
	return idx, nil
}

type geneSpan struct {
	chrom       string
	start, stop int
}

func readGTF(r io.Reader, opts Opts) (*Index, error) {
	if opts.GeneAttr == "" {
		opts.GeneAttr = DefaultOpts.GeneAttr
	}
	scanner := tsv.NewReader(bufio.NewReaderSize(r, 64<<10))
	scanner.Comment = '#'
	scanner.LazyQuotes = true

	spans := map[string]*geneSpan{}
	widen := func(gene string, line gtfRecord) error {
		s, ok := spans[gene]
		if !ok {
			spans[gene] = &geneSpan{chrom: line.Chrom, start: line.Start, stop: line.Stop}
			return nil
		}
		if s.chrom != line.Chrom {
			return errors.Errorf("gene %s is on both %s and %s", gene, s.chrom, line.Chrom)
		}
		if line.Start < s.start {
			s.start = line.Start
		}
		if line.Stop > s.stop {
			s.stop = line.Stop
		}
		return nil
	}

	idx := newIndex()
	var line gtfRecord
	for {
		if err := scanner.Read(&line); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrap(err, "read GTF")
		}
		if line.Molecule != "gene" && line.Molecule != "exon" {
			continue
		}
		if line.Start < 1 || line.Stop < line.Start {
			return nil, errors.Errorf("bad %s range %s:%d-%d", line.Molecule, line.Chrom, line.Start, line.Stop)
		}
		gene := attribute(line.Fields, opts.GeneAttr)
		if gene == "" {
			return nil, errors.Errorf("%s record at %s:%d has no %s", line.Molecule, line.Chrom, line.Start, opts.GeneAttr)
		}
		if err := widen(gene, line); err != nil {
			return nil, err
		}
		if line.Molecule == "exon" {
			// GTF ranges are 1-based and closed.
			if err := idx.insert(idx.exons, line.Chrom, line.Start-1, line.Stop, gene); err != nil {
				return nil, err
			}
			idx.nExons++
		}
	}

	names := make([]string, 0, len(spans))
	for gene := range spans {
		names = append(names, gene)
	}
	sort.Strings(names)
	for _, gene := range names {
		s := spans[gene]
		if err := idx.insert(idx.genes, s.chrom, s.start-1, s.stop, gene); err != nil {
			return nil, err
		}
		idx.nGenes++
	}
	for _, trees := range []map[string]*interval.IntTree{idx.genes, idx.exons} {
		for _, t := range trees {
			t.AdjustRanges()
		}
	}
	return idx, nil
}

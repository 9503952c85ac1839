package main

// bio-scrna-count builds the cell × gene UMI count table of a single-cell
// run.
//
// It reads a BAM file of R2 reads tagged by bio-scrna-tag (or carrying CB
// and UB aux fields), assigns every aligned read to a gene with a GTF
// annotation, merges cell barcodes and UMIs that differ by sequencing
// errors, and writes:
//
//   <output>.counts.tsv           UMIs per gene of each real cell
//   <output>.reads_per_umi.tsv    reads, gene match level and (with
//                                 -umi-quality-length) mean base qualities
//                                 of each UMI
//   <output>.cells.tsv            all active cells by gene count (knee plot)
//   <output>.umi_distribution.tsv UMI sequence frequencies
//   <output>.cell_status.tsv      excluded and merged cells
//
// Example:
//
//    bio-scrna-count -bam tagged.bam -gtf genes.gtf.gz -output out/run1 -rio-output out/run1.rio
//
// Rerun merging and filtering with other thresholds, without the BAM:
//
//    bio-scrna-count -rio-input out/run1.rio -output out/run2 -min-genes-after-merge 200

import (
	"context"
	"flag"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/scrna/annotation"
	"github.com/grailbio/scrna/cells"
	"github.com/grailbio/scrna/umi"
)

// countFlags holds the driver options that are not container parameters.
type countFlags struct {
	bamPath       string
	gtfPath       string
	geneAttr      string
	outputPrefix  string
	rioOutputPath string
	rioInputPath  string
	gzipOutputs   bool

	cellMerge         string
	knownBarcodesPath string
	barcodeMaxEdits   int
	simpleMerge       cells.SimpleMergeStrategy
	umiMergeDistance  int
}

func newCellMergeStrategy(ctx context.Context, flags countFlags) (cells.CellMergeStrategy, error) {
	switch flags.cellMerge {
	case "", "none":
		return nil, nil
	case "simple":
		return flags.simpleMerge, nil
	case "known_barcodes":
		if flags.knownBarcodesPath == "" {
			return nil, errors.E(errors.Invalid, "-cell-merge=known_barcodes requires -known-barcodes")
		}
		data, err := file.ReadFile(ctx, flags.knownBarcodesPath)
		if err != nil {
			return nil, errors.E(err, "read", flags.knownBarcodesPath)
		}
		corrector, err := umi.NewSnapCorrector(data, flags.barcodeMaxEdits)
		if err != nil {
			return nil, errors.E(err, flags.knownBarcodesPath)
		}
		log.Printf("loaded %d known barcodes from %s", len(corrector.Known()), flags.knownBarcodesPath)
		return cells.KnownBarcodesMergeStrategy{Corrector: corrector}, nil
	}
	return nil, errors.E(errors.Invalid, "unknown cell merge strategy", flags.cellMerge)
}

// runCount fills a container from the BAM file or from a table dump, merges
// and filters it, and writes the outputs.
func runCount(ctx context.Context, flags countFlags, opts cells.Opts) (*cells.Container, error) {
	cellMerge, err := newCellMergeStrategy(ctx, flags)
	if err != nil {
		return nil, err
	}
	var umiMerge cells.UMIMergeStrategy
	if flags.umiMergeDistance > 0 {
		umiMerge = cells.SimpleUMIMergeStrategy{MaxDistance: flags.umiMergeDistance}
	}
	c := cells.NewContainer(cellMerge, umiMerge, opts)

	if flags.rioInputPath != "" {
		stats, err := loadTable(ctx, flags.rioInputPath, c)
		if err != nil {
			return nil, err
		}
		c.RecordStats(stats)
		log.Printf("loaded %d cells from %s", c.NumCells(), flags.rioInputPath)
	} else {
		if flags.bamPath == "" || flags.gtfPath == "" {
			return nil, errors.E(errors.Invalid, "-bam and -gtf are required unless -rio-input is set")
		}
		idx, err := annotation.ReadGTF(ctx, flags.gtfPath, annotation.Opts{GeneAttr: flags.geneAttr})
		if err != nil {
			return nil, err
		}
		if err := countBAM(ctx, flags.bamPath, idx, c); err != nil {
			return nil, err
		}
		if flags.rioOutputPath != "" {
			s := c.Stats()
			dumped := cells.Stats{DroppedReads: s.DroppedReads, UnassignedReads: s.UnassignedReads, UnparsedReads: s.UnparsedReads}
			if err := dumpTable(ctx, flags.rioOutputPath, c, dumped); err != nil {
				return nil, err
			}
			log.Printf("wrote %d cells to %s", c.NumCells(), flags.rioOutputPath)
		}
	}
	log.Printf("reads with exons %d, introns %d, not annotated %d",
		c.HasExonReadsNum(), c.HasIntronReadsNum(), c.HasNotAnnotatedReadsNum())

	if err := c.MergeAndFilter(); err != nil {
		return nil, err
	}
	c.Stats().Log()
	if flags.outputPrefix != "" {
		if err := writeOutputs(ctx, flags.outputPrefix, flags.gzipOutputs, c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func main() {
	opts := cells.DefaultOpts
	flags := countFlags{simpleMerge: cells.DefaultSimpleMergeStrategy}
	geneMatchLevels := umi.MarksCode(cells.DefaultOpts.GeneMatchLevels)

	flag.StringVar(&flags.bamPath, "bam", "", "BAM file of tagged, aligned R2 reads.")
	flag.StringVar(&flags.gtfPath, "gtf", "", "GTF gene annotation, optionally compressed.")
	flag.StringVar(&flags.geneAttr, "gene-attr", annotation.DefaultOpts.GeneAttr, "GTF attribute that names genes, e.g. gene_id or gene_name.")
	flag.StringVar(&flags.outputPrefix, "output", "./scrna", "Path prefix of the output tables.")
	flag.BoolVar(&flags.gzipOutputs, "gzip", false, "Gzip the output tables.")
	flag.StringVar(&flags.rioOutputPath, "rio-output", "", "If set, the raw count table is dumped to this recordio file before merging.")
	flag.StringVar(&flags.rioInputPath, "rio-input", "", "If set, the count table is loaded from this file written by -rio-output instead of -bam.")

	flag.StringVar(&flags.cellMerge, "cell-merge", "simple", "Cell barcode merge strategy: none, simple or known_barcodes.")
	flag.StringVar(&flags.knownBarcodesPath, "known-barcodes", "", "File of whitelisted cell barcodes, one per line.")
	flag.IntVar(&flags.barcodeMaxEdits, "barcode-max-edits", 2, "Max edits when snapping a barcode to the whitelist.")
	flag.IntVar(&flags.simpleMerge.MaxEditDistance, "merge-max-edit-distance", cells.DefaultSimpleMergeStrategy.MaxEditDistance,
		"Max barcode edit distance for the simple cell merge.")
	flag.Float64Var(&flags.simpleMerge.MinMergeFraction, "min-merge-fraction", cells.DefaultSimpleMergeStrategy.MinMergeFraction,
		"Min fraction of shared (gene, UMI) pairs for the simple cell merge.")
	flag.IntVar(&flags.umiMergeDistance, "umi-merge-distance", cells.DefaultSimpleUMIMergeStrategy.MaxDistance,
		"Max Hamming distance of UMIs merged within a gene. 0 disables UMI merging.")

	flag.IntVar(&opts.MaxCellsNum, "max-cells", cells.DefaultOpts.MaxCellsNum, "Max # of distinct barcodes. Negative means unbounded.")
	flag.StringVar(&geneMatchLevels, "gene-match-levels", geneMatchLevels,
		"Gene match levels kept, one code per level: 0 none, n not annotated, e exon, i intron; E, I, B, A are combinations.")
	flag.IntVar(&opts.MinGenesBeforeMerge, "min-genes-before-merge", cells.DefaultOpts.MinGenesBeforeMerge, "Min # of genes of a cell that takes part in merging.")
	flag.IntVar(&opts.MinGenesAfterMerge, "min-genes-after-merge", cells.DefaultOpts.MinGenesAfterMerge, "Min # of genes of a real cell.")
	flag.IntVar(&opts.MinCellUMIs, "min-cell-umis", cells.DefaultOpts.MinCellUMIs, "Min # of UMIs of a real cell.")
	flag.IntVar(&opts.QualityLength, "umi-quality-length", 0,
		"If positive, track the mean quality of this many UMI bases, read from the UY aux field, and report it in the reads-per-UMI table.")
	flag.IntVar(&opts.TopPrintSize, "top-print-size", cells.DefaultOpts.TopPrintSize, "# of cells in the verbose size report.")
	flag.BoolVar(&opts.Verbose, "verbose", false, "Log the largest cells.")
	flag.IntVar(&opts.Parallelism, "parallelism", 0, "# of goroutines for UMI merging. 0 means the # of CPUs.")

	cleanup := grail.Init()
	defer cleanup()
	ctx := vcontext.Background()

	levels, err := umi.ParseMarks(geneMatchLevels)
	if err != nil {
		log.Fatalf("-gene-match-levels: %v", err)
	}
	opts.GeneMatchLevels = levels
	if _, err := runCount(ctx, flags, opts); err != nil {
		log.Fatal(err)
	}
	log.Printf("All done")
}

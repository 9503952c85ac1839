package main

// bio-scrna-tag extracts cell barcodes and UMIs from single-cell read pairs.
//
// R1 carries the barcode and UMI; R2 carries the transcript. For every pair
// whose tags can be extracted, the tool writes R2, trimmed at the R1
// read-through and at the poly-A tail, under the name "name!CB#UMI".
//
// Example, inDrop v1 layout:
//
//    bio-scrna-tag -r1 r1.fastq.gz -r2 r2.fastq.gz -output tagged.fastq.gz
//
// Example, fixed-position layout:
//
//    bio-scrna-tag -r1 r1.fastq.gz -r2 r2.fastq.gz -output tagged.fastq.gz \
//      -barcode-mask '[20]TGAC[20]TCCC[20]CAAC(8)' -spacer-edit-dists 1,1,1

import (
	"flag"
	"runtime"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/scrna/tags"
)

func main() {
	opts := tags.DefaultOpts
	flags := tagFlags{}
	var editDists string

	flag.StringVar(&flags.r1, "r1", "", "FASTQ file containing R1 reads (barcode and UMI).")
	flag.StringVar(&flags.r2, "r2", "", "FASTQ file containing R2 reads (transcript).")
	flag.StringVar(&flags.output, "output", "./tagged.fastq.gz", "Output FASTQ file. It is compressed if the name ends in .gz or .bz2.")
	flag.IntVar(&flags.parallelism, "parallelism", runtime.NumCPU(), "Number of extraction workers.")
	flag.IntVar(&flags.batchSize, "batch-size", 4096, "Number of read pairs handed to a worker at a time.")
	flag.BoolVar(&flags.checkNames, "check-names", true, "Fail if R1 and R2 read names differ.")

	flag.StringVar(&opts.Spacer.Spacer, "spacer", tags.DefaultOpts.Spacer.Spacer, "Spacer sequence between barcode parts.")
	flag.IntVar(&opts.Spacer.MaxSpacerEditDistance, "max-spacer-edit-distance", tags.DefaultOpts.Spacer.MaxSpacerEditDistance,
		"Max Levenshtein distance between the spacer and its match in R1.")
	flag.IntVar(&opts.Spacer.SpacerPrefixLength, "spacer-prefix-length", tags.DefaultOpts.Spacer.SpacerPrefixLength,
		"Length of the spacer prefix reported separately in stats.")
	flag.IntVar(&opts.Spacer.SpacerMinPos, "spacer-min-pos", tags.DefaultOpts.Spacer.SpacerMinPos, "Min 0-based spacer start in R1.")
	flag.IntVar(&opts.Spacer.SpacerMaxPos, "spacer-max-pos", tags.DefaultOpts.Spacer.SpacerMaxPos, "Max 0-based spacer start in R1.")
	flag.IntVar(&opts.Spacer.BarcodeLength, "barcode-length", tags.DefaultOpts.Spacer.BarcodeLength, "Length of the barcode part after the spacer.")
	flag.IntVar(&opts.Spacer.UMILength, "umi-length", tags.DefaultOpts.Spacer.UMILength, "UMI length.")
	flag.IntVar(&opts.Spacer.R1RCLength, "r1-rc-length", tags.DefaultOpts.Spacer.R1RCLength,
		"Number of R1 bases after the UMI whose reverse complement is trimmed from R2.")

	flag.StringVar(&opts.Mask.BarcodeMask, "barcode-mask", "", `Fixed-position layout, e.g. "[20]TGAC[20](8)".
[n] is a barcode part, (n) the UMI, and letters are spacer literals. Overrides the spacer flags.`)
	flag.StringVar(&editDists, "spacer-edit-dists", "", "Comma-separated edit budgets, one per spacer literal of -barcode-mask.")
	flag.IntVar(&opts.Mask.R1RCLength, "mask-r1-rc-length", tags.DefaultOpts.Spacer.R1RCLength,
		"Number of R1 bases after the mask whose reverse complement is trimmed from R2.")

	flag.IntVar(&opts.Trim.MinAlignLength, "min-align-length", tags.DefaultOpts.Trim.MinAlignLength, "Shortest R2 a trim may leave.")
	flag.IntVar(&opts.Trim.MaxReads, "max-reads", tags.DefaultOpts.Trim.MaxReads, "Max read pairs to process. 0 means all.")
	flag.StringVar(&opts.Trim.PolyATail, "poly-a", tags.DefaultOpts.Trim.PolyATail, "Poly-A literal at which R2 is cut.")

	cleanup := grail.Init()
	defer cleanup()
	ctx := vcontext.Background()

	if flags.r1 == "" || flags.r2 == "" {
		log.Fatal("-r1 and -r2 are required")
	}
	if editDists != "" {
		dists, err := tags.ParseEditDists(editDists)
		if err != nil {
			log.Fatalf("-spacer-edit-dists: %v", err)
		}
		opts.Mask.SpacerEditDists = dists
	}
	stats, err := tagReads(ctx, flags, opts)
	if err != nil {
		log.Fatal(err)
	}
	stats.Log()
	log.Printf("All done")
}

package cells

import (
	"github.com/grailbio/scrna/umi"
)

// Opts configures a Container.
type Opts struct {
	// MaxCellsNum bounds the number of distinct barcodes admitted. Reads
	// of barcodes seen after the bound is reached are dropped. Negative
	// means unbounded.
	MaxCellsNum int
	// GeneMatchLevels lists the UMI marks that are kept by MergeAndFilter.
	// A UMI whose mark is not exactly one of them is dropped. Empty keeps
	// every UMI.
	GeneMatchLevels []umi.Mark
	// MinGenesBeforeMerge is the minimum # of genes for a cell to take part
	// in cell merging.
	MinGenesBeforeMerge int
	// MinGenesAfterMerge is the minimum # of genes of a real cell.
	MinGenesAfterMerge int
	// MinCellUMIs is the minimum # of UMIs of a real cell.
	MinCellUMIs int
	// QualityLength, if positive, makes every UMI record track the mean
	// quality of that many UMI bases.
	QualityLength int
	// TopPrintSize is the # of cells listed in the verbose size report.
	TopPrintSize int
	// Verbose enables the size report.
	Verbose bool
	// Parallelism is the # of goroutines used for UMI merging. Zero means
	// runtime.NumCPU().
	Parallelism int
}

// DefaultOpts holds the default container parameters.
var DefaultOpts = Opts{
	MaxCellsNum:         -1,
	GeneMatchLevels:     []umi.Mark{umi.HasExons, umi.HasExons | umi.HasNotAnnotated, umi.HasExons | umi.HasIntrons, umi.HasExons | umi.HasIntrons | umi.HasNotAnnotated},
	MinGenesBeforeMerge: 10,
	MinGenesAfterMerge:  100,
	MinCellUMIs:         0,
	TopPrintSize:        10,
}

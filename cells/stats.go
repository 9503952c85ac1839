package cells

import (
	"github.com/grailbio/base/log"
)

// Stats counts what happened to reads, UMIs and cells in a Container.
type Stats struct {
	// Reads is the # of reads added.
	Reads int
	// DroppedReads is the # of reads rejected because the container was
	// full.
	DroppedReads int
	// ExcludedUMIs is the # of UMIs dropped by the gene match level filter.
	ExcludedUMIs int
	// MergedUMIs is the # of UMIs folded into a canonical UMI.
	MergedUMIs int
	// ExcludedCells is the # of cells excluded.
	ExcludedCells int
	// MergedCells is the # of cells merged into another cell.
	MergedCells int
	// UnassignedReads is the # of reads the driver could not assign to a
	// gene. The container never sets it; see RecordStats.
	UnassignedReads int
	// UnparsedReads is the # of reads whose barcode or UMI could not be
	// decoded. The container never sets it; see RecordStats.
	UnparsedReads int
}

// Merge adds the field values of the two Stats objects and creates new Stats.
func (s Stats) Merge(o Stats) Stats {
	s.Reads += o.Reads
	s.DroppedReads += o.DroppedReads
	s.ExcludedUMIs += o.ExcludedUMIs
	s.MergedUMIs += o.MergedUMIs
	s.ExcludedCells += o.ExcludedCells
	s.MergedCells += o.MergedCells
	s.UnassignedReads += o.UnassignedReads
	s.UnparsedReads += o.UnparsedReads
	return s
}

// Log writes a summary of s to the info log.
func (s Stats) Log() {
	log.Printf("cells: %d reads, %d dropped (capacity), %d unassigned, %d unparsed",
		s.Reads, s.DroppedReads, s.UnassignedReads, s.UnparsedReads)
	log.Printf("cells: %d UMIs excluded by gene match level, %d UMIs merged", s.ExcludedUMIs, s.MergedUMIs)
	log.Printf("cells: %d cells excluded, %d cells merged", s.ExcludedCells, s.MergedCells)
}

package tags

import (
	"github.com/grailbio/base/log"
)

// Stats counts extraction and trimming outcomes. Each worker owns one Stats
// and the driver merges them at the end of a run.
type Stats struct {
	// Reads is the # of read pairs passed to the extractor.
	Reads int
	// Parsed is the # of read pairs for which a barcode and UMI were found.
	Parsed int

	// SpacerExact is the # of reads whose spacer matched exactly.
	SpacerExact int
	// SpacerEditedPrefixExact is the # of reads whose spacer matched with
	// edits, but whose spacer prefix matched exactly.
	SpacerEditedPrefixExact int
	// SpacerEdited is the # of reads whose spacer matched with edits in
	// the prefix.
	SpacerEdited int
	// SpacerNotFound is the # of reads with no spacer in the window.
	SpacerNotFound int

	// MaskMismatch is the # of reads where a mask literal exceeded its
	// edit budget.
	MaskMismatch int
	// ShortR1 is the # of reads too short to hold the barcode and UMI.
	ShortR1 int

	// TrimmedAdapter is the # of R2 reads cut at the R1 tail.
	TrimmedAdapter int
	// TrimmedPolyA is the # of R2 reads cut at the poly-A tail.
	TrimmedPolyA int
	// TrimSkipped is the # of cuts skipped because R2 would have become
	// shorter than TrimOpts.MinAlignLength.
	TrimSkipped int
	// QualityMismatch is the # of R2 reads whose sequence and quality
	// lengths differed.
	QualityMismatch int
}

// Merge adds the field values of the two Stats objects and creates new Stats.
func (s Stats) Merge(o Stats) Stats {
	s.Reads += o.Reads
	s.Parsed += o.Parsed
	s.SpacerExact += o.SpacerExact
	s.SpacerEditedPrefixExact += o.SpacerEditedPrefixExact
	s.SpacerEdited += o.SpacerEdited
	s.SpacerNotFound += o.SpacerNotFound
	s.MaskMismatch += o.MaskMismatch
	s.ShortR1 += o.ShortR1
	s.TrimmedAdapter += o.TrimmedAdapter
	s.TrimmedPolyA += o.TrimmedPolyA
	s.TrimSkipped += o.TrimSkipped
	s.QualityMismatch += o.QualityMismatch
	return s
}

// Log writes a summary of s to the info log.
func (s Stats) Log() {
	log.Printf("tags: %d read pairs, %d parsed (%.2f%%)", s.Reads, s.Parsed, percent(s.Parsed, s.Reads))
	if n := s.SpacerExact + s.SpacerEditedPrefixExact + s.SpacerEdited + s.SpacerNotFound; n > 0 {
		log.Printf("tags: spacer exact %d, edited with intact prefix %d, edited %d, not found %d",
			s.SpacerExact, s.SpacerEditedPrefixExact, s.SpacerEdited, s.SpacerNotFound)
	}
	if s.MaskMismatch > 0 {
		log.Printf("tags: mask literal mismatch %d", s.MaskMismatch)
	}
	log.Printf("tags: short R1 %d", s.ShortR1)
	log.Printf("tags: R2 trimmed at adapter %d, at poly-A %d, skipped %d",
		s.TrimmedAdapter, s.TrimmedPolyA, s.TrimSkipped)
	if s.QualityMismatch > 0 {
		log.Error.Printf("tags: %d R2 reads had sequence and quality of different length", s.QualityMismatch)
	}
}

func percent(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return 100 * float64(n) / float64(d)
}

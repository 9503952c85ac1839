// Package tags extracts cell barcodes and UMIs from R1 of single-cell read
// pairs and trims the paired R2.
//
// Two layouts are supported. The spacer layout searches R1 for a known
// anchor sequence within a window and slices the barcode and UMI around it.
// The mask layout slices R1 at fixed positions given by a barcode mask.
package tags

import (
	"github.com/grailbio/base/log"
)

// finder extracts the tags from R1. umiQual holds the qualities of the UMI
// bases, or "" when r1Qual does not cover R1. tail is the R1 signature that
// R2 reads through into; it is "" when R1 is too short to hold one.
type finder interface {
	extract(r1, r1Qual string, stats *Stats) (cb, umi, umiQual, tail string, ok bool)
}

// Extractor parses read pairs. It holds only immutable configuration, so a
// single Extractor may be shared by many goroutines as long as each one
// passes its own Stats.
type Extractor struct {
	finder  finder
	trimmer *Trimmer
}

// NewExtractor creates an Extractor. The mask layout is used when
// opts.Mask.BarcodeMask is set, the spacer layout otherwise.
func NewExtractor(opts Opts) (*Extractor, error) {
	var (
		f   finder
		err error
	)
	if opts.Mask.BarcodeMask != "" {
		log.Debug.Printf("tags: using barcode mask %s", opts.Mask.BarcodeMask)
		f, err = NewMaskFinder(opts.Mask)
	} else {
		log.Debug.Printf("tags: using spacer %s", opts.Spacer.Spacer)
		f, err = NewSpacerFinder(opts.Spacer)
	}
	if err != nil {
		return nil, err
	}
	t, err := NewTrimmer(opts.Trim)
	if err != nil {
		return nil, err
	}
	return &Extractor{finder: f, trimmer: t}, nil
}

// ParseAndTrim extracts the barcode and UMI from r1 and trims r2. The result
// is empty if extraction failed; R2 is not trimmed in that case.
func (e *Extractor) ParseAndTrim(r1, name, r2Seq, r2Qual string, stats *Stats) ReadParameters {
	return e.ParseAndTrimQual(r1, "", name, r2Seq, r2Qual, stats)
}

// ParseAndTrimQual is ParseAndTrim that also keeps the qualities of the UMI
// bases, taken from r1Qual, in the result.
func (e *Extractor) ParseAndTrimQual(r1, r1Qual, name, r2Seq, r2Qual string, stats *Stats) ReadParameters {
	stats.Reads++
	cb, umi, umiQual, tail, ok := e.finder.extract(r1, r1Qual, stats)
	if !ok {
		p := EmptyReadParameters()
		p.Name = name
		return p
	}
	stats.Parsed++
	seq, qual := e.trimmer.Trim(tail, r2Seq, r2Qual, stats)
	return ReadParameters{
		Name:        name,
		CellBarcode: cb,
		UMI:         umi,
		UMIQual:     umiQual,
		R2Seq:       seq,
		R2Qual:      qual,
	}
}

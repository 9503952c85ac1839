package tags

import (
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/scrna/biosimd"
	"github.com/grailbio/scrna/util"
)

// NotFound is returned by FindSpacer when the spacer is not in the read.
const NotFound = -1

type spacerOutcome uint8

const (
	spacerNotFound spacerOutcome = iota
	spacerExact
	spacerEditedPrefixExact
	spacerEdited
)

// SpacerFinder locates the spacer in R1 and slices the barcode, UMI and R1
// tail around it. It is immutable after construction and safe for
// concurrent use.
type SpacerFinder struct {
	opts SpacerOpts
}

// NewSpacerFinder validates opts and creates a SpacerFinder.
func NewSpacerFinder(opts SpacerOpts) (*SpacerFinder, error) {
	opts.Spacer = strings.ToUpper(opts.Spacer)
	switch {
	case opts.Spacer == "":
		return nil, errors.E(errors.Invalid, "empty spacer")
	case strings.Trim(opts.Spacer, "ACGTN") != "":
		return nil, errors.E(errors.Invalid, "spacer must consist of ACGTN", opts.Spacer)
	case opts.MaxSpacerEditDistance < 0:
		return nil, errors.E(errors.Invalid, "negative spacer edit distance")
	case opts.SpacerPrefixLength < 0 || opts.SpacerPrefixLength > len(opts.Spacer):
		return nil, errors.E(errors.Invalid, fmt.Sprintf("spacer prefix length %d out of range [0, %d]",
			opts.SpacerPrefixLength, len(opts.Spacer)))
	case opts.SpacerMinPos < 0 || opts.SpacerMinPos > opts.SpacerMaxPos:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("bad spacer window [%d, %d]", opts.SpacerMinPos, opts.SpacerMaxPos))
	case opts.BarcodeLength < 0 || opts.UMILength <= 0 || opts.R1RCLength < 0:
		return nil, errors.E(errors.Invalid, "barcode, UMI and R1 tail lengths must not be negative, UMI length must be positive")
	}
	return &SpacerFinder{opts: opts}, nil
}

// FindSpacer returns the start and end (exclusive) of the best match of the
// spacer whose start lies in [SpacerMinPos, SpacerMaxPos]. An exact match
// wins outright. Next come gap-free matches with at most
// MaxSpacerEditDistance substitutions; the fewest substitutions win, then
// the earliest start. Only when there is none is the spacer aligned with
// insertions and deletions, keeping the fewest edits and the earliest start.
// If there is no such match it returns (NotFound, NotFound).
func (f *SpacerFinder) FindSpacer(seq string) (start, end int) {
	start, end, _ = f.find(seq)
	return start, end
}

func (f *SpacerFinder) find(seq string) (start, end int, outcome spacerOutcome) {
	spacer := f.opts.Spacer
	if f.opts.SpacerMinPos >= len(seq) {
		return NotFound, NotFound, spacerNotFound
	}
	windowEnd := f.opts.SpacerMaxPos + len(spacer)
	if windowEnd > len(seq) {
		windowEnd = len(seq)
	}
	if i := strings.Index(seq[f.opts.SpacerMinPos:windowEnd], spacer); i >= 0 {
		start = f.opts.SpacerMinPos + i
		return start, start + len(spacer), spacerExact
	}
	start, end = NotFound, NotFound
	bestDist := f.opts.MaxSpacerEditDistance + 1
	for pos := f.opts.SpacerMinPos; pos <= f.opts.SpacerMaxPos && pos+len(spacer) <= len(seq); pos++ {
		dist, err := matchr.Hamming(spacer, seq[pos:pos+len(spacer)])
		if err != nil || dist >= bestDist {
			continue
		}
		start, end, bestDist = pos, pos+len(spacer), dist
	}
	if start == NotFound {
		for pos := f.opts.SpacerMinPos; pos <= f.opts.SpacerMaxPos && pos < len(seq); pos++ {
			n, dist := util.AlignPrefix(spacer, seq[pos:], f.opts.MaxSpacerEditDistance)
			if n < 0 || dist >= bestDist {
				continue
			}
			start, end, bestDist = pos, pos+n, dist
		}
	}
	if start == NotFound {
		return NotFound, NotFound, spacerNotFound
	}
	prefix := spacer[:f.opts.SpacerPrefixLength]
	if strings.HasPrefix(seq[start:], prefix) {
		return start, end, spacerEditedPrefixExact
	}
	return start, end, spacerEdited
}

// ParseCellBarcode returns the cell barcode of a read whose spacer spans
// [start, end): the bases before the spacer followed by BarcodeLength bases
// after it. It returns "" if the read is too short.
func (f *SpacerFinder) ParseCellBarcode(seq string, start, end int) string {
	if start < 0 || end < start || end+f.opts.BarcodeLength > len(seq) {
		return ""
	}
	return seq[:start] + seq[end:end+f.opts.BarcodeLength]
}

// ParseUMIBarcode returns the UMI of a read whose spacer ends at end, or ""
// if the read is too short.
func (f *SpacerFinder) ParseUMIBarcode(seq string, end int) string {
	from := end + f.opts.BarcodeLength
	if end < 0 || from+f.opts.UMILength > len(seq) {
		return ""
	}
	return seq[from : from+f.opts.UMILength]
}

// ParseR1RC returns the reverse-complement of the R1RCLength bases following
// the UMI, or "" if the read is too short. This is what R2 reads through into
// when the fragment is shorter than R2.
func (f *SpacerFinder) ParseR1RC(seq string, end int) string {
	from := end + f.opts.BarcodeLength + f.opts.UMILength
	if end < 0 || f.opts.R1RCLength == 0 || from+f.opts.R1RCLength > len(seq) {
		return ""
	}
	return biosimd.ReverseCompString(seq[from : from+f.opts.R1RCLength])
}

func (f *SpacerFinder) extract(seq, qual string, stats *Stats) (cb, umi, umiQual, tail string, ok bool) {
	start, end, outcome := f.find(seq)
	switch outcome {
	case spacerNotFound:
		stats.SpacerNotFound++
		return "", "", "", "", false
	case spacerExact:
		stats.SpacerExact++
	case spacerEditedPrefixExact:
		stats.SpacerEditedPrefixExact++
	case spacerEdited:
		stats.SpacerEdited++
	}
	cb = f.ParseCellBarcode(seq, start, end)
	umi = f.ParseUMIBarcode(seq, end)
	if cb == "" || umi == "" {
		stats.ShortR1++
		return "", "", "", "", false
	}
	if len(qual) == len(seq) {
		from := end + f.opts.BarcodeLength
		umiQual = qual[from : from+len(umi)]
	}
	return cb, umi, umiQual, f.ParseR1RC(seq, end), true
}

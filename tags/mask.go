package tags

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/scrna/biosimd"
	"github.com/grailbio/scrna/util"
)

// PartType is the kind of a barcode mask segment.
type PartType uint8

const (
	// CellBarcodePart is a "[n]" segment, n bases of cell barcode.
	CellBarcodePart PartType = iota
	// SpacerPart is a literal segment.
	SpacerPart
	// UMIPart is a "(n)" segment, n bases of UMI.
	UMIPart
)

func (t PartType) String() string {
	switch t {
	case CellBarcodePart:
		return "CB"
	case SpacerPart:
		return "SPACER"
	case UMIPart:
		return "UMI"
	}
	return fmt.Sprintf("PartType(%d)", t)
}

// MaskPart is one compiled segment of a barcode mask.
type MaskPart struct {
	Type PartType
	// Spacer is the literal for SpacerPart segments, "" otherwise.
	Spacer string
	// Length is the number of read bases the segment consumes.
	Length int
	// MaxEditDistance is the edit budget of a SpacerPart segment.
	MaxEditDistance int
}

// ParseEditDists parses a comma separated list of edit distances such as
// "2,2,7".
func ParseEditDists(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var dists []int
	for _, f := range strings.Split(s, ",") {
		d, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil || d < 0 {
			return nil, errors.E(errors.Invalid, "bad spacer edit distance", f, "in", s)
		}
		dists = append(dists, d)
	}
	return dists, nil
}

// ParseMask compiles a barcode mask. The grammar is a sequence of "[n]"
// (n cell barcode bases), "(n)" (n UMI bases) and literal runs of ACGTN
// (spacers). dists gives one edit budget per spacer in mask order; if it is
// empty every spacer must match exactly.
func ParseMask(mask string, dists []int) ([]MaskPart, error) {
	var parts []MaskPart
	for i := 0; i < len(mask); {
		switch c := mask[i]; c {
		case '[', '(':
			closer := byte(']')
			typ := CellBarcodePart
			if c == '(' {
				closer, typ = ')', UMIPart
			}
			j := strings.IndexByte(mask[i:], closer)
			if j < 0 {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("barcode mask %q: unclosed %c at %d", mask, c, i))
			}
			n, err := strconv.Atoi(mask[i+1 : i+j])
			if err != nil || n <= 0 {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("barcode mask %q: bad length %q at %d", mask, mask[i+1:i+j], i))
			}
			parts = append(parts, MaskPart{Type: typ, Length: n})
			i += j + 1
		default:
			j := i
			for j < len(mask) && strings.IndexByte("ACGTN", mask[j]) >= 0 {
				j++
			}
			if j == i {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("barcode mask %q: unexpected %q at %d", mask, c, i))
			}
			parts = append(parts, MaskPart{Type: SpacerPart, Spacer: mask[i:j], Length: j - i})
			i = j
		}
	}
	if len(parts) == 0 {
		return nil, errors.E(errors.Invalid, "empty barcode mask")
	}
	var nSpacers, nUMI int
	for _, p := range parts {
		switch p.Type {
		case SpacerPart:
			nSpacers++
		case UMIPart:
			nUMI++
		}
	}
	if nUMI == 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("barcode mask %q has no UMI segment", mask))
	}
	if len(dists) > 0 && len(dists) != nSpacers {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("barcode mask %q has %d spacers but %d edit distances", mask, nSpacers, len(dists)))
	}
	if len(dists) > 0 {
		k := 0
		for i := range parts {
			if parts[i].Type == SpacerPart {
				parts[i].MaxEditDistance = dists[k]
				k++
			}
		}
	}
	return parts, nil
}

// MaskFinder extracts the barcode and UMI by slicing R1 at the fixed
// positions of a compiled mask. It is immutable after construction and safe
// for concurrent use.
type MaskFinder struct {
	parts      []MaskPart
	length     int
	r1RCLength int
}

// NewMaskFinder compiles opts.BarcodeMask.
func NewMaskFinder(opts MaskOpts) (*MaskFinder, error) {
	parts, err := ParseMask(opts.BarcodeMask, opts.SpacerEditDists)
	if err != nil {
		return nil, err
	}
	if opts.R1RCLength < 0 {
		return nil, errors.E(errors.Invalid, "negative R1 tail length")
	}
	f := &MaskFinder{parts: parts, r1RCLength: opts.R1RCLength}
	for _, p := range parts {
		f.length += p.Length
	}
	return f, nil
}

// Parts returns the compiled mask.
func (f *MaskFinder) Parts() []MaskPart { return f.parts }

// Parse fills p.Name, p.CellBarcode and p.UMI from seq. On failure it
// marks p empty and returns false.
func (f *MaskFinder) Parse(seq, name string, p *ReadParameters) bool {
	var stats Stats
	cb, umi, _, _, ok := f.extract(seq, "", &stats)
	if !ok {
		*p = EmptyReadParameters()
		return false
	}
	p.Name, p.CellBarcode, p.UMI, p.empty = name, cb, umi, false
	return true
}

func (f *MaskFinder) extract(seq, qual string, stats *Stats) (cb, umi, umiQual, tail string, ok bool) {
	if len(seq) < f.length {
		stats.ShortR1++
		return "", "", "", "", false
	}
	var cbBuf, umiBuf, qualBuf strings.Builder
	withQual := len(qual) == len(seq)
	pos := 0
	for _, part := range f.parts {
		s := seq[pos : pos+part.Length]
		switch part.Type {
		case CellBarcodePart:
			cbBuf.WriteString(s)
		case UMIPart:
			umiBuf.WriteString(s)
			if withQual {
				qualBuf.WriteString(qual[pos : pos+part.Length])
			}
		case SpacerPart:
			if s != part.Spacer && !f.spacerMatches(part, seq, pos) {
				stats.MaskMismatch++
				return "", "", "", "", false
			}
		}
		pos += part.Length
	}
	if f.r1RCLength > 0 && pos+f.r1RCLength <= len(seq) {
		tail = biosimd.ReverseCompString(seq[pos : pos+f.r1RCLength])
	}
	return cbBuf.String(), umiBuf.String(), qualBuf.String(), tail, true
}

// spacerMatches checks the literal against the read at pos, allowing the
// read to contribute downstream bases when the literal has a deletion.
func (f *MaskFinder) spacerMatches(part MaskPart, seq string, pos int) bool {
	if part.MaxEditDistance == 0 {
		return false
	}
	end := pos + part.Length
	downstream := end + part.MaxEditDistance
	if downstream > len(seq) {
		downstream = len(seq)
	}
	return util.Levenshtein(part.Spacer, seq[pos:end], "", seq[end:downstream]) <= part.MaxEditDistance
}

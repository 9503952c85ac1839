package tags

import (
	"strings"

	"github.com/grailbio/base/errors"
)

const (
	// TagSep separates the original read name from the tags in a tagged
	// read name.
	TagSep = '!'
	// UMISep separates the cell barcode from the UMI in a tagged read name.
	UMISep = '#'
	// UMIQualTag is the SAM aux tag that carries the UMI base qualities. It
	// is written to the FASTQ comment so that aligners that copy comments
	// (bwa mem -C) keep it.
	UMIQualTag = "UY"
)

// ReadParameters is the result of parsing one read pair.
type ReadParameters struct {
	// Name is the original read name.
	Name        string
	CellBarcode string
	UMI         string
	// UMIQual holds the Phred+33 qualities of the UMI bases, or "" when R1
	// qualities were not given.
	UMIQual string
	// R2Seq and R2Qual hold the trimmed R2. They always have equal length.
	R2Seq  string
	R2Qual string

	empty bool
}

// EmptyReadParameters returns a result that marks a failed parse.
func EmptyReadParameters() ReadParameters {
	return ReadParameters{empty: true}
}

// IsEmpty reports whether the barcode or UMI could not be extracted.
func (p *ReadParameters) IsEmpty() bool {
	return p.empty
}

// TaggedName encodes the read name with its barcode and UMI, as
// "name!CB#UMI".
func (p *ReadParameters) TaggedName() string {
	var b strings.Builder
	b.Grow(len(p.Name) + len(p.CellBarcode) + len(p.UMI) + 2)
	b.WriteString(p.Name)
	b.WriteByte(TagSep)
	b.WriteString(p.CellBarcode)
	b.WriteByte(UMISep)
	b.WriteString(p.UMI)
	return b.String()
}

// Comment returns the SAM-formatted FASTQ comment that carries the UMI
// qualities, or "" if there are none.
func (p *ReadParameters) Comment() string {
	if p.UMIQual == "" {
		return ""
	}
	return UMIQualTag + ":Z:" + p.UMIQual
}

// ParseTaggedName decodes a name produced by TaggedName. The original
// name may itself contain TagSep; the last one is used.
func ParseTaggedName(tagged string) (name, cellBarcode, umi string, err error) {
	i := strings.LastIndexByte(tagged, TagSep)
	if i < 0 {
		return "", "", "", errors.E(errors.Invalid, "read name has no tags", tagged)
	}
	tags := tagged[i+1:]
	j := strings.IndexByte(tags, UMISep)
	if j < 0 {
		return "", "", "", errors.E(errors.Invalid, "read name has no UMI", tagged)
	}
	name, cellBarcode, umi = tagged[:i], tags[:j], tags[j+1:]
	if cellBarcode == "" || umi == "" {
		return "", "", "", errors.E(errors.Invalid, "read name has empty tags", tagged)
	}
	return name, cellBarcode, umi, nil
}

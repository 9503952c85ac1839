package umi

import (
	"strings"

	"github.com/grailbio/base/errors"
)

// Mark records how the reads of a UMI overlap the gene annotation. It is a
// set of three bits; all eight combinations are valid.
type Mark uint8

const (
	// None means no read has been classified.
	None Mark = 0
	// HasNotAnnotated is set when a read falls outside any annotated gene.
	HasNotAnnotated Mark = 1
	// HasExons is set when a read overlaps an exon.
	HasExons Mark = 2
	// HasIntrons is set when a read lies within a gene but misses its exons.
	HasIntrons Mark = 4

	allMarks = HasNotAnnotated | HasExons | HasIntrons
)

// DefaultCode is the gene match level code accepted by default: reads with
// exonic evidence, alone or combined with other levels.
const DefaultCode = "eEBA"

// markCodes is indexed by Mark value.
var markCodes = [...]byte{'0', 'n', 'e', 'E', 'i', 'I', 'B', 'A'}

// Or returns the union of m and o.
func (m Mark) Or(o Mark) Mark { return m | o }

// And returns the intersection of m and o.
func (m Mark) And(o Mark) Mark { return m & o }

// Equal reports whether m and o have the same bit pattern.
func (m Mark) Equal(o Mark) bool { return m == o }

// Check reports whether every bit of t is set in m.
func (m Mark) Check(t Mark) bool { return m&t == t }

// Match reports whether m is exactly equal to one of the marks in q. A mark
// that is a strict superset or subset of every member of q does not match.
func (m Mark) Match(q []Mark) bool {
	for _, o := range q {
		if m == o {
			return true
		}
	}
	return false
}

// Code returns the one-character code of m.
func (m Mark) Code() byte {
	return markCodes[m&allMarks]
}

// String implements fmt.Stringer.
func (m Mark) String() string {
	return string(m.Code())
}

// MarkFromCode decodes a single code character.
func MarkFromCode(c byte) (Mark, error) {
	for i, code := range markCodes {
		if code == c {
			return Mark(i), nil
		}
	}
	return None, errors.E(errors.Invalid, "unknown gene match level code", string(c))
}

// ParseMarks decodes every character of code into a Mark, in order.
func ParseMarks(code string) ([]Mark, error) {
	marks := make([]Mark, 0, len(code))
	for i := 0; i < len(code); i++ {
		m, err := MarkFromCode(code[i])
		if err != nil {
			return nil, errors.E(err, "gene match levels", code)
		}
		marks = append(marks, m)
	}
	return marks, nil
}

// MarksCode encodes marks as a code string, the inverse of ParseMarks.
func MarksCode(marks []Mark) string {
	var b strings.Builder
	for _, m := range marks {
		b.WriteByte(m.Code())
	}
	return b.String()
}

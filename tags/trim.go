package tags

import (
	"strings"

	"github.com/grailbio/base/errors"
)

// Trimmer cuts the 3' end of R2 at the R1 tail signature and at the poly-A
// tail. It never fails: a cut that would leave R2 shorter than
// MinAlignLength is skipped.
type Trimmer struct {
	opts TrimOpts
}

// NewTrimmer validates opts and creates a Trimmer.
func NewTrimmer(opts TrimOpts) (*Trimmer, error) {
	opts.PolyATail = strings.ToUpper(opts.PolyATail)
	if opts.MinAlignLength < 0 {
		return nil, errors.E(errors.Invalid, "negative min align length")
	}
	if strings.Trim(opts.PolyATail, "ACGTN") != "" {
		return nil, errors.E(errors.Invalid, "poly-A tail must consist of ACGTN", opts.PolyATail)
	}
	return &Trimmer{opts: opts}, nil
}

// Trim returns seq and qual cut at the first occurrence of tail, then at
// the first occurrence of the poly-A literal. An empty tail is not
// searched. The results always have equal length: if seq and qual differ,
// both are first cut to the shorter one.
func (t *Trimmer) Trim(tail, seq, qual string, stats *Stats) (string, string) {
	if len(seq) != len(qual) {
		stats.QualityMismatch++
		if len(seq) > len(qual) {
			seq = seq[:len(qual)]
		} else {
			qual = qual[:len(seq)]
		}
	}
	if tail != "" {
		if i := strings.Index(seq, tail); i >= 0 {
			if i >= t.opts.MinAlignLength {
				seq, qual = seq[:i], qual[:i]
				stats.TrimmedAdapter++
			} else {
				stats.TrimSkipped++
			}
		}
	}
	if t.opts.PolyATail != "" {
		if i := strings.Index(seq, t.opts.PolyATail); i >= 0 {
			if i >= t.opts.MinAlignLength {
				seq, qual = seq[:i], qual[:i]
				stats.TrimmedPolyA++
			} else {
				stats.TrimSkipped++
			}
		}
	}
	return seq, qual
}

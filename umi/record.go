package umi

// Record holds the reads collapsed onto one UMI of one gene in one cell.
type Record struct {
	// ReadCount is the number of reads carrying this UMI.
	ReadCount int
	// Mark is the union of the annotation marks of those reads.
	Mark Mark
	// SumQuality holds the per-position sum of Phred scores of the UMI
	// bases. It is nil when quality is not tracked.
	SumQuality []uint32
}

// NewRecord creates an empty record. If qualityLen > 0 the record tracks
// per-position UMI quality.
func NewRecord(qualityLen int) *Record {
	r := &Record{}
	if qualityLen > 0 {
		r.SumQuality = make([]uint32, qualityLen)
	}
	return r
}

// AddRead adds one read with the given mark. qual holds the Phred+33
// qualities of the UMI bases; it is ignored when the record does not track
// quality. Positions past len(SumQuality) are dropped.
func (r *Record) AddRead(mark Mark, qual string) {
	r.ReadCount++
	r.Mark |= mark
	if r.SumQuality == nil {
		return
	}
	for i := 0; i < len(qual) && i < len(r.SumQuality); i++ {
		if q := qual[i]; q >= 33 {
			r.SumQuality[i] += uint32(q - 33)
		}
	}
}

// Merge folds o into r: read counts add, marks are ORed, and quality sums
// add position-wise. Merge is commutative and associative.
func (r *Record) Merge(o Record) {
	r.ReadCount += o.ReadCount
	r.Mark |= o.Mark
	if len(o.SumQuality) > len(r.SumQuality) {
		q := make([]uint32, len(o.SumQuality))
		copy(q, r.SumQuality)
		r.SumQuality = q
	}
	for i, q := range o.SumQuality {
		r.SumQuality[i] += q
	}
}

// MeanQuality returns the mean Phred score per UMI position, or nil when
// quality is not tracked.
func (r *Record) MeanQuality() []float64 {
	if r.SumQuality == nil {
		return nil
	}
	mean := make([]float64, len(r.SumQuality))
	if r.ReadCount == 0 {
		return mean
	}
	for i, q := range r.SumQuality {
		mean[i] = float64(q) / float64(r.ReadCount)
	}
	return mean
}

package umi

import (
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestMarkOps(t *testing.T) {
	m := None.Or(HasExons)
	expect.True(t, m.Check(HasExons))
	expect.False(t, m.Check(HasIntrons))
	expect.True(t, m.Check(None))

	m = m.Or(HasIntrons)
	expect.True(t, m.Check(HasExons|HasIntrons))
	expect.False(t, m.Check(HasExons|HasNotAnnotated))
	expect.EQ(t, m.And(HasIntrons|HasNotAnnotated), HasIntrons)
	expect.True(t, m.Equal(HasIntrons|HasExons))
	expect.EQ(t, m.Or(m), m)
}

func TestMarkMatchIsExact(t *testing.T) {
	q := []Mark{HasExons, HasExons | HasIntrons}
	expect.True(t, HasExons.Match(q))
	expect.True(t, (HasIntrons | HasExons).Match(q))
	// Supersets and subsets of query members do not match.
	expect.False(t, (HasExons | HasNotAnnotated).Match(q))
	expect.False(t, HasIntrons.Match(q))
	expect.False(t, None.Match(q))
	expect.False(t, HasExons.Match(nil))
}

func TestMarkCodes(t *testing.T) {
	for m := None; m <= allMarks; m++ {
		got, err := MarkFromCode(m.Code())
		assert.NoError(t, err)
		expect.EQ(t, got, m)
	}
	expect.EQ(t, HasExons.String(), "e")
	expect.EQ(t, (HasExons | HasIntrons | HasNotAnnotated).String(), "A")

	marks, err := ParseMarks(DefaultCode)
	assert.NoError(t, err)
	expect.EQ(t, marks, []Mark{
		HasExons,
		HasExons | HasNotAnnotated,
		HasExons | HasIntrons,
		HasExons | HasIntrons | HasNotAnnotated,
	})
	expect.EQ(t, MarksCode(marks), DefaultCode)

	marks, err = ParseMarks("")
	assert.NoError(t, err)
	expect.EQ(t, len(marks), 0)

	_, err = ParseMarks("eX")
	expect.True(t, errors.Is(errors.Invalid, err))
}

func TestRecord(t *testing.T) {
	r := NewRecord(3)
	r.AddRead(HasExons, "III")
	r.AddRead(HasIntrons, "+5")
	expect.EQ(t, r.ReadCount, 2)
	expect.EQ(t, r.Mark, HasExons|HasIntrons)
	expect.EQ(t, r.SumQuality, []uint32{40 + 10, 40 + 20, 40})
	expect.EQ(t, r.MeanQuality(), []float64{25, 30, 20})

	plain := NewRecord(0)
	plain.AddRead(HasNotAnnotated, "III")
	expect.EQ(t, plain.ReadCount, 1)
	expect.True(t, plain.SumQuality == nil)
	expect.True(t, plain.MeanQuality() == nil)
}

func TestRecordMerge(t *testing.T) {
	a := Record{ReadCount: 2, Mark: HasExons, SumQuality: []uint32{1, 2}}
	b := Record{ReadCount: 3, Mark: HasIntrons, SumQuality: []uint32{10, 20, 30}}
	c := Record{ReadCount: 1, Mark: HasNotAnnotated}

	ab := a
	ab.SumQuality = append([]uint32(nil), a.SumQuality...)
	ab.Merge(b)
	ab.Merge(c)

	cb := c
	cb.Merge(b)
	cb.Merge(a)

	for _, r := range []Record{ab, cb} {
		expect.EQ(t, r.ReadCount, 6)
		expect.EQ(t, r.Mark, HasExons|HasIntrons|HasNotAnnotated)
		expect.EQ(t, r.SumQuality, []uint32{11, 22, 30})
	}
	// Merging must not alias the source vector.
	expect.EQ(t, b.SumQuality, []uint32{10, 20, 30})
}

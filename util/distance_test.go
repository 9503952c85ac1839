package util

import (
	"testing"

	"github.com/antzucaro/matchr"
	"github.com/grailbio/testutil/expect"
)

func TestGridFill(t *testing.T) {
	x, y := []byte("AC"), []byte("AG")
	g := newGrid(3, 3)
	want := [][]moves{
		{0, 0, 0},
		{0, fromDiag, fromLeft},
		{0, fromUp, fromDiag},
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			expect.EQ(t, g.fill(i, j, x, y), want[i][j], "cell (%d, %d)", i, j)
		}
	}
	expect.EQ(t, g.at(1, 2), 1)
	expect.EQ(t, g.at(2, 1), 1)
	expect.EQ(t, g.at(2, 2), 1)
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		s1, s2, a1, a2 string
		want           int
	}{
		// ATCGGT-X
		// A-CGGTX  : the deleted T pulls X of a1 into the read.
		{"ATCGGT", "ACGGTX", "XYZ", "", 1},
		{"ACGGTX", "ATCGGT", "", "XYZ", 1},
		// Substitutions only.
		{"ACAATTGG", "AXAAXTGX", "", "", 3},
		// Four deletions, filled from HIJK.
		{"ATATACGGT", "ACGGTHIJK", "HIJKLMN", "", 4},
		{"CTCAGCGGCT", "AGCCTAACTC", "ACACTCTTTCCCTACACGACGCTCTTCCGATCT", "GTGACTGGAGTTCAGACGTGTGCTCTTCCGATC", 8},
		{"ACGT", "ACGT", "TT", "GG", 0},
		{"", "", "A", "C", 0},
	}
	for _, test := range tests {
		expect.EQ(t, Levenshtein(test.s1, test.s2, test.a1, test.a2), test.want, "%+v", test)
		// Without downstream bases the result is the plain distance.
		expect.EQ(t, Levenshtein(test.s1, test.s2, "", ""), matchr.Levenshtein(test.s1, test.s2), "%+v", test)
	}
}

func TestLevenshteinLengthMismatch(t *testing.T) {
	defer func() {
		expect.True(t, recover() != nil)
	}()
	Levenshtein("ACG", "AC", "", "")
}

func TestAlignPrefix(t *testing.T) {
	const spacer = "GAGTGATTGCTTGTGACGCCTT"
	tests := []struct {
		pattern, text string
		maxDist       int
		wantEnd       int
		wantDist      int
	}{
		{spacer, spacer + "CTTCG", 0, 22, 0},
		// One substitution.
		{spacer, "GAGTGTTTGCTTGTGACGCCTTACC", 3, 22, 1},
		// Two substitutions near the end.
		{spacer, "GAGTGATTGCTTGTGACGGGTTTCATCC", 3, 22, 2},
		// A deleted base in the text shortens the match.
		{spacer, "GAGTGATGCTTGTGACGCCTTACG", 3, 21, 1},
		// An inserted base lengthens it.
		{spacer, "GAGTGATTAGCTTGTGACGCCTTACG", 3, 23, 1},
		{spacer, "CCCCCCCCCCCCCCCCCCCCCCCC", 3, -1, -1},
		{"ACGT", "AC", 2, 2, 2},
		{"ACGT", "AC", 1, -1, -1},
		{"", "ACGT", 0, 0, 0},
	}
	for _, test := range tests {
		end, dist := AlignPrefix(test.pattern, test.text, test.maxDist)
		if end != test.wantEnd || dist != test.wantDist {
			t.Errorf("AlignPrefix(%s, %s, %d): got (%d, %d), want (%d, %d)",
				test.pattern, test.text, test.maxDist, end, dist, test.wantEnd, test.wantDist)
		}
		if end >= 0 {
			if got := matchr.Levenshtein(test.pattern, test.text[:end]); got != dist {
				t.Errorf("AlignPrefix(%s, %s): distance %d disagrees with matchr %d", test.pattern, test.text, dist, got)
			}
		}
	}
}

// Package util holds the edit distance routines used to match barcodes,
// UMIs and spacers that carry sequencing errors.
package util

import (
	"fmt"
)

// moves is the set of predecessors of a grid cell that reach its minimum
// edit cost.
type moves uint8

const (
	// fromDiag is a match or substitution, from (i-1, j-1).
	fromDiag moves = 1 << iota
	// fromLeft consumes a base of the second sequence, from (i, j-1).
	fromLeft
	// fromUp consumes a base of the first sequence, from (i-1, j).
	fromUp
)

// grid is a dense row-major edit cost table.
type grid struct {
	width int
	cost  []int
}

func newGrid(height, width int) grid {
	return grid{width: width, cost: make([]int, height*width)}
}

func (g grid) at(i, j int) int { return g.cost[i*g.width+j] }

// fill computes the cost of cell (i, j) of the alignment of x and y from its
// three neighbors and reports which of them reach the minimum.
func (g grid) fill(i, j int, x, y []byte) moves {
	switch {
	case i == 0:
		g.cost[j] = j
		return 0
	case j == 0:
		g.cost[i*g.width] = i
		return 0
	case x[i-1] == y[j-1]:
		g.cost[i*g.width+j] = g.at(i-1, j-1)
		return fromDiag
	}
	up := g.at(i-1, j) + 1
	diag := g.at(i-1, j-1) + 1
	left := g.at(i, j-1) + 1
	best := up
	if diag < best {
		best = diag
	}
	if left < best {
		best = left
	}
	g.cost[i*g.width+j] = best

	var m moves
	if up == best {
		m |= fromUp
	}
	if diag == best {
		m |= fromDiag
	}
	if left == best {
		m |= fromLeft
	}
	return m
}

// Levenshtein returns the number of insertions, deletions and substitutions
// that turn barcode s1 into barcode s2, which must have the same length.
//
// A sequencer always reads a fixed number of barcode bases, so a deletion
// inside a barcode pulls the first base after it into the read. a1 and a2
// are the bases read after s1 and s2. When the cheapest alignment of the
// barcodes ends in an indel, the alignment is extended into these bases, one
// base at a time, and the cheaper of the plain and the extended alignment
// wins.
func Levenshtein(s1, s2, a1, a2 string) (distance int) {
	if len(s1) != len(s2) {
		panic(fmt.Sprintf("s1 and s2 must have equal length: '%s', '%s'", s1, s2))
	}
	n := len(s1)
	if n == 0 {
		return 0
	}
	x, y := []byte(s1), []byte(s2)
	g := newGrid(n+len(a1)+1, n+len(a2)+1)

	// The table is filled along the diagonal: step (i, j) completes row i up
	// to column j and column j up to row i.
	i, j := 1, 1
	xLen, yLen := n, n
	for {
		if i <= xLen {
			for k := 0; k < j; k++ {
				g.fill(i, k, x, y)
			}
		}
		if j <= yLen {
			for k := 0; k < i; k++ {
				g.fill(k, j, x, y)
			}
		}
		last := g.fill(i, j, x, y)
		if i < n {
			i++
			j++
			continue
		}
		extended := false
		if last&fromUp != 0 && len(a2) > 0 {
			y = append(y, a2[0])
			a2 = a2[1:]
			j++
			yLen++
			extended = true
		}
		if last&fromLeft != 0 && len(a1) > 0 {
			x = append(x, a1[0])
			a1 = a1[1:]
			i++
			xLen++
			extended = true
		}
		if !extended {
			if plain := g.at(n, n); plain <= g.at(i, j) {
				return plain
			}
			return g.at(i, j)
		}
	}
}

// AlignPrefix aligns pattern against the beginning of text. The start of the
// alignment is pinned to text[0] while its end is free, so insertions and
// deletions inside the pattern shift the end of the match. It returns the end
// offset in text (exclusive) and the edit distance of the best alignment with
// at most maxDist edits. Among equally good alignments the one whose length is
// closest to len(pattern) wins, then the shorter one. If no alignment is
// within maxDist, AlignPrefix returns (-1, -1).
func AlignPrefix(pattern, text string, maxDist int) (end, dist int) {
	if maxDist < 0 {
		return -1, -1
	}
	m := len(pattern)
	n := len(text)
	if n > m+maxDist {
		n = m + maxDist
	}
	prev := make([]int, n+1)
	cur := make([]int, n+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= m; i++ {
		cur[0] = i
		rowMin := i
		for j := 1; j <= n; j++ {
			v := prev[j-1]
			if pattern[i-1] != text[j-1] {
				v++
			}
			if d := prev[j] + 1; d < v {
				v = d
			}
			if d := cur[j-1] + 1; d < v {
				v = d
			}
			cur[j] = v
			if v < rowMin {
				rowMin = v
			}
		}
		if rowMin > maxDist {
			// Row minima never decrease.
			return -1, -1
		}
		prev, cur = cur, prev
	}
	end, dist = -1, maxDist+1
	for j := 0; j <= n; j++ {
		d := prev[j]
		if d > maxDist {
			continue
		}
		if d < dist || (d == dist && abs(j-m) < abs(end-m)) {
			end, dist = j, d
		}
	}
	if end < 0 {
		return -1, -1
	}
	return end, dist
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

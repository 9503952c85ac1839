package umi

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/scrna/util"
)

var (
	alphabetMap = map[byte]bool{
		'A': true,
		'C': true,
		'G': true,
		'T': true,
	}

	alphabetWithNMap = map[byte]bool{
		'A': true,
		'C': true,
		'G': true,
		'T': true,
		'N': true,
	}
)

func levenshteinCostFn(s1, s2 string) int {
	if len(s1) == len(s2) {
		return util.Levenshtein(s1, s2, "", "")
	}
	return matchr.Levenshtein(s1, s2)
}

// SnapCorrector implements "snap" correction of barcodes and UMIs against a
// list of known sequences. A sequence S is snappable if there is a known
// sequence K that is closer to S than all other known sequences, in terms of
// Levenshtein edit distance, and the distance is at most maxEdits.
type SnapCorrector struct {
	known    []string
	knownSet map[string]bool
	maxEdits int
}

// NewSnapCorrector creates a new snap corrector. knownSeqs is a \n
// separated list of sequences (identical to the file content of a
// whitelist, where each line contains one sequence). Each sequence must
// consist of characters ACGT; blank lines are skipped. Sequences may
// differ in length.
func NewSnapCorrector(knownSeqs []byte, maxEdits int) (*SnapCorrector, error) {
	log.Debug.Printf("Building snap corrector, max edits %d", maxEdits)
	if maxEdits < 0 {
		return nil, errors.E(errors.Invalid, "negative max edits")
	}
	scanner := bufio.NewScanner(bytes.NewReader(knownSeqs))
	c := &SnapCorrector{knownSet: map[string]bool{}, maxEdits: maxEdits}
	for scanner.Scan() {
		seq := strings.ToUpper(strings.TrimSpace(scanner.Text()))
		if seq == "" {
			continue
		}
		if err := validateSeq(seq, false); err != nil {
			return nil, err
		}
		if c.knownSet[seq] {
			continue
		}
		c.knownSet[seq] = true
		c.known = append(c.known, seq)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(c.known) == 0 {
		return nil, errors.E(errors.Invalid, "no sequences in known list")
	}
	log.Debug.Printf("Snap corrector has %d known sequences", len(c.known))
	return c, nil
}

// Known returns the known sequences in input order.
func (c *SnapCorrector) Known() []string { return c.known }

// Correct returns the known sequence seq snaps to, the number of edits to
// it, and true if exactly one known sequence is closest to seq and at most
// maxEdits away. A known sequence snaps to itself with zero edits.
// Otherwise Correct returns seq, -1, and false.
func (c *SnapCorrector) Correct(seq string) (corrected string, edits int, ok bool) {
	seq = strings.ToUpper(seq)
	if c.knownSet[seq] {
		return seq, 0, true
	}
	if validateSeq(seq, true) != nil {
		return seq, -1, false
	}
	best, bestCost, nBest := "", c.maxEdits+1, 0
	for _, known := range c.known {
		if d := len(known) - len(seq); d > c.maxEdits || -d > c.maxEdits {
			continue
		}
		cost := levenshteinCostFn(seq, known)
		switch {
		case cost < bestCost:
			best, bestCost, nBest = known, cost, 1
		case cost == bestCost:
			nBest++
		}
	}
	if nBest != 1 {
		return seq, -1, false
	}
	log.Debug.Printf("%s snaps to %s with cost %d", seq, best, bestCost)
	return best, bestCost, true
}

func validateSeq(seq string, allowN bool) error {
	for i := 0; i < len(seq); i++ {
		c := seq[i]
		if (allowN && !alphabetWithNMap[c]) || (!allowN && !alphabetMap[c]) {
			return errors.E(errors.Invalid, "invalid base", string(c), "in", seq)
		}
	}
	return nil
}

// Package fastq reads and writes FASTQ files, including the R1/R2 pairs that
// carry cell barcodes and UMIs in single-cell libraries.
package fastq

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrShort means the input ended inside a record.
	ErrShort = errors.New("short FASTQ file")
	// ErrInvalid means a record is malformed.
	ErrInvalid = errors.New("invalid FASTQ file")
	// ErrDiscordant means the R1 and R2 files do not hold the same reads.
	ErrDiscordant = errors.New("discordant FASTQ pairs")
)

// Read holds the four lines of a FASTQ record. Unk is the third line,
// starting with '+'.
type Read struct {
	ID, Seq, Unk, Qual string
}

// Name returns the read name: the ID line without its leading '@', without
// anything after the first whitespace, and without a trailing /1 or /2 mate
// suffix.
func (r *Read) Name() string {
	name := strings.TrimPrefix(r.ID, "@")
	if i := strings.IndexAny(name, " \t"); i >= 0 {
		name = name[:i]
	}
	if n := len(name); n >= 2 && name[n-2] == '/' && (name[n-1] == '1' || name[n-1] == '2') {
		name = name[:n-2]
	}
	return name
}

var errEOF = errors.New("eof")

// Field is a bitset of the four lines of a FASTQ record. It selects the
// Read fields a Scanner fills.
type Field uint

const (
	// ID selects Read.ID.
	ID Field = 1 << iota
	// Seq selects Read.Seq.
	Seq
	// Unk selects Read.Unk.
	Unk
	// Qual selects Read.Qual.
	Qual
	// All selects every field.
	All = ID | Seq | Unk | Qual
)

// maxLine bounds the length of a single FASTQ line.
const maxLine = 1 << 20

// Scanner reads FASTQ records one at a time. Scanners are not thread
// safe.
//
// The ID line must start with '@' and the third line with '+'. Sequence
// and quality lengths are not compared; the tag extractor reconciles them.
type Scanner struct {
	b      *bufio.Scanner
	err    error
	fields Field
	line   int
}

// NewScanner creates a Scanner that fills the given fields of each read,
// typically All or ID|Seq|Qual.
func NewScanner(r io.Reader, fields Field) *Scanner {
	b := bufio.NewScanner(r)
	b.Buffer(nil, maxLine)
	return &Scanner{b: b, fields: fields}
}

// recordLines describes the four lines of a record: the required first
// byte, if any, and the field each line fills.
var recordLines = [4]struct {
	prefix byte
	field  Field
}{
	{'@', ID},
	{0, Seq},
	{'+', Unk},
	{0, Qual},
}

// Scan reads the next record into read. It returns false at the end of the
// input or on error, and never returns true after that; Err tells the two
// apart.
func (f *Scanner) Scan(read *Read) bool {
	if f.err != nil {
		return false
	}
	for i, l := range recordLines {
		if !f.b.Scan() {
			switch f.err = f.b.Err(); {
			case f.err != nil:
			case i == 0:
				f.err = errEOF
			default:
				f.err = ErrShort
			}
			return false
		}
		f.line++
		text := f.b.Bytes()
		if l.prefix != 0 && (len(text) == 0 || text[0] != l.prefix) {
			f.err = ErrInvalid
			return false
		}
		if f.fields&l.field == 0 {
			continue
		}
		switch l.field {
		case ID:
			read.ID = string(text)
		case Seq:
			read.Seq = string(text)
		case Unk:
			read.Unk = string(text)
		case Qual:
			read.Qual = string(text)
		}
	}
	return true
}

// Line returns the number of lines consumed so far. After a failed scan it
// is the line on which the error was detected.
func (f *Scanner) Line() int { return f.line }

// Err returns the error that stopped the scan, or nil at the end of the
// input.
func (f *Scanner) Err() error {
	if f.err == errEOF {
		return nil
	}
	return f.err
}

// PairOpts controls PairScanner.
type PairOpts struct {
	// Fields is the set of fields read from both files.
	Fields Field
	// Limit stops the scan after this many pairs. Zero or negative
	// means no limit.
	Limit int
	// CheckNames requires that R1 and R2 carry the same read name.
	CheckNames bool
}

// PairScanner reads R1 and R2 records in lockstep.
type PairScanner struct {
	r1, r2 *Scanner
	opts   PairOpts
	n      int
	err    error
}

// NewPairScanner creates a PairScanner over the R1 and R2 inputs.
func NewPairScanner(r1, r2 io.Reader, opts PairOpts) *PairScanner {
	if opts.CheckNames {
		opts.Fields |= ID
	}
	return &PairScanner{
		r1:   NewScanner(r1, opts.Fields),
		r2:   NewScanner(r2, opts.Fields),
		opts: opts,
	}
}

// Scan reads the next pair into r1 and r2. It returns false at the end of
// the inputs, at the pair limit, or on error, and never returns true after
// that; Err tells these apart.
func (p *PairScanner) Scan(r1, r2 *Read) bool {
	if p.err != nil || (p.opts.Limit > 0 && p.n >= p.opts.Limit) {
		return false
	}
	ok1 := p.r1.Scan(r1)
	ok2 := p.r2.Scan(r2)
	if ok1 != ok2 {
		p.err = ErrDiscordant
		return false
	}
	if !ok1 {
		return false
	}
	if p.opts.CheckNames && r1.Name() != r2.Name() {
		p.err = fmt.Errorf("%v: line %d: %q vs %q", ErrDiscordant, p.r1.Line()-3, r1.Name(), r2.Name())
		return false
	}
	p.n++
	return true
}

// N returns the number of pairs scanned so far.
func (p *PairScanner) N() int { return p.n }

// Err returns the error that stopped the scan, if any.
func (p *PairScanner) Err() error {
	if err := p.r1.Err(); err != nil {
		return err
	}
	if err := p.r2.Err(); err != nil {
		return err
	}
	return p.err
}

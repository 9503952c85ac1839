package main

import (
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/scrna/annotation"
	"github.com/grailbio/scrna/cells"
	"github.com/grailbio/scrna/tags"
)

var (
	cbTag      = sam.NewTag("CB")
	umiTag     = sam.NewTag("UB")
	umiQualTag = sam.NewTag(tags.UMIQualTag)
)

// skipFlags are the flags of reads that are never counted.
const skipFlags = sam.Unmapped | sam.Secondary | sam.Supplementary | sam.QCFail

// readTags returns the cell barcode, UMI and UMI qualities of r. The
// barcode and UMI are taken from the tagged read name written by
// bio-scrna-tag, or else from the CB and UB aux fields. The qualities come
// from the UY aux field and are "" when it is missing or does not match the
// UMI length.
//
// The results are copies: the BAM reader recycles r, and r.Name aliases
// its buffer.
func readTags(r *sam.Record) (cb, umiSeq, umiQual string, ok bool) {
	if _, nameCB, nameUMI, err := tags.ParseTaggedName(r.Name); err == nil {
		cb, umiSeq = nameCB, nameUMI
	} else {
		cbAux, umiAux := r.AuxFields.Get(cbTag), r.AuxFields.Get(umiTag)
		if cbAux == nil || umiAux == nil {
			return "", "", "", false
		}
		var ok1, ok2 bool
		cb, ok1 = cbAux.Value().(string)
		umiSeq, ok2 = umiAux.Value().(string)
		if !ok1 || !ok2 || cb == "" || umiSeq == "" {
			return "", "", "", false
		}
	}
	if qualAux := r.AuxFields.Get(umiQualTag); qualAux != nil {
		if q, isStr := qualAux.Value().(string); isStr && len(q) == len(umiSeq) {
			umiQual = clone(q)
		}
	}
	return clone(cb), clone(umiSeq), umiQual, true
}

func clone(s string) string {
	return string(append([]byte(nil), s...))
}

// cigarBlocks returns the reference intervals covered by the aligned bases
// of r. A skip (N) starts a new block; deletions extend the current one.
func cigarBlocks(r *sam.Record) []annotation.Range {
	var (
		blocks []annotation.Range
		pos    = r.Pos
		cur    = annotation.Range{Start: pos, End: pos}
	)
	for _, op := range r.Cigar {
		n := op.Len()
		switch op.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch, sam.CigarDeletion:
			pos += n
			cur.End = pos
		case sam.CigarSkipped:
			if cur.End > cur.Start {
				blocks = append(blocks, cur)
			}
			pos += n
			cur = annotation.Range{Start: pos, End: pos}
		}
	}
	if cur.End > cur.Start {
		blocks = append(blocks, cur)
	}
	return blocks
}

// countBAM adds every primary, mapped read of the BAM file at path to c.
// Reads are assigned to genes with idx.
func countBAM(ctx context.Context, path string, idx *annotation.Index, c *cells.Container) (err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return errors.E(err, "open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	br, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		return errors.E(err, "read BAM header", path)
	}
	defer func() {
		if cerr := br.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var (
		stats   cells.Stats
		nRead   int
		skipped int
	)
	for {
		r, err := br.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.E(err, "read", path)
		}
		nRead++
		if nRead%(1<<22) == 0 {
			log.Printf("%s: %dMi records", path, nRead>>20)
		}
		if r.Flags&skipFlags != 0 || r.Ref == nil {
			skipped++
			sam.PutInFreePool(r)
			continue
		}
		cb, umiSeq, umiQual, ok := readTags(r)
		if !ok {
			stats.UnparsedReads++
			sam.PutInFreePool(r)
			continue
		}
		gene, mark := idx.Classify(r.Ref.Name(), cigarBlocks(r))
		if gene == "" {
			stats.UnassignedReads++
			sam.PutInFreePool(r)
			continue
		}
		sam.PutInFreePool(r)
		if _, err := c.AddRecordQuality(cb, umiSeq, gene, mark, umiQual); err != nil && err != cells.ErrCapacityExceeded {
			return err
		}
	}
	log.Printf("%s: %d records, %d skipped, %d unparsed, %d without a gene",
		path, nRead, skipped, stats.UnparsedReads, stats.UnassignedReads)
	c.RecordStats(stats)
	return nil
}

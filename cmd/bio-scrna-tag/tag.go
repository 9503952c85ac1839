package main

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/dsnet/compress/bzip2"
	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/scrna/encoding/fastq"
	"github.com/grailbio/scrna/tags"
	"github.com/klauspost/pgzip"
)

// tagFlags holds the driver options that are not tag extraction parameters.
type tagFlags struct {
	r1, r2      string
	output      string
	parallelism int
	batchSize   int
	checkNames  bool
}

// batch is a run of consecutive read pairs. seq orders batches in input
// order.
type batch struct {
	seq    int
	r1, r2 []fastq.Read
}

// tagged is the output of one batch.
type tagged struct {
	seq   int
	reads []fastq.Read
}

func openFASTQ(ctx context.Context, path string) (file.File, io.Reader, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, errors.E(err, "open", path)
	}
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, in.Name()); u != nil {
		r = u
	}
	return in, r, nil
}

// readBatches scans the read pairs and sends them in batches of n.
func readBatches(ctx context.Context, flags tagFlags, maxReads int, batchCh chan<- batch) error {
	in1, r1, err := openFASTQ(ctx, flags.r1)
	if err != nil {
		return err
	}
	in2, r2, err := openFASTQ(ctx, flags.r2)
	if err != nil {
		_ = in1.Close(ctx)
		return err
	}
	sc := fastq.NewPairScanner(r1, r2, fastq.PairOpts{
		Fields:     fastq.All,
		Limit:      maxReads,
		CheckNames: flags.checkNames,
	})
	var (
		seq int
		b   = batch{seq: seq}
	)
	for {
		var read1, read2 fastq.Read
		if !sc.Scan(&read1, &read2) {
			break
		}
		b.r1 = append(b.r1, read1)
		b.r2 = append(b.r2, read2)
		if len(b.r1) >= flags.batchSize {
			batchCh <- b
			seq++
			b = batch{seq: seq}
		}
		if n := sc.N(); n%(1<<20) == 0 {
			log.Printf("%s: %dMi read pairs", flags.r1, n>>20)
		}
	}
	if len(b.r1) > 0 {
		batchCh <- b
	}
	log.Printf("read %d pairs from %s, %s", sc.N(), flags.r1, flags.r2)
	once := errors.Once{}
	once.Set(sc.Err())
	once.Set(in1.Close(ctx))
	once.Set(in2.Close(ctx))
	return once.Err()
}

// tagBatch extracts tags from every pair in b. Pairs whose tags cannot be
// extracted are dropped.
func tagBatch(e *tags.Extractor, b batch, stats *tags.Stats) tagged {
	out := tagged{seq: b.seq, reads: make([]fastq.Read, 0, len(b.r1))}
	for i := range b.r1 {
		r1, r2 := &b.r1[i], &b.r2[i]
		p := e.ParseAndTrimQual(r1.Seq, r1.Qual, r1.Name(), r2.Seq, r2.Qual, stats)
		if p.IsEmpty() {
			continue
		}
		id := "@" + p.TaggedName()
		if c := p.Comment(); c != "" {
			id += "\t" + c
		}
		out.reads = append(out.reads, fastq.Read{
			ID:   id,
			Seq:  p.R2Seq,
			Unk:  "+",
			Qual: p.R2Qual,
		})
	}
	return out
}

// fastqOutput writes tagged reads to a FASTQ file. The file is compressed
// with parallel gzip when the path ends in ".gz" and with bzip2 when it ends
// in ".bz2".
type fastqOutput struct {
	out file.File
	zw  io.WriteCloser
	w   *fastq.Writer
}

func createFASTQ(ctx context.Context, path string) (*fastqOutput, error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.E(err, "create", path)
	}
	o := &fastqOutput{out: out}
	var w io.Writer = out.Writer(ctx)
	switch {
	case strings.HasSuffix(path, ".gz"):
		o.zw = pgzip.NewWriter(w)
	case strings.HasSuffix(path, ".bz2"):
		if o.zw, err = bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.DefaultCompression}); err != nil {
			_ = out.Close(ctx)
			return nil, errors.E(err, "bzip2", path)
		}
	}
	if o.zw != nil {
		w = o.zw
	}
	o.w = fastq.NewWriter(w)
	return o, nil
}

func (o *fastqOutput) Close(ctx context.Context) error {
	once := errors.Once{}
	once.Set(o.w.Flush())
	if o.zw != nil {
		once.Set(o.zw.Close())
	}
	once.Set(o.out.Close(ctx))
	return once.Err()
}

// tagReads runs the tag stage: it reads R1/R2 pairs, extracts barcodes and
// UMIs on flags.parallelism workers, and writes the tagged, trimmed R2 reads
// in input order.
func tagReads(ctx context.Context, flags tagFlags, opts tags.Opts) (tags.Stats, error) {
	e, err := tags.NewExtractor(opts)
	if err != nil {
		return tags.Stats{}, err
	}
	if flags.parallelism <= 0 {
		flags.parallelism = 1
	}
	if flags.batchSize <= 0 {
		flags.batchSize = 1024
	}
	out, err := createFASTQ(ctx, flags.output)
	if err != nil {
		return tags.Stats{}, err
	}

	var (
		batchCh  = make(chan batch, flags.parallelism*2)
		resultCh = make(chan tagged, flags.parallelism*2)
		stats    = make([]tags.Stats, flags.parallelism)
		once     errors.Once
		workers  sync.WaitGroup
		writer   sync.WaitGroup
	)
	for i := 0; i < flags.parallelism; i++ {
		workers.Add(1)
		go func(i int) {
			defer workers.Done()
			for b := range batchCh {
				resultCh <- tagBatch(e, b, &stats[i])
			}
		}(i)
	}

	nWritten := 0
	writer.Add(1)
	go func() {
		defer writer.Done()
		pending := map[int]tagged{}
		next := 0
		for res := range resultCh {
			pending[res.seq] = res
			for {
				r, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				next++
				for i := range r.reads {
					if err := out.w.Write(&r.reads[i]); err != nil {
						once.Set(errors.E(err, "write", flags.output))
						break
					}
					nWritten++
				}
			}
		}
	}()

	once.Set(readBatches(ctx, flags, opts.Trim.MaxReads, batchCh))
	close(batchCh)
	workers.Wait()
	close(resultCh)
	writer.Wait()
	once.Set(out.Close(ctx))

	var total tags.Stats
	for _, s := range stats {
		total = total.Merge(s)
	}
	log.Printf("wrote %d tagged reads to %s", nWritten, flags.output)
	return total, once.Err()
}

package fastq

import (
	"bufio"
	"io"
)

// Writer is a buffered FASTQ file writer. Callers must call Flush
// once all reads are written.
type Writer struct {
	w   *bufio.Writer
	err error
}

// NewWriter constructs a new FASTQ writer
// that writes reads to the underlying writer w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 1<<20)}
}

// Write writes the read r in FASTQ format. Unk defaults to "+" when
// empty. An error is returned if the write failed.
func (w *Writer) Write(r *Read) error {
	w.writeln(r.ID)
	w.writeln(r.Seq)
	if r.Unk == "" {
		w.writeln("+")
	} else {
		w.writeln(r.Unk)
	}
	w.writeln(r.Qual)
	return w.err
}

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	if w.err == nil {
		w.err = w.w.Flush()
	}
	return w.err
}

func (w *Writer) writeln(line string) {
	if w.err != nil {
		return
	}
	if _, w.err = w.w.WriteString(line); w.err == nil {
		w.err = w.w.WriteByte('\n')
	}
}

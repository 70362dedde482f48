// Package fasta reads and writes FASTA records.
package fasta

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrFormat = errors.New("fasta: invalid format")

const lineWidth = 60

// Record is one FASTA entry. ID is the first word of the header line.
type Record struct {
	ID     string
	Header string
	Seq    string
}

type Reader struct {
	sc      *bufio.Scanner
	header  string
	pending bool
	line    int
}

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	return &Reader{sc: sc}
}

// Read returns the next record or io.EOF after the last one.
func (r *Reader) Read() (*Record, error) {
	if !r.pending {
		if err := r.nextHeader(); err != nil {
			return nil, err
		}
	}
	rec := &Record{Header: r.header}
	if fields := strings.Fields(r.header); len(fields) > 0 {
		rec.ID = fields[0]
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("%w: empty header at line %d", ErrFormat, r.line)
	}

	var seq bytes.Buffer
	r.pending = false
	for r.sc.Scan() {
		r.line++
		line := bytes.TrimSpace(r.sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			r.header = string(line[1:])
			r.pending = true
			break
		}
		seq.Write(line)
	}
	if err := r.sc.Err(); err != nil {
		return nil, fmt.Errorf("fasta: read: %w", err)
	}
	rec.Seq = seq.String()
	return rec, nil
}

func (r *Reader) nextHeader() error {
	for r.sc.Scan() {
		r.line++
		line := bytes.TrimSpace(r.sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if line[0] != '>' {
			return fmt.Errorf("%w: expected header at line %d", ErrFormat, r.line)
		}
		r.header = string(line[1:])
		return nil
	}
	if err := r.sc.Err(); err != nil {
		return fmt.Errorf("fasta: read: %w", err)
	}
	return io.EOF
}

// ReadAll reads every remaining record.
func (r *Reader) ReadAll() ([]Record, error) {
	var out []Record
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
}

type Writer struct {
	w *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write writes rec with the sequence wrapped at 60 columns.
func (w *Writer) Write(rec Record) error {
	header := rec.Header
	if header == "" {
		header = rec.ID
	}
	if _, err := fmt.Fprintf(w.w, ">%s\n", header); err != nil {
		return err
	}
	for i := 0; i < len(rec.Seq); i += lineWidth {
		end := i + lineWidth
		if end > len(rec.Seq) {
			end = len(rec.Seq)
		}
		if _, err := fmt.Fprintf(w.w, "%s\n", rec.Seq[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) Flush() error {
	return w.w.Flush()
}

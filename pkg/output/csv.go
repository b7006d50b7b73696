package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dnsguard/dnsguard/pkg/pipeline"
)

// reportHeader is the fixed report contract with downstream consumers:
// one row per query with the symbolic verdict marker and the confidence
// in [0,100] at two decimals.
var reportHeader = []string{"qname", "verdict", "confidence"}

// CSVWriter writes the canonical prediction report.
type CSVWriter struct {
	file       *os.File
	writer     *csv.Writer
	count      int
	flushEvery int
}

// NewCSVWriter creates a CSV report writer to the named file. Use "-" for
// stdout. The header row is written immediately.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	var file *os.File
	var err error

	if filename == "-" || filename == "" {
		file = os.Stdout
	} else {
		file, err = os.Create(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file: %w", err)
		}
	}

	w := &CSVWriter{
		file:       file,
		writer:     csv.NewWriter(file),
		flushEvery: 100,
	}
	if err := w.writer.Write(reportHeader); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to write report header: %w", err)
	}
	return w, nil
}

// NewCSVWriterFromWriter creates a CSV report writer over an existing
// io.Writer and writes the header row.
func NewCSVWriterFromWriter(out io.Writer) (*CSVWriter, error) {
	w := &CSVWriter{writer: csv.NewWriter(out), flushEvery: 100}
	if err := w.writer.Write(reportHeader); err != nil {
		return nil, fmt.Errorf("failed to write report header: %w", err)
	}
	return w, nil
}

// Write appends one report row.
func (w *CSVWriter) Write(row *pipeline.Row) error {
	rec := []string{
		row.QName,
		row.Verdict.Label.Marker(),
		strconv.FormatFloat(row.Verdict.Confidence, 'f', 2, 64),
	}
	if err := w.writer.Write(rec); err != nil {
		return err
	}

	w.count++
	if w.count%w.flushEvery == 0 {
		w.writer.Flush()
		return w.writer.Error()
	}
	return nil
}

// Flush forces buffered rows out.
func (w *CSVWriter) Flush() error {
	w.writer.Flush()
	return w.writer.Error()
}

// Close flushes and closes the report. Stdout is left open.
func (w *CSVWriter) Close() error {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return err
	}
	if w.file != nil && w.file != os.Stdout {
		return w.file.Close()
	}
	return nil
}

// Count returns the number of rows written, excluding the header.
func (w *CSVWriter) Count() int {
	return w.count
}

// Package output writes labeled pipeline rows in the formats shared with
// downstream storage and alerting: CSV (the canonical report), JSONL for
// streaming, and Parquet for analytics.
package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dnsguard/dnsguard/pkg/pipeline"
)

// JSONLWriter writes one JSON object per row - ideal for piping to jq and
// for processing large result sets incrementally.
type JSONLWriter struct {
	file   *os.File
	writer *bufio.Writer
	count  int
}

// NewJSONLWriter creates a JSONL writer to the named file. Use "-" for
// stdout.
func NewJSONLWriter(filename string) (*JSONLWriter, error) {
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

	return &JSONLWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
	}, nil
}

// NewJSONLWriterFromWriter creates a JSONL writer over an existing
// io.Writer. Useful for tests and custom destinations.
func NewJSONLWriterFromWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{writer: bufio.NewWriterSize(w, 64*1024)}
}

// Write appends one row as a JSON line.
func (w *JSONLWriter) Write(row *pipeline.Row) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}

	if _, err := w.writer.Write(data); err != nil {
		return err
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return err
	}

	w.count++

	// Flush every 100 rows for responsive output
	if w.count%100 == 0 {
		return w.writer.Flush()
	}
	return nil
}

// Flush forces buffered data out.
func (w *JSONLWriter) Flush() error {
	return w.writer.Flush()
}

// Close flushes and closes the writer. Stdout is left open.
func (w *JSONLWriter) Close() error {
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if w.file != nil && w.file != os.Stdout {
		return w.file.Close()
	}
	return nil
}

// Count returns the number of rows written.
func (w *JSONLWriter) Count() int {
	return w.count
}

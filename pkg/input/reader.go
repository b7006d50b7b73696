// Package input reads captured DNS query logs into batch records. The log
// is a headered CSV produced by the capture collaborator; only the qname
// column is consumed by the detection core, everything else is carried
// through untouched to the output report.
package input

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// QNameColumn is the required domain-name column in batch sources.
const QNameColumn = "qname"

// ErrMissingQNameColumn reports a batch source without a qname column.
// The pipeline cannot proceed without domain names, so this is fatal for
// the batch rather than silently worked around.
var ErrMissingQNameColumn = errors.New("input has no qname column")

// Record is one observed query. QName is the only field the core consumes;
// Fields preserves every source column for passthrough.
type Record struct {
	QName  string            `json:"qname"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Batch is the result of reading one input source.
type Batch struct {
	Records []Record

	// Skipped counts rows that could not be parsed into a record
	// (malformed CSV lines, short rows). Reported, never silent.
	Skipped int

	// Dropped counts structurally valid rows with an empty qname.
	Dropped int
}

// ReadFile reads a CSV query log from disk.
func ReadFile(path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses a headered CSV query log. The header must name a qname
// column. Individually malformed rows are skipped and counted; the batch
// as a whole still completes.
func Read(r io.Reader) (*Batch, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // capture logs occasionally carry ragged rows
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrMissingQNameColumn
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	qnameIdx := -1
	for i, col := range header {
		header[i] = strings.TrimSpace(col)
		if strings.EqualFold(header[i], QNameColumn) {
			qnameIdx = i
		}
	}
	if qnameIdx < 0 {
		return nil, fmt.Errorf("columns %v: %w", header, ErrMissingQNameColumn)
	}

	batch := &Batch{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// One bad row does not fail the batch.
			batch.Skipped++
			continue
		}
		if len(row) <= qnameIdx {
			batch.Skipped++
			continue
		}

		qname := strings.TrimSpace(row[qnameIdx])
		if qname == "" {
			batch.Dropped++
			continue
		}

		fields := make(map[string]string, len(header))
		for i, col := range header {
			if col == "" || i >= len(row) {
				continue
			}
			fields[col] = row[i]
		}

		batch.Records = append(batch.Records, Record{QName: qname, Fields: fields})
	}

	return batch, nil
}

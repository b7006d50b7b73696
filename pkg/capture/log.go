// Package capture runs a recording DNS proxy on the live path. Queries
// are answered by forwarding to an upstream resolver and every exchange
// is appended to the query log that the tailer follows.
package capture

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// logHeader is the column layout of the query log. The tailer and batch
// reader both expect qname in the fifth column.
var logHeader = []string{"timestamp", "is_response", "src_ip", "dst_ip", "qname", "qtype", "ans_count", "response_ips"}

// timestampLayout matches the log's wall-clock column.
const timestampLayout = "2006-01-02 15:04:05"

// Entry is one observed DNS exchange.
type Entry struct {
	Timestamp   time.Time
	IsResponse  bool
	SrcIP       string
	DstIP       string
	QName       string
	QType       uint16
	AnswerCount int
	ResponseIPs []string
}

// Log appends entries to a CSV query log. Safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	path    string
	f       *os.File
	w       *csv.Writer
	written int
}

// OpenLog opens (or creates) the query log at path in append mode and
// writes the header when the file is new or empty.
func OpenLog(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening query log: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	l := &Log{path: path, f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := l.w.Write(logHeader); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("writing query log header: %w", err)
		}
		l.w.Flush()
		if err := l.w.Error(); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return l, nil
}

// Append writes one entry and flushes. The tailer only consumes complete
// lines, so every appended row must hit the file promptly.
func (l *Log) Append(e Entry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	isResponse := "0"
	if e.IsResponse {
		isResponse = "1"
	}

	row := []string{
		ts.Format(timestampLayout),
		isResponse,
		e.SrcIP,
		e.DstIP,
		e.QName,
		strconv.Itoa(int(e.QType)),
		strconv.Itoa(e.AnswerCount),
		strings.Join(e.ResponseIPs, ";"),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.w.Write(row); err != nil {
		return fmt.Errorf("appending query log row: %w", err)
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return err
	}
	l.written++
	return nil
}

// Written returns the number of entries appended by this handle.
func (l *Log) Written() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

// Close flushes and closes the log file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		_ = l.f.Close()
		return err
	}
	return l.f.Close()
}

// Package tail follows the append-only query log on the live path and
// gates new names through the fast pre-filter. The tailer is an explicit
// stateful handle owned by the caller: it tracks a monotonically
// increasing read offset, processes only newly appended content per poll,
// and offers at-least-once semantics across restarts (an unconsumed tail
// is simply re-read). The reader never blocks the log writer.
package tail

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dnsguard/dnsguard/pkg/prefilter"
)

// qnameField is the position of the query name in a capture log line.
const qnameField = 4

// minFields is the minimum column count for a usable log line.
const minFields = 5

// Candidate is a query name that passed the pre-filter gate.
type Candidate struct {
	QName      string    `json:"qname"`
	Raw        string    `json:"raw"`
	Offset     int64     `json:"offset"`
	ObservedAt time.Time `json:"observed_at"`
}

// Options tunes the tailer loop.
type Options struct {
	// PollInterval is the wait between polls when no filesystem events
	// arrive. Defaults to 2s.
	PollInterval time.Duration

	// MaxBackoff caps the retry delay after transient errors.
	// Defaults to 30s.
	MaxBackoff time.Duration

	// Watch enables fsnotify wake-ups on log appends. The tailer still
	// polls on PollInterval as a fallback; a failed watcher downgrades
	// to polling with a logged warning.
	Watch bool
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	return o
}

// Tailer follows one query log from a tracked offset. Not safe for
// concurrent use; the owning goroutine drives Poll or Run.
type Tailer struct {
	path   string
	pre    prefilter.Prefilter
	opts   Options
	offset int64
}

// New creates a tailer starting at initialOffset. Offset 0 reads the log
// from the beginning; a checkpointed offset resumes where a previous run
// stopped.
func New(path string, initialOffset int64, pre prefilter.Prefilter, opts Options) *Tailer {
	return &Tailer{
		path:   path,
		pre:    pre,
		opts:   opts.withDefaults(),
		offset: initialOffset,
	}
}

// Offset returns the current read offset for checkpointing.
func (t *Tailer) Offset() int64 { return t.offset }

// Poll reads newly appended complete lines and returns the candidates
// that passed the pre-filter. A missing log file is not an error: the
// writer may simply not have started yet. A shrunken file is treated as
// rotation and reading restarts from the top.
func (t *Tailer) Poll(ctx context.Context) ([]Candidate, error) {
	f, err := os.Open(t.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < t.offset {
		slog.Warn("query log shrank, assuming rotation", "path", t.path, "offset", t.offset, "size", info.Size())
		t.offset = 0
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, err
	}

	var candidates []Candidate
	reader := bufio.NewReader(f)
	for {
		if err := ctx.Err(); err != nil {
			return candidates, err
		}

		line, err := reader.ReadString('\n')
		if err == io.EOF {
			// A partial final line stays unconsumed until the writer
			// finishes it; re-reading it next poll is the at-least-once
			// guarantee.
			break
		}
		if err != nil {
			return candidates, err
		}

		t.offset += int64(len(line))
		if c, ok := t.parse(line); ok {
			candidates = append(candidates, c)
		}
	}

	pollsTotal.Inc()
	return candidates, nil
}

// parse extracts the qname from one complete log line and applies the
// pre-filter. Short lines and the CSV header are not candidates.
func (t *Tailer) parse(line string) (Candidate, bool) {
	trimmed := strings.TrimRight(line, "\r\n")
	parts := strings.Split(trimmed, ",")
	if len(parts) < minFields {
		return Candidate{}, false
	}
	if parts[0] == "timestamp" {
		return Candidate{}, false
	}
	linesTotal.Inc()

	qname := strings.TrimSpace(parts[qnameField])
	if !t.pre.WorthScoring(qname) {
		return Candidate{}, false
	}

	candidatesTotal.Inc()
	return Candidate{
		QName:      qname,
		Raw:        trimmed,
		Offset:     t.offset,
		ObservedAt: time.Now(),
	}, true
}

// Run polls until the context is cancelled, invoking handler for every
// candidate. Transient I/O errors are logged, counted and retried with
// exponential backoff; a handler error is surfaced immediately so the
// caller decides, nothing is swallowed.
func (t *Tailer) Run(ctx context.Context, handler func(Candidate) error) error {
	var wake <-chan fsnotify.Event
	if t.opts.Watch {
		watcher, err := fsnotify.NewWatcher()
		if err == nil {
			// Watch the directory: the log file itself may not exist yet.
			if werr := watcher.Add(filepath.Dir(t.path)); werr != nil {
				slog.Warn("log watch unavailable, polling only", "error", werr)
				watcher.Close()
			} else {
				defer watcher.Close()
				wake = watcher.Events
			}
		} else {
			slog.Warn("fsnotify unavailable, polling only", "error", err)
		}
	}

	backoff := t.opts.PollInterval
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-wake:
			if ev.Name != t.path || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
		case <-timer.C:
		}

		candidates, err := t.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errorsTotal.WithLabelValues("poll").Inc()
			slog.Warn("tail poll failed, retrying", "path", t.path, "backoff", backoff, "error", err)
			timer.Reset(backoff)
			backoff = min(backoff*2, t.opts.MaxBackoff)
			continue
		}
		backoff = t.opts.PollInterval

		for _, c := range candidates {
			if err := handler(c); err != nil {
				errorsTotal.WithLabelValues("handler").Inc()
				return err
			}
		}

		timer.Reset(t.opts.PollInterval)
	}
}

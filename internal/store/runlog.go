package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RunLog is an append-only JSONL file with a line cap. Appends take the lock;
// trimming rewrites the file keeping the newest lines and is scheduled off
// the tick path.
type RunLog struct {
	path     string
	maxLines int
	mu       sync.Mutex
}

// Line caps for the three data logs: crawl summaries, review candidates,
// push buffer.
const (
	CrawlLogMaxLines  = 1000
	ReviewLogMaxLines = 15000
	PushLogMaxLines   = 500
)

func NewRunLog(path string, maxLines int) *RunLog {
	return &RunLog{path: path, maxLines: maxLines}
}

// RunLogs groups the three rotating data logs under one directory.
type RunLogs struct {
	Crawl  *RunLog
	Review *RunLog
	Push   *RunLog
}

// OpenRunLogs creates the logs directory and the three standard logs.
func OpenRunLogs(dir string) (*RunLogs, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	return &RunLogs{
		Crawl:  NewRunLog(filepath.Join(dir, "crawl_log.jsonl"), CrawlLogMaxLines),
		Review: NewRunLog(filepath.Join(dir, "review_potential_disasters.jsonl"), ReviewLogMaxLines),
		Push:   NewRunLog(filepath.Join(dir, "sse_buffer.jsonl"), PushLogMaxLines),
	}, nil
}

// TrimAll drops stale lines from every log.
func (l *RunLogs) TrimAll() error {
	for _, log := range []*RunLog{l.Crawl, l.Review, l.Push} {
		if err := log.Trim(); err != nil {
			return err
		}
	}
	return nil
}

// Append marshals v and appends it as one line.
func (l *RunLog) Append(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal log line: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", l.path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append %s: %w", l.path, err)
	}
	return nil
}

// Trim rewrites the file keeping only the newest maxLines lines.
func (l *RunLog) Trim() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", l.path, err)
	}

	lines := bytes.Split(bytes.TrimSuffix(data, []byte("\n")), []byte("\n"))
	if len(lines) <= l.maxLines {
		return nil
	}
	keep := lines[len(lines)-l.maxLines:]

	tmp := l.path + ".tmp"
	out := append(bytes.Join(keep, []byte("\n")), '\n')
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, l.path)
}

// Len reports the current number of lines (diagnostics and tests).
func (l *RunLog) Len() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	return bytes.Count(bytes.TrimSuffix(data, []byte("\n")), []byte("\n")) + 1, nil
}

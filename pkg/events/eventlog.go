package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/apisguard/edge/internal/log"
)

// EventLog appends DetectionEvents to a JSONL file. It is the only
// durable record besides the clips themselves; counters like
// detections_today are recomputed from it on boot instead of being
// persisted separately.
type EventLog struct {
	mu   sync.Mutex
	path string
}

// NewEventLog opens (or creates) the log at dir/detections.jsonl.
func NewEventLog(dir string) (*EventLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create event log dir: %w", err)
	}
	return &EventLog{path: filepath.Join(dir, "detections.jsonl")}, nil
}

// Append writes one event. Failures are logged and swallowed: losing a
// log line must never stall the pipeline.
func (l *EventLog) Append(ev DetectionEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Error("event log open failed", "err", err)
		return
	}
	defer f.Close()

	line, err := json.Marshal(ev)
	if err != nil {
		log.Error("event log marshal failed", "err", err)
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		log.Error("event log write failed", "err", err)
	}
}

// CountSince returns how many logged events have a timestamp at or
// after the cutoff. Malformed lines (e.g. from a power cut mid-write)
// are skipped.
func (l *EventLog) CountSince(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return 0
	}
	defer f.Close()

	count := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev DetectionEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			continue
		}
		if !ev.Timestamp.Before(cutoff) {
			count++
		}
	}
	return count
}

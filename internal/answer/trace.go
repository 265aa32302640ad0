package answer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TraceLogger appends JSON lines to a trace file. Each entry gets a
// UTC timestamp under "ts". Writes are serialized; failures surface to
// the caller so the composer can warn without dropping the answer.
type TraceLogger struct {
	path string
	mu   sync.Mutex
}

// NewTraceLogger creates a logger writing to path. Parent directories
// are created on first write.
func NewTraceLogger(path string) *TraceLogger {
	return &TraceLogger{path: path}
}

// Log appends one entry.
func (t *TraceLogger) Log(payload map[string]any) error {
	entry := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		entry[k] = v
	}
	if _, ok := entry["ts"]; !ok {
		entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return nil
}

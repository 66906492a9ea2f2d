// Package audit implements the append-only HMAC-signed event trail. Entries
// are newline-delimited JSON objects; once a line is written nothing in the
// system rewrites it. Verification is a separate read-only pass.
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/quant-replay/internal/metrics"
)

var (
	fallbackKeyMu sync.RWMutex
	fallbackKey   string
)

// SetFallbackKey installs the process-wide signing key used when a writer was
// constructed without an explicit key. The bootstrap layer resolves this from
// its environment; the core never reads environment variables itself.
func SetFallbackKey(key string) {
	fallbackKeyMu.Lock()
	fallbackKey = key
	fallbackKeyMu.Unlock()
}

func resolveKey(explicit string) string {
	if explicit != "" {
		return explicit
	}
	fallbackKeyMu.RLock()
	defer fallbackKeyMu.RUnlock()
	return fallbackKey
}

// Writer appends signed entries to one audit log file. Appends are serialized
// by a process-local mutex around the whole open-write-close sequence so
// concurrently completing workers never interleave partial lines.
type Writer struct {
	path      string
	key       string
	sessionID string
	logger    *logrus.Logger
	mu        sync.Mutex
}

// Option configures a Writer.
type Option func(*Writer)

// WithKey sets the explicit signing key. It takes precedence over the
// process-wide fallback.
func WithKey(key string) Option {
	return func(w *Writer) { w.key = key }
}

// WithSessionID stamps every entry with a session identifier.
func WithSessionID(sessionID string) Option {
	return func(w *Writer) { w.sessionID = sessionID }
}

// WithLogger sets the operational logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(w *Writer) { w.logger = logger }
}

// NewWriter creates a Writer appending to path.
func NewWriter(path string, opts ...Option) (*Writer, error) {
	if path == "" {
		return nil, fmt.Errorf("audit log path is required")
	}
	w := &Writer{path: path, logger: logrus.New()}
	for _, opt := range opts {
		opt(w)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	return w, nil
}

// Path returns the audit log file path.
func (w *Writer) Path() string {
	return w.path
}

// Append enriches, signs and appends one entry. The payload map is not
// mutated. Enrichment inserts session_id (when configured), an ISO-8601 UTC
// timestamp when absent, and session process metadata — pre-seeded fields are
// never overwritten. With no resolvable key the entry is still appended with
// an explicit null hmac: logging is never blocked by key configuration.
func (w *Writer) Append(module, event string, payload map[string]interface{}) error {
	entry := make(map[string]interface{}, len(payload)+5)
	for k, v := range payload {
		entry[k] = v
	}
	entry["module"] = module
	entry["event"] = event
	if w.sessionID != "" {
		entry["session_id"] = w.sessionID
	}
	if _, ok := entry["ts"]; !ok {
		entry["ts"] = time.Now().UTC().Format("2006-01-02T15:04:05.999999Z07:00")
	}

	session, ok := entry["session"].(map[string]interface{})
	if !ok {
		session = map[string]interface{}{}
	} else {
		copied := make(map[string]interface{}, len(session))
		for k, v := range session {
			copied[k] = v
		}
		session = copied
	}
	for k, v := range sessionInfo() {
		if _, exists := session[k]; !exists {
			session[k] = v
		}
	}
	entry["session"] = session

	key := resolveKey(w.key)
	if key == "" {
		// Documented weak point: entries without a key are unsigned.
		entry["hmac"] = nil
		w.logger.WithFields(logrus.Fields{"module": module, "event": event}).
			Warn("Appending unsigned audit entry: no signing key configured")
	} else {
		signature, err := Sign(entry, key)
		if err != nil {
			return err
		}
		entry["hmac"] = signature
	}

	line, err := CanonicalJSON(entry)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		file.Close()
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close audit log: %w", err)
	}
	metrics.AuditEntriesWrittenTotal.Inc()
	return nil
}

// Sign computes the hex HMAC-SHA256 signature of entry with the hmac field
// excluded from the signed bytes.
func Sign(entry map[string]interface{}, key string) (string, error) {
	unsigned := make(map[string]interface{}, len(entry))
	for k, v := range entry {
		if k == "hmac" {
			continue
		}
		unsigned[k] = v
	}
	msg, err := CanonicalJSON(unsigned)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

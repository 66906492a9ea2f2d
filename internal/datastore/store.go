// Package datastore persists backtest run artifacts keyed by session id.
// The default store writes one JSON document per session; a Postgres-backed
// implementation of the same interface is available for shared storage.
package datastore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/yourusername/quant-replay/internal/models"
)

// StoredRun is one persisted run artifact.
type StoredRun struct {
	SessionID string                 `json:"session_id"`
	Prices    []models.Bar           `json:"prices"`
	Result    json.RawMessage        `json:"result"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// RunStore is the persistence sink consumed by the backtest engine.
type RunStore interface {
	// SaveRun persists prices, result and metadata under sessionID and
	// returns the artifact location.
	SaveRun(ctx context.Context, sessionID string, prices []models.Bar, result interface{}, metadata map[string]interface{}) (string, error)
	// LoadRun retrieves a previously stored run.
	LoadRun(ctx context.Context, sessionID string) (*StoredRun, error)
}

// Store is the JSON file implementation of RunStore. Reads go through a TTL
// cache since replay artifacts are immutable once written.
type Store struct {
	baseDir string
	cache   *cache.Cache
}

// NewStore creates a file store rooted at baseDir.
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		baseDir = filepath.Join("var", "backtests")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create datastore directory: %w", err)
	}
	return &Store{
		baseDir: baseDir,
		cache:   cache.New(10*time.Minute, 20*time.Minute),
	}, nil
}

// SaveRun writes the run document and returns the file path.
func (s *Store) SaveRun(ctx context.Context, sessionID string, prices []models.Bar, result interface{}, metadata map[string]interface{}) (string, error) {
	_ = ctx
	path, err := s.sessionPath(sessionID)
	if err != nil {
		return "", err
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to serialize run result: %w", err)
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	doc := StoredRun{
		SessionID: sessionID,
		Prices:    prices,
		Result:    resultJSON,
		Metadata:  metadata,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize run artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write run artifact: %w", err)
	}
	s.cache.Delete(sessionID)
	return path, nil
}

// LoadRun reads a stored run, serving repeated loads from cache.
func (s *Store) LoadRun(ctx context.Context, sessionID string) (*StoredRun, error) {
	_ = ctx
	if cached, found := s.cache.Get(sessionID); found {
		if run, ok := cached.(*StoredRun); ok {
			return run, nil
		}
	}
	path, err := s.sessionPath(sessionID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read run artifact: %w", err)
	}
	var run StoredRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to parse run artifact: %w", err)
	}
	s.cache.Set(sessionID, &run, cache.DefaultExpiration)
	return &run, nil
}

// SaveSummary persists an aggregate summary payload next to the runs.
func (s *Store) SaveSummary(name string, summary map[string]interface{}) (string, error) {
	if name == "" {
		return "", models.ErrSessionIDRequired
	}
	path := filepath.Join(s.baseDir, sanitize(name)+"_summary.json")
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write summary: %w", err)
	}
	return path, nil
}

// ListRuns returns the stored session identifiers in sorted order.
func (s *Store) ListRuns() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list datastore: %w", err)
	}
	sessions := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, "_summary.json") {
			continue
		}
		sessions = append(sessions, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(sessions)
	return sessions, nil
}

func (s *Store) sessionPath(sessionID string) (string, error) {
	if sessionID == "" {
		return "", models.ErrSessionIDRequired
	}
	return filepath.Join(s.baseDir, sanitize(sessionID)+".json"), nil
}

// sanitize keeps session-derived filenames to a safe character set.
func sanitize(name string) string {
	var b strings.Builder
	for _, ch := range name {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '-', ch == '_':
			b.WriteRune(ch)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

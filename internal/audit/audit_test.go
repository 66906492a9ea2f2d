package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "test-signing-key"

func newTestWriter(t *testing.T, opts ...Option) (*Writer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit_log.jsonl")
	writer, err := NewWriter(path, opts...)
	require.NoError(t, err)
	return writer, path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestCanonicalJSONDeterministic(t *testing.T) {
	a := map[string]interface{}{"b": 2, "a": 1, "nested": map[string]interface{}{"y": "2", "x": "1"}}
	b := map[string]interface{}{"nested": map[string]interface{}{"x": "1", "y": "2"}, "a": 1, "b": 2}

	first, err := CanonicalJSON(a)
	require.NoError(t, err)
	second, err := CanonicalJSON(b)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestCanonicalJSONPreservesNonASCII(t *testing.T) {
	out, err := CanonicalJSON(map[string]interface{}{"msg": "ünïcode ✓"})
	require.NoError(t, err)
	assert.Contains(t, string(out), "ünïcode ✓")
}

func TestAppendAndVerifyRoundTrip(t *testing.T) {
	writer, path := newTestWriter(t, WithKey(testKey), WithSessionID("sess-1"))

	require.NoError(t, writer.Append("quantreplay.backtester", "run_complete", map[string]interface{}{
		"net_return": 0.05,
	}))
	require.NoError(t, writer.Append("quantreplay.strategy", "adaptive_init", nil))

	report, err := VerifyFile(path, testKey)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Verified)
	assert.True(t, report.Clean())
}

func TestAppendEnrichment(t *testing.T) {
	writer, path := newTestWriter(t, WithKey(testKey), WithSessionID("sess-2"))
	require.NoError(t, writer.Append("quantreplay.metrics", "adaptive_update", map[string]interface{}{
		"ts": "2026-01-01T00:00:00Z",
	}))

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))

	assert.Equal(t, "quantreplay.metrics", entry["module"])
	assert.Equal(t, "adaptive_update", entry["event"])
	assert.Equal(t, "sess-2", entry["session_id"])
	// pre-seeded timestamp survives enrichment
	assert.Equal(t, "2026-01-01T00:00:00Z", entry["ts"])

	session, ok := entry["session"].(map[string]interface{})
	require.True(t, ok)
	for _, field := range []string{"user", "hostname", "platform", "pid"} {
		assert.Contains(t, session, field)
	}
}

func TestAppendDoesNotMutatePayload(t *testing.T) {
	writer, _ := newTestWriter(t, WithKey(testKey))
	payload := map[string]interface{}{"value": 1.0}
	require.NoError(t, writer.Append("m", "e", payload))
	assert.Equal(t, map[string]interface{}{"value": 1.0}, payload)
}

func TestVerifyDetectsTampering(t *testing.T) {
	writer, path := newTestWriter(t, WithKey(testKey))
	require.NoError(t, writer.Append("m", "e", map[string]interface{}{"amount": 10.0}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), `"amount":10`, `"amount":99`, 1)
	require.NotEqual(t, string(data), tampered)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0o644))

	report, err := VerifyFile(path, testKey)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Verified)
	require.Equal(t, 1, report.Failed())
	assert.Equal(t, ReasonHMACMismatch, report.Failures[0].Reason)
}

func TestVerifyWrongKey(t *testing.T) {
	writer, path := newTestWriter(t, WithKey(testKey))
	require.NoError(t, writer.Append("m", "e", nil))

	report, err := VerifyFile(path, "other-key")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Verified)
	require.Equal(t, 1, report.Failed())
	assert.Equal(t, ReasonHMACMismatch, report.Failures[0].Reason)
}

func TestAppendWithoutKeyWritesNullHMAC(t *testing.T) {
	SetFallbackKey("")
	writer, path := newTestWriter(t)
	require.NoError(t, writer.Append("m", "e", nil))

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	value, present := entry["hmac"]
	assert.True(t, present)
	assert.Nil(t, value)

	report, err := VerifyFile(path, testKey)
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed())
	assert.Equal(t, ReasonMissingHMAC, report.Failures[0].Reason)
}

func TestFallbackKeySignsWhenNoExplicitKey(t *testing.T) {
	SetFallbackKey(testKey)
	defer SetFallbackKey("")

	writer, path := newTestWriter(t)
	require.NoError(t, writer.Append("m", "e", nil))

	report, err := VerifyFile(path, testKey)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Verified)
	assert.True(t, report.Clean())
}

func TestExplicitKeyBeatsFallback(t *testing.T) {
	SetFallbackKey("fallback-key")
	defer SetFallbackKey("")

	writer, path := newTestWriter(t, WithKey(testKey))
	require.NoError(t, writer.Append("m", "e", nil))

	report, err := VerifyFile(path, testKey)
	require.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestVerifyMissingFile(t *testing.T) {
	report, err := VerifyFile(filepath.Join(t.TempDir(), "nope.jsonl"), testKey)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)
	assert.True(t, report.Clean())
}

func TestVerifyInvalidJSONLine(t *testing.T) {
	writer, path := newTestWriter(t, WithKey(testKey))
	require.NoError(t, writer.Append("m", "e", nil))

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = file.WriteString("not-json\n")
	require.NoError(t, err)
	require.NoError(t, file.Close())

	report, err := VerifyFile(path, testKey)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Verified)
	require.Equal(t, 1, report.Failed())
	assert.Equal(t, ReasonInvalidJSON, report.Failures[0].Reason)
	assert.Equal(t, 2, report.Failures[0].Line)
}

func TestConcurrentAppends(t *testing.T) {
	writer, path := newTestWriter(t, WithKey(testKey))

	const writers = 8
	const perWriter = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				assert.NoError(t, writer.Append("m", "e", map[string]interface{}{
					"writer": id, "seq": j,
				}))
			}
		}(i)
	}
	wg.Wait()

	report, err := VerifyFile(path, testKey)
	require.NoError(t, err)
	assert.Equal(t, writers*perWriter, report.Total)
	assert.Equal(t, writers*perWriter, report.Verified)
}

func TestVerifyEntry(t *testing.T) {
	entry := map[string]interface{}{"module": "m", "event": "e", "value": 1.5}
	signature, err := Sign(entry, testKey)
	require.NoError(t, err)
	entry["hmac"] = signature

	assert.True(t, VerifyEntry(entry, testKey))
	entry["value"] = 2.5
	assert.False(t, VerifyEntry(entry, testKey))
}

package validator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/quant-replay/internal/audit"
)

func strPtr(s string) *string { return &s }

func TestHashPayloadStableAcrossKeyOrder(t *testing.T) {
	first, err := HashPayload(map[string]interface{}{"a": 1, "b": 2})
	require.NoError(t, err)
	second, err := HashPayload(map[string]interface{}{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	third, err := HashPayload(map[string]interface{}{"a": 1, "b": 3})
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestEvaluateConsistent(t *testing.T) {
	checker := NewRedundancyChecker()
	summary := checker.Evaluate([]NodeResult{
		{NodeID: "a", Status: StatusSuccess, Hash: strPtr("h1")},
		{NodeID: "b", Status: StatusSuccess, Hash: strPtr("h1")},
		{NodeID: "c", Status: StatusSuccess, Hash: strPtr("h1")},
	})

	assert.True(t, summary.Consistent)
	assert.Equal(t, []string{"h1"}, summary.UniqueHashes)
	assert.Empty(t, summary.FailedNodes)
	assert.Empty(t, summary.MismatchedNodes)
}

func TestEvaluateMismatchListsAllHashBearingNodes(t *testing.T) {
	checker := NewRedundancyChecker()
	summary := checker.Evaluate([]NodeResult{
		{NodeID: "a", Status: StatusSuccess, Hash: strPtr("h1")},
		{NodeID: "b", Status: StatusSuccess, Hash: strPtr("h2")},
		{NodeID: "c", Status: StatusSuccess, Hash: strPtr("h1")},
	})

	assert.False(t, summary.Consistent)
	assert.Len(t, summary.UniqueHashes, 2)
	// the outlier cannot be singled out, every hash-bearing node is listed
	assert.Equal(t, []string{"a", "b", "c"}, summary.MismatchedNodes)
}

func TestEvaluateFailedNodeBreaksConsistency(t *testing.T) {
	checker := NewRedundancyChecker()
	summary := checker.Evaluate([]NodeResult{
		{NodeID: "a", Status: StatusSuccess, Hash: strPtr("h1")},
		{NodeID: "b", Status: StatusError},
	})

	assert.False(t, summary.Consistent)
	assert.Equal(t, []string{"b"}, summary.FailedNodes)
	// agreement among the surviving hashes, so nothing is mismatched
	assert.Empty(t, summary.MismatchedNodes)
}

func TestEvaluateEmpty(t *testing.T) {
	summary := NewRedundancyChecker().Evaluate(nil)
	assert.True(t, summary.Consistent)
	assert.Empty(t, summary.Hashes)
}

func TestRunValidationBatchAgreement(t *testing.T) {
	v := New()
	tasks := make([]Task, 3)
	for i := range tasks {
		tasks[i] = Task{Run: func(ctx context.Context) (interface{}, error) {
			return map[string]interface{}{"value": 42}, nil
		}}
	}

	results := v.RunValidationBatch(context.Background(), tasks)
	require.Len(t, results, 3)

	ids := make(map[string]bool)
	for _, result := range results {
		assert.Equal(t, StatusSuccess, result.Status)
		require.NotNil(t, result.Hash)
		ids[result.NodeID] = true
	}
	// default positional node ids, order of arrival unspecified
	assert.Equal(t, map[string]bool{"node-0": true, "node-1": true, "node-2": true}, ids)

	summary := v.ConsolidateResults()
	assert.True(t, summary.Consistent)
}

func TestRunValidationBatchErrorIsolation(t *testing.T) {
	v := New()
	tasks := []Task{
		{NodeID: "ok", Run: func(ctx context.Context) (interface{}, error) {
			return "payload", nil
		}},
		{NodeID: "fails", Run: func(ctx context.Context) (interface{}, error) {
			return nil, errors.New("node unreachable")
		}},
		{NodeID: "panics", Run: func(ctx context.Context) (interface{}, error) {
			panic("node exploded")
		}},
	}

	results := v.RunValidationBatch(context.Background(), tasks)
	require.Len(t, results, 3)

	byID := make(map[string]NodeResult)
	for _, result := range results {
		byID[result.NodeID] = result
	}
	assert.Equal(t, StatusSuccess, byID["ok"].Status)
	assert.Equal(t, StatusError, byID["fails"].Status)
	assert.Nil(t, byID["fails"].Hash)
	assert.Equal(t, StatusError, byID["panics"].Status)
	payload, ok := byID["panics"].Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, payload["error"], "panic")

	summary := v.ConsolidateResults()
	assert.False(t, summary.Consistent)
	assert.ElementsMatch(t, []string{"fails", "panics"}, summary.FailedNodes)
}

func TestRunValidationBatchEmpty(t *testing.T) {
	v := New()
	assert.Nil(t, v.RunValidationBatch(context.Background(), nil))
}

func TestMaxWorkersBoundsConcurrency(t *testing.T) {
	var current, peak int32
	v := New(WithMaxWorkers(2))

	tasks := make([]Task, 8)
	for i := range tasks {
		tasks[i] = Task{Run: func(ctx context.Context) (interface{}, error) {
			n := atomic.AddInt32(&current, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			defer atomic.AddInt32(&current, -1)
			return "ok", nil
		}}
	}

	results := v.RunValidationBatch(context.Background(), tasks)
	assert.Len(t, results, 8)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestBatchWritesSignedAuditTrail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	writer, err := audit.NewWriter(path, audit.WithKey("vkey"), audit.WithSessionID("vsess"))
	require.NoError(t, err)

	v := New(WithAuditWriter(writer))
	tasks := make([]Task, 2)
	for i := range tasks {
		idx := i
		tasks[i] = Task{Run: func(ctx context.Context) (interface{}, error) {
			return fmt.Sprintf("result-%d", idx), nil
		}}
	}
	v.RunValidationBatch(context.Background(), tasks)
	v.ConsolidateResults()

	report, err := audit.VerifyFile(path, "vkey")
	require.NoError(t, err)
	// init, one entry per node, one consolidated summary
	assert.Equal(t, 4, report.Total)
	assert.True(t, report.Clean())
}

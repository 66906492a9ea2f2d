package validator

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/quant-replay/internal/audit"
	"github.com/yourusername/quant-replay/internal/metrics"
)

// Task is one validation unit of work. Run executes on its own goroutine;
// NodeID defaults to a positional name when empty.
type Task struct {
	NodeID string
	Run    func(ctx context.Context) (interface{}, error)
}

// DistributedValidator coordinates concurrent validation tasks across
// multiple nodes and records each outcome to the signed audit trail.
type DistributedValidator struct {
	writer     *audit.Writer
	checker    *RedundancyChecker
	maxWorkers int
	logger     *logrus.Logger

	mu      sync.Mutex
	results []NodeResult
}

// Option configures a DistributedValidator.
type Option func(*DistributedValidator)

// WithAuditWriter attaches the signed audit trail.
func WithAuditWriter(writer *audit.Writer) Option {
	return func(v *DistributedValidator) { v.writer = writer }
}

// WithRedundancyChecker overrides the default checker.
func WithRedundancyChecker(checker *RedundancyChecker) Option {
	return func(v *DistributedValidator) {
		if checker != nil {
			v.checker = checker
		}
	}
}

// WithMaxWorkers caps batch concurrency. Zero or negative means one worker
// per task.
func WithMaxWorkers(n int) Option {
	return func(v *DistributedValidator) { v.maxWorkers = n }
}

// WithLogger sets the operational logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(v *DistributedValidator) { v.logger = logger }
}

// New creates a distributed validator.
func New(opts ...Option) *DistributedValidator {
	v := &DistributedValidator{
		checker: NewRedundancyChecker(),
		logger:  logrus.New(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// RunValidationBatch executes the tasks concurrently and returns one result
// per task in completion order. A panicking or failing task becomes an
// error-status result with a nil hash; it never takes down the batch.
func (v *DistributedValidator) RunValidationBatch(ctx context.Context, tasks []Task) []NodeResult {
	v.mu.Lock()
	v.results = nil
	v.mu.Unlock()
	if len(tasks) == 0 {
		return nil
	}

	nodeIDs := make([]string, len(tasks))
	for idx, task := range tasks {
		nodeIDs[idx] = nodeID(task, idx)
	}
	v.audit("init", map[string]interface{}{
		"nodes": nodeIDs,
		"count": len(tasks),
	})
	metrics.ValidationBatchesTotal.Inc()

	workers := v.maxWorkers
	if workers <= 0 || workers > len(tasks) {
		workers = len(tasks)
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for idx, task := range tasks {
		wg.Add(1)
		go func(id string, task Task) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			v.record(v.runNode(ctx, id, task))
		}(nodeIDs[idx], task)
	}
	wg.Wait()

	v.mu.Lock()
	defer v.mu.Unlock()
	results := make([]NodeResult, len(v.results))
	copy(results, v.results)
	return results
}

// runNode executes one task, converting panics and errors into error-status
// results.
func (v *DistributedValidator) runNode(ctx context.Context, id string, task Task) (result NodeResult) {
	result = NodeResult{NodeID: id, Status: StatusError}
	defer func() {
		if r := recover(); r != nil {
			result.Payload = map[string]interface{}{"error": fmt.Sprintf("panic: %v", r)}
			result.Hash = nil
		}
	}()

	payload, err := task.Run(ctx)
	if err != nil {
		result.Payload = map[string]interface{}{"error": err.Error()}
		return result
	}
	digest, err := HashPayload(payload)
	if err != nil {
		result.Payload = map[string]interface{}{"error": err.Error()}
		return result
	}
	result.Status = StatusSuccess
	result.Payload = payload
	result.Hash = &digest
	return result
}

// record stores one result as it arrives and audits it.
func (v *DistributedValidator) record(result NodeResult) {
	if !result.Succeeded() {
		metrics.ValidationNodeFailuresTotal.Inc()
		v.logger.WithFields(logrus.Fields{
			"node_id": result.NodeID, "payload": result.Payload,
		}).Warn("Validation node failed")
	}
	v.mu.Lock()
	v.results = append(v.results, result)
	v.mu.Unlock()
	v.audit("validation_node_result", result.ToMap())
}

// ConsolidateResults compares the recorded node results and emits a final
// signed summary entry.
func (v *DistributedValidator) ConsolidateResults() ConsistencySummary {
	v.mu.Lock()
	results := make([]NodeResult, len(v.results))
	copy(results, v.results)
	v.mu.Unlock()

	summary := v.checker.Evaluate(results)
	successful := []string{}
	for _, result := range results {
		if result.Succeeded() {
			successful = append(successful, result.NodeID)
		}
	}
	payload := summary.ToMap()
	payload["node_count"] = len(results)
	payload["successful_nodes"] = successful
	v.EmitSignedEvent("validation_complete", payload)
	return summary
}

// EmitSignedEvent records one signed event on the distributed module.
func (v *DistributedValidator) EmitSignedEvent(event string, payload map[string]interface{}) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	v.audit(event, payload)
}

func (v *DistributedValidator) audit(event string, payload map[string]interface{}) {
	if v.writer == nil {
		return
	}
	if err := v.writer.Append("quantreplay.distributed", event, payload); err != nil {
		v.logger.WithError(err).Warn("Failed to append validation audit entry")
	}
}

func nodeID(task Task, index int) string {
	if task.NodeID != "" {
		return task.NodeID
	}
	return fmt.Sprintf("node-%d", index)
}

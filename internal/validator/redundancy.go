// Package validator coordinates concurrent validation nodes and checks
// their outputs for redundancy agreement.
package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/yourusername/quant-replay/internal/audit"
)

// Node result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// NodeResult is the outcome of one validation node. Hash is nil for failed
// nodes and for nodes whose payload could not be serialized.
type NodeResult struct {
	NodeID  string      `json:"node_id"`
	Status  string      `json:"status"`
	Payload interface{} `json:"payload"`
	Hash    *string     `json:"hash,omitempty"`
}

// Succeeded reports whether the node ran to completion.
func (r NodeResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// ToMap renders the result as an audit payload.
func (r NodeResult) ToMap() map[string]interface{} {
	data := map[string]interface{}{
		"node_id": r.NodeID,
		"status":  r.Status,
		"payload": r.Payload,
	}
	if r.Hash != nil {
		data["hash"] = *r.Hash
	}
	return data
}

// HashPayload digests a payload through the same canonical serialization the
// audit trail signs, so node outputs compare byte for byte.
func HashPayload(payload interface{}) (string, error) {
	serialized, err := audit.CanonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("failed to serialize node payload: %w", err)
	}
	digest := sha256.Sum256(serialized)
	return hex.EncodeToString(digest[:]), nil
}

// ConsistencySummary is the verdict over one batch of node results.
type ConsistencySummary struct {
	Consistent      bool              `json:"consistent"`
	Hashes          map[string]string `json:"hashes"`
	UniqueHashes    []string          `json:"unique_hashes"`
	FailedNodes     []string          `json:"failed_nodes"`
	MismatchedNodes []string          `json:"mismatched_nodes"`
}

// ToMap renders the summary as an audit payload.
func (s ConsistencySummary) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"consistent":       s.Consistent,
		"hashes":           s.Hashes,
		"unique_hashes":    s.UniqueHashes,
		"failed_nodes":     s.FailedNodes,
		"mismatched_nodes": s.MismatchedNodes,
	}
}

// RedundancyChecker verifies that validation nodes produced consistent
// outputs. Stateless and safe for concurrent use.
type RedundancyChecker struct{}

// NewRedundancyChecker creates a checker.
func NewRedundancyChecker() *RedundancyChecker {
	return &RedundancyChecker{}
}

// Evaluate compares the node hashes. The batch is consistent when at most
// one distinct hash exists and no node failed. On disagreement every
// hash-bearing node is listed as mismatched; with only cross-node hashes
// available no node can be singled out as the outlier.
func (c *RedundancyChecker) Evaluate(results []NodeResult) ConsistencySummary {
	hashes := make(map[string]string)
	failedNodes := []string{}
	for _, result := range results {
		if result.Hash != nil {
			hashes[result.NodeID] = *result.Hash
		}
		if !result.Succeeded() {
			failedNodes = append(failedNodes, result.NodeID)
		}
	}

	uniqueSet := make(map[string]struct{})
	for _, hash := range hashes {
		uniqueSet[hash] = struct{}{}
	}
	uniqueHashes := make([]string, 0, len(uniqueSet))
	for hash := range uniqueSet {
		uniqueHashes = append(uniqueHashes, hash)
	}
	sort.Strings(uniqueHashes)

	mismatchedNodes := []string{}
	if len(uniqueSet) > 1 {
		for nodeID := range hashes {
			mismatchedNodes = append(mismatchedNodes, nodeID)
		}
		sort.Strings(mismatchedNodes)
	}

	return ConsistencySummary{
		Consistent:      len(uniqueSet) <= 1 && len(failedNodes) == 0,
		Hashes:          hashes,
		UniqueHashes:    uniqueHashes,
		FailedNodes:     failedNodes,
		MismatchedNodes: mismatchedNodes,
	}
}

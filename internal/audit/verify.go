package audit

import (
	"bufio"
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Failure reasons produced by verification.
const (
	ReasonInvalidJSON  = "INVALID_JSON"
	ReasonMissingHMAC  = "MISSING_HMAC"
	ReasonHMACMismatch = "HMAC_MISMATCH"
)

// Failure describes one audit line that did not verify.
type Failure struct {
	Line    int    `json:"line"`
	Reason  string `json:"reason"`
	Preview string `json:"preview"`
}

// Report summarises a verification pass. It is produced only by the
// verifier; the writer never raises integrity errors.
type Report struct {
	Total    int       `json:"total"`
	Verified int       `json:"verified"`
	Failures []Failure `json:"failures"`
}

// Failed returns the number of lines that did not verify.
func (r Report) Failed() int {
	return len(r.Failures)
}

// Clean reports whether every line verified.
func (r Report) Clean() bool {
	return len(r.Failures) == 0
}

// VerifyFile re-checks every line of an existing audit log against key.
// It never modifies the file. A missing file verifies as an empty report.
func VerifyFile(path, key string) (Report, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Report{}, nil
		}
		return Report{}, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	report := Report{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineNo++
		if line == "" {
			continue
		}
		report.Total++
		verifyLine(&report, lineNo, line, key)
	}
	if err := scanner.Err(); err != nil {
		return report, fmt.Errorf("failed to read audit log: %w", err)
	}
	return report, nil
}

func verifyLine(report *Report, lineNo int, line, key string) {
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		report.Failures = append(report.Failures, Failure{
			Line:    lineNo,
			Reason:  ReasonInvalidJSON,
			Preview: preview(line),
		})
		return
	}

	signature, _ := entry["hmac"].(string)
	if signature == "" {
		report.Failures = append(report.Failures, Failure{
			Line:    lineNo,
			Reason:  ReasonMissingHMAC,
			Preview: preview(line),
		})
		return
	}

	expected, err := Sign(entry, key)
	if err != nil || !hmac.Equal([]byte(signature), []byte(expected)) {
		report.Failures = append(report.Failures, Failure{
			Line:    lineNo,
			Reason:  ReasonHMACMismatch,
			Preview: preview(line),
		})
		return
	}
	report.Verified++
}

// VerifyEntry recomputes the signature of a single parsed entry.
func VerifyEntry(entry map[string]interface{}, key string) bool {
	signature, _ := entry["hmac"].(string)
	if signature == "" {
		return false
	}
	expected, err := Sign(entry, key)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(expected))
}

func preview(line string) string {
	const max = 80
	if len(line) <= max {
		return line
	}
	return line[:max]
}

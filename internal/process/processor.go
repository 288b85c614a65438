// Package process validates raw source records and normalizes the
// survivors for persistence. A malformed record is rejected on its own;
// processing never fails a batch as a whole.
package process

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudetl/pipeline-runner/internal/models"
)

const (
	maxTitleLen = 500
	maxBodyLen  = 2000
)

// Processor validates and transforms fetched records.
type Processor struct {
	sourceURL string
	logger    *slog.Logger

	// now is swapped out in tests for deterministic timestamps.
	now func() time.Time
}

// New creates a Processor. sourceURL is stamped onto every normalized
// record for the run.
func New(sourceURL string, logger *slog.Logger) *Processor {
	return &Processor{
		sourceURL: sourceURL,
		logger:    logger,
		now:       time.Now,
	}
}

// Process validates and transforms each record independently, preserving
// input order in the accepted output. Records failing validation are
// counted as rejected and logged, never fatal.
func (p *Processor) Process(raw []models.RawRecord) models.ProcessOutcome {
	outcome := models.ProcessOutcome{}

	for _, record := range raw {
		if err := p.validate(record); err != nil {
			outcome.Rejected++
			continue
		}
		outcome.Accepted = append(outcome.Accepted, p.transform(record))
	}

	p.logger.Info("processed records",
		"step", "process", "accepted", len(outcome.Accepted), "rejected", outcome.Rejected)
	return outcome
}

// validate checks that every required field is present and holds a string
// or integer value.
func (p *Processor) validate(record models.RawRecord) error {
	for _, field := range models.RequiredFields {
		value, ok := record[field]
		if !ok {
			p.logger.Warn("missing required field",
				"step", "validate", "field", field, "record_id", recordID(record))
			return fmt.Errorf("missing field %q", field)
		}
		if !isStringOrInt(value) {
			p.logger.Warn("field has wrong type",
				"step", "validate", "field", field, "record_id", recordID(record))
			return fmt.Errorf("field %q has wrong type", field)
		}
	}
	return nil
}

// transform builds a NormalizedRecord from a validated RawRecord. The two
// timestamps are generated independently at transform time.
func (p *Processor) transform(record models.RawRecord) models.NormalizedRecord {
	return models.NormalizedRecord{
		ID:          stringify(record["id"]),
		Timestamp:   p.now().UTC().Format(time.RFC3339Nano),
		Title:       truncate(strings.TrimSpace(stringify(record["title"])), maxTitleLen),
		Body:        truncate(strings.TrimSpace(stringify(record["body"])), maxBodyLen),
		UserID:      stringify(record["userId"]),
		SourceURL:   p.sourceURL,
		ProcessedAt: p.now().UTC().Format(time.RFC3339Nano),
	}
}

// isStringOrInt accepts strings and integer values. JSON numbers only
// count when they are integral; floats are rejected.
func isStringOrInt(value interface{}) bool {
	switch v := value.(type) {
	case string:
		return true
	case json.Number:
		_, err := v.Int64()
		return err == nil
	case int, int32, int64:
		return true
	default:
		return false
	}
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// truncate limits s to max characters (runes), not bytes.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func recordID(record models.RawRecord) string {
	id, ok := record["id"]
	if !ok {
		return ""
	}
	return stringify(id)
}

package engine

import (
	"fmt"

	"github.com/DeafMist/content-radar/backend/internal/models"
)

// MalformedInputError names the record that aborted a run. No partial output
// is produced when it is returned.
type MalformedInputError struct {
	RecordID string
	Index    int
	Field    string
	Reason   string
}

func (e *MalformedInputError) Error() string {
	id := e.RecordID
	if id == "" {
		id = fmt.Sprintf("#%d", e.Index)
	}
	return fmt.Sprintf("malformed post record %s: %s %s", id, e.Field, e.Reason)
}

// ConfigurationError is returned before any comparison work starts.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// WarningEmptyBatch is the warning code of EmptyBatchWarning.
const WarningEmptyBatch = "empty_batch"

// EmptyBatchWarning marks a target day without a single non-empty post. It is
// not fatal: the summary carries no-data scores and an empty theme
// distribution.
type EmptyBatchWarning struct {
	AgentID string
	Date    string
}

func (w EmptyBatchWarning) Error() string {
	return fmt.Sprintf("agent %q has no non-empty posts on %s", w.AgentID, w.Date)
}

// Warning converts the value for AgentSummary.Warnings.
func (w EmptyBatchWarning) Warning() models.Warning {
	return models.Warning{Code: WarningEmptyBatch, Message: w.Error()}
}

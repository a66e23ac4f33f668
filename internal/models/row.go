package models

import "time"

// Row is one record read from a table, keyed by column name.
type Row map[string]any

// RowError records why a single row could not be written.
type RowError struct {
	Key     string `json:"key"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// TableResult is the outcome of copying one table.
type TableResult struct {
	Table    string        `json:"table"`
	Target   string        `json:"target"`
	Read     int64         `json:"read"`
	Written  int64         `json:"written"`
	Skipped  int64         `json:"skipped"`
	Failed   int64         `json:"failed"`
	Resumed  bool          `json:"resumed"`
	LastKey  string        `json:"last_key,omitempty"`
	Errors   []RowError    `json:"errors,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

const MaxRecordedRowErrors = 20

func (r *TableResult) AddRowError(e RowError) {
	r.Failed++
	if len(r.Errors) < MaxRecordedRowErrors {
		r.Errors = append(r.Errors, e)
	}
}

// MigrationSummary is the outcome of a whole migrate run.
type MigrationSummary struct {
	RunKey   string        `json:"run_key"`
	DryRun   bool          `json:"dry_run"`
	Sink     string        `json:"sink"`
	Tables   []TableResult `json:"tables"`
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished"`
}

func (s MigrationSummary) Totals() (read, written, skipped, failed int64) {
	for _, t := range s.Tables {
		read += t.Read
		written += t.Written
		skipped += t.Skipped
		failed += t.Failed
	}
	return
}

// Partial reports whether any table had row failures or aborted.
func (s MigrationSummary) Partial() bool {
	for _, t := range s.Tables {
		if t.Failed > 0 || t.Error != "" {
			return true
		}
	}
	return false
}

// Checkpoint marks how far a table has been copied within a run.
type Checkpoint struct {
	RunKey    string    `json:"run_key"`
	Table     string    `json:"table"`
	LastKey   string    `json:"last_key"`
	RowsDone  int64     `json:"rows_done"`
	UpdatedAt time.Time `json:"updated_at"`
}

package model

import "time"

// RowWarning records one recoverable row-level problem encountered during
// validation. Row is the 1-based data row number in the source file, not
// counting the header.
type RowWarning struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ValidationReport is the structured outcome of one load attempt. It is the
// only user-visible result of validation besides the store itself; fatal
// errors never surface as raw messages without one.
type ValidationReport struct {
	DatasetID string `json:"dataset_id"`
	Source    string `json:"source,omitempty"`

	TotalRows    int `json:"total_rows"`
	AcceptedRows int `json:"accepted_rows"`
	RejectedRows int `json:"rejected_rows"`

	// DuplicateRows counts rows dropped by the first-occurrence-wins policy
	// for repeated timestamps. They are not included in RejectedRows.
	DuplicateRows int `json:"duplicate_rows"`

	RedactedCellCount int            `json:"redacted_cell_count"`
	RedactedByColumn  map[string]int `json:"redacted_by_column,omitempty"`

	DetectedSubsystems []string `json:"detected_subsystems"`
	DetectedLinks      []string `json:"detected_links"`

	// Warnings holds row-level rejection reasons, capped by the loader; the
	// counts above remain exact even when the list is truncated.
	Warnings          []RowWarning `json:"warnings,omitempty"`
	WarningsTruncated bool         `json:"warnings_truncated,omitempty"`

	// Empty flags a dataset that validated but accepted zero rows. The store
	// still exists and downstream consumers treat it as a zero-length mission.
	Empty bool `json:"empty"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

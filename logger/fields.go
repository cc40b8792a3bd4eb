package logger

// Standard field names for consistent structured logging across batchgate.
// Use these constants instead of raw strings so runs stay queryable.
const (
	// Run identity
	FieldRunID  = "run_id"
	FieldMode   = "mode"
	FieldDryRun = "dry_run"

	// Board entities
	FieldItemID       = "item_id"
	FieldItemName     = "item_name"
	FieldBoardID      = "board_id"
	FieldColumnID     = "column_id"
	FieldDependencyID = "dependency_id"

	// Outcomes
	FieldProcessed = "processed"
	FieldUpdated   = "updated"
	FieldSkipped   = "skipped"
	FieldReason    = "reason"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"
)

package logger

// Standard field names for consistent structured logging across printfarm.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldJobID     = "job_id"
	FieldPrinterID = "printer_id"
	FieldPrincipal = "principal"
	FieldRunID     = "run_id"

	// Components
	FieldComponent = "component"

	// Scheduling
	FieldStatus     = "status"
	FieldFrom       = "from"
	FieldTo         = "to"
	FieldSkipReason = "skip_reason"
	FieldStart      = "scheduled_start"
	FieldEnd        = "scheduled_end"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"

	// Counts
	FieldCount = "count"
)

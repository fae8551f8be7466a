package log

// Canonical field names.
const (
	FieldService   = "service"
	FieldComponent = "component"
	FieldRequestID = "request_id"
	FieldSessionID = "session_id"
	FieldClaimID   = "claim_id"
	FieldStep      = "step"
	FieldAction    = "action"
	FieldDocument  = "document"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldDuration  = "duration_ms"
)

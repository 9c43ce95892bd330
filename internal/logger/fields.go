package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, carried on the context logger through a request.
const (
	FieldRequestID = "request_id"
	FieldMatchID   = "match_id"
	FieldComponent = "component"
	FieldUserID    = "user_id"
)

// Domain fields attached to individual entries.
const (
	// FieldItemID is the catalog item id
	FieldItemID = "item_id"

	// FieldStrategy is the embedding strategy name
	FieldStrategy = "strategy"
)

// Metric fields, used for aggregation and alerting.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldSize       = "size"
	FieldStatus     = "status"
)

package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches internal/middleware/identity.go keys)
	FieldUserID   = "user_id"
	FieldUserRole = "user_role"
	FieldUserName = "user_name"

	// Chat domain
	FieldRoomID    = "room_id"
	FieldMemoID    = "memo_id"
	FieldMessageID = "message_id"
	FieldChannel   = "channel"

	// Service
	FieldService = "service"
)

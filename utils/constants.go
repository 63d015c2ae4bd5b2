package utils

// Context keys for request-scoped metadata propagated from the HTTP layer
type ContextKey string

const (
	RequestIDKey  ContextKey = "request_id"
	UserAgentKey  ContextKey = "user_agent"
	IPAddressKey  ContextKey = "ip_address"
	EndpointKey   ContextKey = "endpoint"
	TimeoutKey    ContextKey = "timeout"
	CancelFuncKey ContextKey = "cancel_func"
	OwnerIDKey    ContextKey = "owner_id"
)

// Short code format bounds; codes outside these lengths are rejected before
// any store lookup
const (
	MinCodeLength = 4
	MaxCodeLength = 10
)

// CORS constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

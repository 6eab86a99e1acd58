package llm

import "context"

type contextKey string

const callInfoKey contextKey = "llm_call_info"

// CallInfo identifies a call for logging.
type CallInfo struct {
	CallID  string
	Table   string
	Batch   int
	Attempt int
}

// WithCallInfo attaches call identification to ctx.
func WithCallInfo(ctx context.Context, info CallInfo) context.Context {
	return context.WithValue(ctx, callInfoKey, info)
}

// GetCallInfo returns the call identification attached to ctx, if any.
func GetCallInfo(ctx context.Context) (CallInfo, bool) {
	info, ok := ctx.Value(callInfoKey).(CallInfo)
	return info, ok
}

package ctxutil

import "context"

type traceDataKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
	// Subject names the addressed entity ("character", "job", ...) and
	// SubjectID its path id; AsOf is the raw cutoff of as-of reads.
	Subject   string
	SubjectID string
	AsOf      string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// LogFields returns request/trace ids and the request subject as logger
// key/value pairs.
func LogFields(ctx context.Context) []any {
	td := GetTraceData(ctx)
	if td == nil {
		return nil
	}
	out := make([]any, 0, 8)
	if td.RequestID != "" {
		out = append(out, "request_id", td.RequestID)
	}
	if td.TraceID != "" {
		out = append(out, "trace_id", td.TraceID)
	}
	if td.Subject != "" && td.SubjectID != "" {
		out = append(out, td.Subject+"_id", td.SubjectID)
	}
	if td.AsOf != "" {
		out = append(out, "as_of", td.AsOf)
	}
	return out
}

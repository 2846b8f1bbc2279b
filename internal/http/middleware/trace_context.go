package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/progressledger/internal/platform/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
)

// routeSubjects maps the collection segment of an /api route to the entity
// its path parameter addresses.
var routeSubjects = map[string]struct{ subject, param string }{
	"characters":    {"character", "id"},
	"notifications": {"notification", "id"},
	"jobs":          {"job", "id"},
	"chapters":      {"chapter", "order"},
}

// AttachTraceContext stamps request and trace ids on the request context,
// echoes them back as headers, and tags the request with the addressed
// ledger entity and as-of cutoff for logs and spans.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if reqID == "" {
			reqID = uuid.New().String()
		}
		span := trace.SpanFromContext(c.Request.Context())
		traceID := strings.TrimSpace(c.GetHeader(headerTraceID))
		if traceID == "" && span.SpanContext().HasTraceID() {
			traceID = span.SpanContext().TraceID().String()
		}
		if traceID == "" {
			traceID = uuid.New().String()
		}

		td := &ctxutil.TraceData{TraceID: traceID, RequestID: reqID}
		td.Subject, td.SubjectID = routeSubject(c)
		td.AsOf = strings.TrimSpace(c.Query("as_of"))
		if span.IsRecording() {
			if td.SubjectID != "" {
				span.SetAttributes(attribute.String("progressledger."+td.Subject+"_id", td.SubjectID))
			}
			if td.AsOf != "" {
				span.SetAttributes(attribute.String("progressledger.as_of", td.AsOf))
			}
		}

		c.Request = c.Request.WithContext(ctxutil.WithTraceData(c.Request.Context(), td))
		c.Set("trace_id", traceID)
		c.Set("request_id", reqID)
		c.Writer.Header().Set(headerTraceID, traceID)
		c.Writer.Header().Set(headerRequestID, reqID)
		c.Next()
	}
}

// routeSubject reads the entity from the matched route, e.g.
// /api/characters/:id/classes -> ("character", <id>).
func routeSubject(c *gin.Context) (string, string) {
	parts := strings.Split(strings.Trim(c.FullPath(), "/"), "/")
	if len(parts) < 3 || parts[0] != "api" {
		return "", ""
	}
	rs, ok := routeSubjects[parts[1]]
	if !ok || parts[2] != ":"+rs.param {
		return "", ""
	}
	return rs.subject, strings.TrimSpace(c.Param(rs.param))
}

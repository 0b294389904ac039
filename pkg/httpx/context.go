package httpx

import "context"

type ctxKey string

// CtxKeySubject holds the authenticated subject injected by AuthnMiddleware.
const CtxKeySubject ctxKey = "subject"

// SubjectFromContext returns the authenticated subject, or "" when the
// request never passed through AuthnMiddleware.
func SubjectFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeySubject).(string); ok {
		return v
	}
	return ""
}

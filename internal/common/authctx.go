package common

import "context"

type ctxKey string

const (
	subjectKey     ctxKey = "auth/subject"
	subjectSlotKey ctxKey = "auth/subject-slot"
)

// WithSubjectSlot reserves a slot that WithSubject fills in further down the
// handler chain, so outer middleware can read the subject after next returns.
func WithSubjectSlot(ctx context.Context) context.Context {
	return context.WithValue(ctx, subjectSlotKey, new(string))
}

// WithSubject stores the authenticated token subject on the provided context.
func WithSubject(ctx context.Context, sub string) context.Context {
	if slot, ok := ctx.Value(subjectSlotKey).(*string); ok {
		*slot = sub
	}
	return context.WithValue(ctx, subjectKey, sub)
}

// Subject extracts the authenticated token subject from the context if present.
func Subject(ctx context.Context) (string, bool) {
	if sub, ok := ctx.Value(subjectKey).(string); ok {
		return sub, true
	}
	if slot, ok := ctx.Value(subjectSlotKey).(*string); ok && *slot != "" {
		return *slot, true
	}
	return "", false
}

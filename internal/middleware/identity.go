package middleware

import (
	"context"
	"net/http"
	"strings"
)

const (
	userIDKey contextKey = "user_id"
	planIDKey contextKey = "plan_id"
)

// Identity resolves the caller from the X-User-ID and X-Plan-ID headers set
// by the edge proxy after authentication. Requests without a user are
// rejected before they reach a handler.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if userID == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":"unauthorized","message":"missing user context"}}`))
			return
		}
		plan := strings.TrimSpace(r.Header.Get("X-Plan-ID"))
		if plan == "" {
			plan = "free"
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		ctx = context.WithValue(ctx, planIDKey, plan)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

func PlanIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(planIDKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithUser injects identity directly, for tests and internal calls.
func ContextWithUser(ctx context.Context, userID, plan string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, planIDKey, plan)
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIdentity(t *testing.T) {
	tests := []struct {
		name       string
		userHeader string
		planHeader string
		wantStatus int
		wantUser   string
		wantPlan   string
	}{
		{
			name:       "missing user rejected",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "user without plan defaults to free",
			userHeader: "user-1",
			wantStatus: http.StatusOK,
			wantUser:   "user-1",
			wantPlan:   "free",
		},
		{
			name:       "user with plan",
			userHeader: "user-2",
			planHeader: "pro",
			wantStatus: http.StatusOK,
			wantUser:   "user-2",
			wantPlan:   "pro",
		},
		{
			name:       "blank user rejected",
			userHeader: "   ",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var gotUser, gotPlan string
			handler := Identity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser = UserIDFromContext(r.Context())
				gotPlan = PlanIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.userHeader != "" {
				req.Header.Set("X-User-ID", tc.userHeader)
			}
			if tc.planHeader != "" {
				req.Header.Set("X-Plan-ID", tc.planHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if tc.wantStatus != http.StatusOK {
				return
			}
			if gotUser != tc.wantUser {
				t.Fatalf("user = %q, want %q", gotUser, tc.wantUser)
			}
			if gotPlan != tc.wantPlan {
				t.Fatalf("plan = %q, want %q", gotPlan, tc.wantPlan)
			}
		})
	}
}

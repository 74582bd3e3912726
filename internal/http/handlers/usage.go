package handlers

import "net/http"

type usageResponse struct {
	Plan         string `json:"plan"`
	MonthlyLimit int    `json:"monthly_limit"`
	Remaining    int    `json:"remaining"`
}

// Usage reports the caller's generation allowance for the current billing
// month.
func (a *App) Usage(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	plan := a.currentPlanID(r)

	limit := a.Plans.MonthlyGenerations(plan)
	remaining, err := a.Ledger.Remaining(r.Context(), userID, limit)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, usageResponse{
		Plan:         plan,
		MonthlyLimit: limit,
		Remaining:    remaining,
	})
}

package httpapi

import (
	"net/http"
	"strings"
	"time"

	"civicledger.org/internal/audit"
	"civicledger.org/internal/auth"
	"civicledger.org/internal/civic"
)

type tokenRequest struct {
	Email string `json:"email"`
}

type tokenResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      civic.User `json:"user"`
}

const tokenTTL = 15 * time.Minute

// handleAuthToken exchanges an email for a bearer token, provisioning the
// account on first sight. Roles are derived from the officer domain, never
// taken from the request.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		writeError(w, r, http.StatusBadRequest, "a valid email is required")
		return
	}

	user, err := a.svc.EnsureUser(r.Context(), email)
	if err != nil {
		handleCivicError(w, r, err)
		return
	}

	roles := []string{auth.RoleCitizen}
	if a.svc.IsPrivileged(user.Email) {
		roles = append(roles, auth.RoleOfficer)
	}

	token, err := auth.GenerateToken(user.ID, roles, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	expiresAt := time.Now().UTC().Add(tokenTTL)
	_ = audit.LogEvent(r.Context(), audit.EventTokenIssued, map[string]any{
		"user_id":    user.ID,
		"roles":      roles,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	})
}

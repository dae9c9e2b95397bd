package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"civicledger.org/internal/audit"
	"civicledger.org/internal/civic"
)

type registerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type visibilityRequest struct {
	Public bool `json:"public"`
}

type ledgerResponse struct {
	Items []civic.LedgerEntry `json:"items"`
	AsOf  time.Time           `json:"as_of"`
}

type leaderboardEntry struct {
	Position int    `json:"position"`
	Name     string `json:"name"`
	Credits  int64  `json:"credits"`
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.registerUser(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	id, verb, _ := strings.Cut(path, "/")
	if id == "" || strings.Contains(verb, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch verb {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getUser(w, r, id)
	case "visibility":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.setVisibility(w, r, id)
	case "ledger":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getLedger(w, r, id)
	case "rank":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getRank(w, r, id)
	case "metrics":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getUserMetrics(w, r, id)
	case "rewards":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getRewards(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) registerUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" {
		writeError(w, r, http.StatusBadRequest, "name and email are required")
		return
	}

	u, err := a.svc.RegisterUser(r.Context(), req.Name, req.Email)
	if err != nil {
		handleCivicError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), audit.EventUserRegistered, map[string]any{
		"user_id": u.ID,
	})

	w.Header().Set("Location", "/v1/users/"+u.ID)
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request, id string) {
	u, err := a.svc.GetUser(r.Context(), id)
	if err != nil {
		handleCivicError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) setVisibility(w http.ResponseWriter, r *http.Request, id string) {
	if err := a.requireSelf(r, id); err != nil {
		writeError(w, r, http.StatusForbidden, err.Error())
		return
	}

	var req visibilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.svc.SetVisibility(r.Context(), id, req.Public)
	if err != nil {
		handleCivicError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventVisibilityChange, map[string]any{
		"user_id": u.ID,
		"public":  req.Public,
	})
	writeJSON(w, http.StatusOK, u)
}

func (a *API) getLedger(w http.ResponseWriter, r *http.Request, id string) {
	entries, err := a.svc.Ledger(r.Context(), id)
	if err != nil {
		handleCivicError(w, r, err)
		return
	}
	if entries == nil {
		entries = []civic.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, ledgerResponse{
		Items: entries,
		AsOf:  time.Now().UTC(),
	})
}

func (a *API) getRank(w http.ResponseWriter, r *http.Request, id string) {
	rank, err := a.svc.UserRank(r.Context(), id)
	if err != nil {
		handleCivicError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rank)
}

func (a *API) getUserMetrics(w http.ResponseWriter, r *http.Request, id string) {
	m, err := a.svc.UserMetrics(r.Context(), id)
	if err != nil {
		handleCivicError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) getRewards(w http.ResponseWriter, r *http.Request, id string) {
	tiers, err := a.svc.QualifiedTiers(r.Context(), id)
	if err != nil {
		handleCivicError(w, r, err)
		return
	}
	if tiers == nil {
		tiers = []civic.RewardTier{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": tiers})
}

// handleLeaderboard lists top citizens; accounts that opted out of public
// profiles appear as Anonymous.
func (a *API) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), 50, 1, 50)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	users, err := a.svc.Leaderboard(r.Context(), limit)
	if err != nil {
		handleCivicError(w, r, err)
		return
	}

	items := make([]leaderboardEntry, 0, len(users))
	for i, u := range users {
		name := u.Name
		if !u.PublicProfile {
			name = "Anonymous"
		}
		items = append(items, leaderboardEntry{
			Position: i + 1,
			Name:     name,
			Credits:  u.Credits,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func parseLimit(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit out of range")
	}
	return val, nil
}

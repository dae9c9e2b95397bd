package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"civicledger.org/internal/audit"
	"civicledger.org/internal/civic"
	"civicledger.org/internal/geo"
	"civicledger.org/internal/obs"
	"civicledger.org/internal/stream"
	"civicledger.org/internal/taxonomy"
)

type triageRequest struct {
	Text string   `json:"text"`
	Lat  *float64 `json:"lat,omitempty"`
	Lng  *float64 `json:"lng,omitempty"`
}

type submitIssueRequest struct {
	ReporterID  string `json:"reporter_id"`
	Text        string `json:"text"`
	Category    string `json:"category,omitempty"`
	Subcategory string `json:"subcategory,omitempty"`
	Location    string `json:"location,omitempty"`
}

type submitIssueResponse struct {
	Issue   civic.Issue   `json:"issue"`
	Mission civic.Mission `json:"mission"`
}

type statusUpdateRequest struct {
	Status        string `json:"status"`
	EstimatedDays string `json:"estimated_days,omitempty"`
}

type completeMissionRequest struct {
	BeforeHash string `json:"before_hash"`
	AfterHash  string `json:"after_hash"`
}

type geocodeRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (a *API) handleTriage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req triageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var coords *geo.Coords
	if req.Lat != nil && req.Lng != nil {
		coords = &geo.Coords{Lat: *req.Lat, Lng: *req.Lng}
	}
	writeJSON(w, http.StatusOK, a.svc.TriageText(r.Context(), req.Text, coords))
}

func (a *API) handleIssuesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.submitIssue(w, r)
	case http.MethodGet:
		a.listIssues(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleIssueResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/issues/")
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
		a.getIssue(w, r, id)
	case "status":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.updateIssueStatus(w, r, id)
	case "missions":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.listIssueMissions(w, r, id)
	case "prediction":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getPrediction(w, r, id)
	case "letter":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.getLetter(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleMissionResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/missions/")
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
		a.getMission(w, r, id)
	case "complete":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.completeMission(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) submitIssue(w http.ResponseWriter, r *http.Request) {
	var req submitIssueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ReporterID) == "" {
		writeError(w, r, http.StatusBadRequest, "reporter_id is required")
		return
	}

	is, m, err := a.svc.SubmitIssue(r.Context(), req.ReporterID, req.Text, req.Category, req.Subcategory, req.Location)
	if err != nil {
		handleCivicError(w, r, err)
		return
	}

	obs.IssuesSubmitted.Inc()
	if a.stream != nil {
		a.stream.Publish(stream.Event{
			Kind:        stream.KindIssueSubmitted,
			Location:    is.Location,
			Category:    string(is.Category),
			Subcategory: string(is.Subcategory),
			Status:      is.Status,
		})
	}
	_ = audit.LogEvent(r.Context(), audit.EventIssueSubmitted, map[string]any{
		"issue_id":   is.ID,
		"mission_id": m.ID,
		"category":   string(is.Category),
		"location":   is.Location,
	})

	w.Header().Set("Location", "/v1/issues/"+is.ID)
	writeJSON(w, http.StatusCreated, submitIssueResponse{Issue: is, Mission: m})
}

func (a *API) listIssues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if reporter := strings.TrimSpace(q.Get("reporter_id")); reporter != "" {
		issues, err := a.svc.IssuesByReporter(r.Context(), reporter)
		if err != nil {
			handleCivicError(w, r, err)
			return
		}
		writeIssueList(w, issues)
		return
	}
	if location := strings.TrimSpace(q.Get("location")); location != "" {
		limit, err := parseLimit(q.Get("limit"), 50, 1, 50)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		issues, err := a.svc.IssuesByLocation(r.Context(), location, limit)
		if err != nil {
			handleCivicError(w, r, err)
			return
		}
		writeIssueList(w, issues)
		return
	}
	writeError(w, r, http.StatusBadRequest, "reporter_id or location query parameter is required")
}

func writeIssueList(w http.ResponseWriter, issues []civic.Issue) {
	if issues == nil {
		issues = []civic.Issue{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": issues,
		"as_of": time.Now().UTC(),
	})
}

func (a *API) getIssue(w http.ResponseWriter, r *http.Request, id string) {
	is, err := a.svc.GetIssue(r.Context(), id)
	if err != nil {
		handleCivicError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, is)
}

func (a *API) updateIssueStatus(w http.ResponseWriter, r *http.Request, id string) {
	if err := a.requireOfficer(r); err != nil {
		writeError(w, r, http.StatusForbidden, err.Error())
		return
	}

	var req statusUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	is, credited, err := a.svc.UpdateIssueStatus(r.Context(), id, req.Status, req.EstimatedDays)
	if err != nil {
		handleCivicError(w, r, err)
		return
	}

	if credited {
		obs.CreditsAwarded.Add(float64(civic.RewardFor(is.Category)))
	}
	if a.stream != nil {
		a.stream.Publish(stream.Event{
			Kind:        stream.KindIssueUpdated,
			Location:    is.Location,
			Category:    string(is.Category),
			Subcategory: string(is.Subcategory),
			Status:      is.Status,
		})
	}
	_ = audit.LogEvent(r.Context(), audit.EventIssueStatus, map[string]any{
		"issue_id": is.ID,
		"status":   is.Status,
		"credited": credited,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"issue":    is,
		"credited": credited,
	})
}

func (a *API) listIssueMissions(w http.ResponseWriter, r *http.Request, id string) {
	missions, err := a.svc.MissionsByIssue(r.Context(), id)
	if err != nil {
		handleCivicError(w, r, err)
		return
	}
	if missions == nil {
		missions = []civic.Mission{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": missions})
}

func (a *API) getPrediction(w http.ResponseWriter, r *http.Request, id string) {
	est, err := a.svc.Prediction(r.Context(), id)
	if err != nil {
		handleCivicError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

func (a *API) getLetter(w http.ResponseWriter, r *http.Request, id string) {
	letter, err := a.svc.Letter(r.Context(), id)
	if err != nil {
		handleCivicError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"letter": letter})
}

func (a *API) getMission(w http.ResponseWriter, r *http.Request, id string) {
	m, err := a.svc.GetMission(r.Context(), id)
	if err != nil {
		handleCivicError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) completeMission(w http.ResponseWriter, r *http.Request, id string) {
	var req completeMissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.svc.CompleteMission(r.Context(), id, req.BeforeHash, req.AfterHash)
	if err != nil {
		handleCivicError(w, r, err)
		return
	}

	event := audit.EventMissionCompleted
	if res.Credited {
		obs.MissionsCompleted.Inc()
		obs.CreditsAwarded.Add(float64(res.CreditDelta))
		if a.stream != nil {
			a.stream.Publish(stream.Event{
				Kind:     stream.KindMissionCompleted,
				Location: res.Mission.Location,
				Category: string(res.Mission.Category),
				Status:   res.Mission.Status,
			})
		}
	} else {
		event = "mission.completion_replayed"
	}
	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"mission_id": res.Mission.ID,
		"proof_ref":  res.ProofRef,
		"credited":   res.Credited,
	})

	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleNearby(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	coords, err := parseCoords(r.URL.Query().Get("lat"), r.URL.Query().Get("lng"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	locality, issues, err := a.svc.NearbyIssues(r.Context(), coords)
	if err != nil {
		handleCivicError(w, r, err)
		return
	}
	if issues == nil {
		issues = []civic.Issue{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"locality": locality,
		"items":    issues,
	})
}

func (a *API) handleRegions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	stats, err := a.svc.RegionSummary(r.Context())
	if err != nil {
		handleCivicError(w, r, err)
		return
	}
	if stats == nil {
		stats = []civic.RegionStat{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": stats})
}

func (a *API) handleInsights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	location := strings.TrimSpace(r.URL.Query().Get("location"))
	if location == "" {
		writeError(w, r, http.StatusBadRequest, "location query parameter is required")
		return
	}
	insights, err := a.svc.AreaInsightsFor(r.Context(), location)
	if err != nil {
		handleCivicError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insights)
}

func (a *API) handleTaxonomy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, taxonomy.Catalogue())
}

func (a *API) handleGeocode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req geocodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	locality := a.svc.ResolveCoords(r.Context(), geo.Coords{Lat: req.Lat, Lng: req.Lng})
	writeJSON(w, http.StatusOK, map[string]any{"locality": locality})
}

func parseCoords(rawLat, rawLng string) (geo.Coords, error) {
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(rawLat), 64)
	lng, lngErr := strconv.ParseFloat(strings.TrimSpace(rawLng), 64)
	if latErr != nil || lngErr != nil {
		return geo.Coords{}, errors.New("lat and lng query parameters are required")
	}
	return geo.Coords{Lat: lat, Lng: lng}, nil
}

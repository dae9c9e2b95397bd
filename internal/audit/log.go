// Package audit emits structured audit entries for state-changing civic
// operations: account creation, issue submission, status transitions, mission
// completion and token issuance. Entries share the obs JSON logger so every
// sink sees one stream.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"civicledger.org/internal/auth"
	"civicledger.org/internal/obs"
)

// Canonical event names. Handlers log these rather than free-form strings so
// downstream filters stay stable.
const (
	EventUserRegistered   = "user.registered"
	EventTokenIssued      = "auth.token_issued"
	EventIssueSubmitted   = "issue.submitted"
	EventIssueStatus      = "issue.status_updated"
	EventMissionCompleted = "mission.completed"
	EventVisibilityChange = "user.visibility_updated"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and actor context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if actorID, ok := auth.UserIDFromContext(ctx); ok {
		entry["actor_id"] = actorID
		if roles := auth.RolesFromContext(ctx); len(roles) > 0 {
			entry["actor_roles"] = roles
		}
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}

// Package audit records administrative changes to rules and orders.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/resto-billing/internal/common"
	"github.com/noah-isme/resto-billing/internal/obs"
)

// Entry is one audited admin request.
type Entry struct {
	ID           int64           `json:"id"`
	Subject      string          `json:"subject,omitempty"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId,omitempty"`
	Method       string          `json:"method"`
	Path         string          `json:"path"`
	Status       int             `json:"status"`
	IP           string          `json:"ip,omitempty"`
	RequestID    string          `json:"requestId,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Store persists audit entries.
type Store interface {
	Insert(ctx context.Context, e Entry) error
	List(ctx context.Context, limit, offset int) ([]Entry, error)
}

// Recorder builds entries from handled requests.
type Recorder struct {
	Store   Store
	OnError func(error)
}

// Route describes how a route is audited. ResourceIDParam names the chi URL
// parameter identifying the affected resource.
type Route struct {
	Action          string
	ResourceType    string
	ResourceIDParam string
}

// Middleware records the request after next has written its response.
// Failed writes to the store never affect the response.
func (rec Recorder) Middleware(route Route) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sr := obs.NewStatusRecorder(w)
			next.ServeHTTP(sr, r)
			if rec.Store == nil {
				return
			}
			if err := rec.Store.Insert(r.Context(), entryFor(r, route, sr.Status())); err != nil && rec.OnError != nil {
				rec.OnError(err)
			}
		})
	}
}

func entryFor(r *http.Request, route Route, status int) Entry {
	e := Entry{
		Action:       route.Action,
		ResourceType: route.ResourceType,
		Method:       r.Method,
		Path:         r.URL.Path,
		Status:       status,
		IP:           common.ClientIP(r),
		RequestID:    middleware.GetReqID(r.Context()),
	}
	if subject, ok := common.Subject(r.Context()); ok {
		e.Subject = subject
	}
	if route.ResourceIDParam != "" {
		e.ResourceID = chi.URLParam(r, route.ResourceIDParam)
	}
	if e.Action == "" {
		pattern := obs.Route(r)
		if pattern == "" {
			pattern = r.URL.Path
		}
		e.Action = r.Method + " " + pattern
	}
	if e.ResourceType == "" {
		e.ResourceType = "unknown"
	}
	if q := strings.TrimSpace(r.URL.RawQuery); q != "" {
		e.Metadata, _ = json.Marshal(map[string]string{"query": q})
	}
	return e
}

// PGStore writes entries to admin_audit_log.
type PGStore struct {
	Pool *pgxpool.Pool
}

// Insert implements Store.
func (p PGStore) Insert(ctx context.Context, e Entry) error {
	if p.Pool == nil {
		return errors.New("audit: pool not configured")
	}
	_, err := p.Pool.Exec(ctx, `INSERT INTO admin_audit_log
(subject, action, resource_type, resource_id, method, path, status, ip, request_id, metadata)
VALUES (NULLIF($1, ''), $2, $3, NULLIF($4, ''), $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10)`,
		e.Subject, e.Action, e.ResourceType, e.ResourceID, e.Method, e.Path, e.Status, e.IP, e.RequestID, nullJSON(e.Metadata))
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List implements Store, newest first.
func (p PGStore) List(ctx context.Context, limit, offset int) ([]Entry, error) {
	rows, err := p.Pool.Query(ctx, `SELECT id, COALESCE(subject, ''), action, resource_type, COALESCE(resource_id, ''),
method, path, status, COALESCE(ip, ''), COALESCE(request_id, ''), metadata, created_at
FROM admin_audit_log ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()
	out := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e    Entry
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.Subject, &e.Action, &e.ResourceType, &e.ResourceID,
			&e.Method, &e.Path, &e.Status, &e.IP, &e.RequestID, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if len(meta) > 0 {
			e.Metadata = meta
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// Handler lists audit entries for administrators.
type Handler struct {
	Store Store
}

// List returns a page of entries, newest first.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_NOT_CONFIGURED", "audit store not configured", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 50, 200)
	entries, err := h.Store.List(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "unable to fetch audit entries", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": entries})
}

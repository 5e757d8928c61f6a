package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"starledger/internal/account"
	"starledger/internal/auth"
	"starledger/internal/catalog"
	"starledger/internal/channel"
	"starledger/internal/engine"
	"starledger/internal/history"
	"starledger/internal/localstore"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ready, checks := s.service.Ready(ctx)
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"ok": ready, "checks": checks})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/login" {
		s.handleLogin(w, r)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	parts = parts[1:]

	switch parts[0] {
	case "session":
		s.handleSession(w, r, session, parts)
	case "catalog":
		s.handleCatalog(w, r, session, parts)
	case "submissions":
		s.handleSubmissions(w, r, session, parts)
	case "penalties":
		s.handlePenalties(w, r, session, parts)
	case "store":
		s.handleStore(w, r, session, parts)
	case "tasks":
		s.handleQuickApprove(w, r, session, parts)
	case "balance":
		s.handleBalance(w, r, session, parts)
	case "history":
		s.handleHistory(w, r, session, parts)
	case "users":
		s.handleUsers(w, r, session, parts)
	case "settings":
		s.handleSettings(w, r, session, parts)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.Role == "" {
		body.Role = account.RoleExecutor
	}
	if body.Role != account.RoleAdmin && body.Role != account.RoleExecutor {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "role must be admin or executor", nil)
		return
	}

	user, token, err := s.service.Accounts.Login(r.Context(), body.Username, body.Password, body.Role)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	balance, err := s.service.Books.Balance(user.Username)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":    token,
		"username": user.Username,
		"nickname": user.Nickname,
		"role":     user.Role,
		"balance":  balance,
	})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request, session account.Session, parts []string) {
	switch {
	case r.Method == http.MethodGet && len(parts) == 1:
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"username":      session.Username,
			"nickname":      session.Nickname,
			"role":          session.Role,
		})

	case r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "logout":
		// Tokens are stateless; logout is a client-side discard.
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "password":
		var body struct {
			CurrentPassword string `json:"currentPassword"`
			NewPassword     string `json:"newPassword"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.Accounts.ChangePassword(session.Username, body.CurrentPassword, body.NewPassword); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case r.Method == http.MethodPut && len(parts) == 2 && parts[1] == "nickname":
		var body struct {
			Nickname string `json:"nickname"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		user, err := s.service.Accounts.UpdateNickname(session.Username, body.Nickname)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"username": user.Username, "nickname": user.Nickname})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleCatalog(w http.ResponseWriter, r *http.Request, session account.Session, parts []string) {
	// /api/catalog/reset clears every category at once.
	if r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "reset" {
		if !s.requireAdmin(w, session) {
			return
		}
		if err := s.service.Catalog.ResetAll(); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if len(parts) < 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	cat, ok := catalog.ParseCategory(parts[1])
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown category", nil)
		return
	}

	switch {
	case r.Method == http.MethodGet && len(parts) == 2:
		var defs []catalog.Definition
		var err error
		if session.IsAdmin() && r.URL.Query().Get("all") != "" {
			defs, err = s.service.Catalog.List(cat)
		} else {
			defs, err = s.service.Catalog.ListEnabled(cat)
		}
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"category": cat, "definitions": defs})

	case r.Method == http.MethodPost && len(parts) == 2:
		if !s.requireAdmin(w, session) {
			return
		}
		var body struct {
			Name   string `json:"name"`
			Points int64  `json:"points"`
			Icon   string `json:"icon"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		def, err := s.service.Catalog.Add(cat, body.Name, body.Points, body.Icon)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, def)

	case r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "reset":
		if !s.requireAdmin(w, session) {
			return
		}
		if err := s.service.Catalog.ResetDefaults(cat); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case r.Method == http.MethodPut && len(parts) == 3:
		if !s.requireAdmin(w, session) {
			return
		}
		var patch catalog.Patch
		if err := decodeBody(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		def, err := s.service.Catalog.Update(cat, parts[2], patch)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, def)

	case r.Method == http.MethodDelete && len(parts) == 3:
		if !s.requireAdmin(w, session) {
			return
		}
		if err := s.service.Catalog.Delete(cat, parts[2]); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case r.Method == http.MethodPost && len(parts) == 4 && parts[3] == "toggle":
		if !s.requireAdmin(w, session) {
			return
		}
		def, err := s.service.Catalog.Toggle(cat, parts[2])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, def)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSubmissions(w http.ResponseWriter, r *http.Request, session account.Session, parts []string) {
	switch {
	case r.Method == http.MethodGet && len(parts) == 1:
		snap, err := s.service.Channel.Snapshot(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		list := []channel.Submission{}
		for _, sub := range snap.List {
			// Executors only see their own pending claims.
			if !session.IsAdmin() && sub.SubmitterID != session.Username {
				continue
			}
			list = append(list, sub)
		}
		writeJSON(w, http.StatusOK, map[string]any{"submissions": list})

	case r.Method == http.MethodPost && len(parts) == 1:
		var body struct {
			Category string `json:"category"`
			TaskID   string `json:"taskId"`
			Note     string `json:"note"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		cat, ok := catalog.ParseCategory(body.Category)
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown category", nil)
			return
		}
		sub, err := s.service.Engine.Submit(r.Context(), sessionActor(session), cat, body.TaskID, body.Note)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, sub)

	case r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "approve":
		if !s.requireAdmin(w, session) {
			return
		}
		sub, balance, err := s.service.Engine.Approve(r.Context(), sessionActor(session), parts[1])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"submission": sub, "balance": balance})

	case r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "reject":
		if !s.requireAdmin(w, session) {
			return
		}
		sub, err := s.service.Engine.Reject(r.Context(), sessionActor(session), parts[1])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"submission": sub})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handlePenalties(w http.ResponseWriter, r *http.Request, session account.Session, parts []string) {
	if r.Method != http.MethodPost || len(parts) != 3 || parts[2] != "apply" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if !s.requireAdmin(w, session) {
		return
	}
	var body struct {
		Subject string `json:"subject"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(body.Subject) == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "subject is required", nil)
		return
	}
	balance, err := s.service.Engine.ApplyPenalty(r.Context(), sessionActor(session), s.service.subjectActor(body.Subject), parts[1])
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subject": body.Subject, "balance": balance})
}

func (s *HTTPServer) handleStore(w http.ResponseWriter, r *http.Request, session account.Session, parts []string) {
	if r.Method != http.MethodPost || len(parts) != 3 || parts[2] != "buy" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	// Purchases always settle against the buyer's own balance.
	balance, err := s.service.Engine.BuyItem(r.Context(), sessionActor(session), parts[1])
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

func (s *HTTPServer) handleQuickApprove(w http.ResponseWriter, r *http.Request, session account.Session, parts []string) {
	if r.Method != http.MethodPost || len(parts) != 4 || parts[3] != "quick-approve" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if !s.requireAdmin(w, session) {
		return
	}
	cat, ok := catalog.ParseCategory(parts[1])
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown category", nil)
		return
	}
	var body struct {
		Subject string `json:"subject"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(body.Subject) == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "subject is required", nil)
		return
	}
	balance, err := s.service.Engine.QuickApprove(r.Context(), sessionActor(session), s.service.subjectActor(body.Subject), cat, parts[2])
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subject": body.Subject, "balance": balance})
}

func (s *HTTPServer) handleBalance(w http.ResponseWriter, r *http.Request, session account.Session, parts []string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	username := session.Username
	if len(parts) == 2 {
		if !s.requireAdmin(w, session) {
			return
		}
		username = parts[1]
	} else if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	balance, err := s.service.Books.Balance(username)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"username": username, "balance": balance})
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request, session account.Session, parts []string) {
	if r.Method != http.MethodGet || len(parts) != 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	query := r.URL.Query()
	filter := history.Filter{Category: query.Get("category"), Limit: 100}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be a positive integer", nil)
			return
		}
		filter.Limit = limit
	}

	if session.IsAdmin() {
		filter.SubjectID = query.Get("subject")
		if filter.SubjectID == "" {
			// Fall back to the admin's saved child filter.
			saved, err := s.service.Accounts.ChildFilter()
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			filter.SubjectID = saved
		}
	} else {
		// Executors only ever see their own history.
		filter.SubjectID = session.Username
	}

	records, err := s.service.Archive.List(r.Context(), filter)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *HTTPServer) handleUsers(w http.ResponseWriter, r *http.Request, session account.Session, parts []string) {
	if !s.requireAdmin(w, session) {
		return
	}

	switch {
	case r.Method == http.MethodGet && len(parts) == 2 && parts[1] == "children":
		children, err := s.service.Accounts.Children()
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		out := make([]map[string]any, 0, len(children))
		for _, child := range children {
			balance, err := s.service.Books.Balance(child.Username)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			out = append(out, map[string]any{
				"username": child.Username,
				"nickname": child.Nickname,
				"balance":  balance,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"children": out})

	case r.Method == http.MethodPost && len(parts) == 1:
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
			Role     string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.Role == "" {
			body.Role = account.RoleExecutor
		}
		user, err := s.service.Accounts.Register(body.Username, body.Password, body.Role)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"username": user.Username,
			"nickname": user.Nickname,
			"role":     user.Role,
		})

	case r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "reset-password":
		var body struct {
			NewPassword string `json:"newPassword"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.Accounts.ResetPassword(parts[1], body.NewPassword); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSettings(w http.ResponseWriter, r *http.Request, session account.Session, parts []string) {
	if len(parts) != 2 || parts[1] != "child-filter" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if !s.requireAdmin(w, session) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		filter, err := s.service.Accounts.ChildFilter()
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"child": filter})

	case http.MethodPut:
		var body struct {
			Child string `json:"child"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.Accounts.SetChildFilter(body.Child); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"child": body.Child})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func sessionActor(session account.Session) engine.Actor {
	return engine.Actor{ID: session.Username, Name: session.Nickname}
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (account.Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return account.Session{}, false
	}
	session, err := s.service.Accounts.SessionFromToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return account.Session{}, false
	}
	return session, true
}

func (s *HTTPServer) requireAdmin(w http.ResponseWriter, session account.Session) bool {
	if !session.IsAdmin() {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return false
	}
	return true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *engine.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, account.ErrNotFound),
		errors.Is(err, localstore.ErrNotFound),
		errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, catalog.ErrInvalid), errors.Is(err, account.ErrWeakPassword):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, account.ErrExists):
		return http.StatusConflict, "USER_EXISTS", "Username already taken", nil
	case errors.Is(err, account.ErrBadCredentials), errors.Is(err, account.ErrRoleMismatch):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, channel.ErrUnavailable):
		return http.StatusServiceUnavailable, "CHANNEL_UNAVAILABLE", "Realtime store is not reachable", nil
	case errors.Is(err, history.ErrDisabled):
		return http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "History archive is not configured", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

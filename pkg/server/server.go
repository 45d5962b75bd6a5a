// Package server exposes the HTTP surface: login, the live WebSocket
// endpoint, work-order review routes, and audit reporting.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/SunnyYadav16/field-vision/pkg/audit"
	"github.com/SunnyYadav16/field-vision/pkg/auth"
	"github.com/SunnyYadav16/field-vision/pkg/live/bridge"
	"github.com/SunnyYadav16/field-vision/pkg/workorders"
)

type Server struct {
	logger      *slog.Logger
	directory   *auth.Directory
	tokens      *auth.TokenIssuer
	trail       *audit.Trail
	orders      *workorders.Store
	bridge      *bridge.Bridge
	evidenceDir string
	upgrader    websocket.Upgrader
}

func New(logger *slog.Logger, directory *auth.Directory, tokens *auth.TokenIssuer, trail *audit.Trail, orders *workorders.Store, b *bridge.Bridge, evidenceDir string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:      logger,
		directory:   directory,
		tokens:      tokens,
		trail:       trail,
		orders:      orders,
		bridge:      b,
		evidenceDir: evidenceDir,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 << 10,
			WriteBufferSize: 32 << 10,
			// Operator UI and API are same-origin in deployment; the token
			// check is the real gate.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("GET /api/me", s.withAuth(s.handleMe))
	mux.HandleFunc("GET /api/session/{id}/summary", s.withAuth(s.handleSessionSummary))
	mux.HandleFunc("GET /api/session/{id}/events", s.withAuth(s.handleSessionEvents))
	mux.HandleFunc("GET /api/audit/logs", s.withAuth(s.handleAuditLogs))
	mux.HandleFunc("GET /api/work-orders", s.withAuth(s.handleListWorkOrders))
	mux.HandleFunc("POST /api/work-orders/{id}/approve", s.withAuth(s.handleApprove))
	mux.HandleFunc("POST /api/work-orders/{id}/complete", s.withAuth(s.handleComplete))
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	if s.evidenceDir != "" {
		mux.Handle("GET /static/evidence/", http.StripPrefix("/static/evidence/", http.FileServer(http.Dir(s.evidenceDir))))
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// bearerToken pulls the JWT from the Authorization header, falling back to
// the token query parameter for WebSocket upgrades where headers are awkward
// from a browser.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (s *Server) authenticate(r *http.Request) (*auth.Claims, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, errors.New("missing token")
	}
	return s.tokens.Verify(token)
}

type authedHandler func(w http.ResponseWriter, r *http.Request, claims *auth.Claims)

func (s *Server) withAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}
		next(w, r, claims)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"user_id"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, ok := s.directory.Authenticate(req.UserID, req.Password)
	if !ok {
		s.logger.Warn("login rejected", "user_id", req.UserID)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := s.tokens.Issue(req.UserID, user)
	if err != nil {
		s.logger.Error("token issue failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user": map[string]any{
			"id":          req.UserID,
			"name":        user.Name,
			"role":        user.Role,
			"zone":        user.Zone,
			"permissions": user.Permissions,
		},
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          claims.UserID,
		"name":        claims.Name,
		"role":        claims.Role,
		"zone":        claims.Zone,
		"permissions": claims.Permissions,
	})
}

func (s *Server) handleSessionSummary(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	summary, err := s.trail.SessionSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	events, err := s.trail.SessionEvents(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleAuditLogs(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	sessions, err := s.trail.AllSessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load audit log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleListWorkOrders is role-scoped: reviewers see the full board,
// everyone else sees only their own requests.
func (s *Server) handleListWorkOrders(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	ctx := r.Context()
	if claims.HasPermission(auth.PermApproveWorkOrder) {
		pending, err := s.orders.Pending(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "could not load work orders")
			return
		}
		approved, err := s.orders.Approved(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "could not load work orders")
			return
		}
		completed, err := s.orders.Completed(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "could not load work orders")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"pending_approval": pending,
			"approved":         approved,
			"completed":        completed,
		})
		return
	}
	mine, err := s.orders.ByRequester(ctx, claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load work orders")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": mine})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	s.advanceOrder(w, r, claims, s.orders.Approve)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	s.advanceOrder(w, r, claims, s.orders.Complete)
}

func (s *Server) advanceOrder(w http.ResponseWriter, r *http.Request, claims *auth.Claims, move func(ctx context.Context, orderID string) (workorders.WorkOrder, error)) {
	if !claims.HasPermission(auth.PermApproveWorkOrder) {
		writeError(w, http.StatusForbidden, "approve_work_order permission required")
		return
	}
	orderID := r.PathValue("id")
	order, err := move(r.Context(), orderID)
	if errors.Is(err, workorders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found in expected stage")
		return
	}
	if err != nil {
		s.logger.Error("work order update failed", "order_id", orderID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not update order")
		return
	}
	s.logger.Info("work order advanced", "order_id", orderID, "status", order.Status, "by", claims.UserID)
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := s.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or missing token")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.bridge.HandleConnection(conn, claims)
}

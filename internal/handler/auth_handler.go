// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/fleetwatch/internal/auth"
	"github.com/hitoshi/fleetwatch/internal/model"
)

// AuthGatewayInterface は認証ハンドラーが必要とするゲートウェイ操作。
type AuthGatewayInterface interface {
	Login(ctx context.Context, username, password string, role model.Role) (*model.Session, error)
	Logout(ctx context.Context) error
	Current() *model.Session
	State() auth.State
}

// AuthHandler はセッションライフサイクルのHTTPハンドラー。
type AuthHandler struct {
	gateway AuthGatewayInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(gateway AuthGatewayInterface) *AuthHandler {
	return &AuthHandler{gateway: gateway}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type sessionResponse struct {
	Role      string `json:"role"`
	UserID    string `json:"user_id"`
	VehicleID string `json:"vehicle_id,omitempty"`
	State     string `json:"state"`
}

// Login はオペレーターログインを処理する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	role, err := model.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	session, err := h.gateway.Login(r.Context(), req.Username, req.Password, role)
	if err != nil {
		var loginErr *auth.LoginError
		if errors.As(err, &loginErr) {
			writeError(w, http.StatusUnauthorized, loginErr.Message)
			return
		}
		slog.Error("login request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, model.UserMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Role:      string(session.Role),
		UserID:    session.SubjectID,
		VehicleID: session.OwnedVehicleID,
		State:     string(auth.StateAuthenticated),
	})
}

// Logout はセッションを破棄する。冪等。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.gateway.Logout(r.Context()); err != nil {
		slog.Error("logout failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のセッション情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session := h.gateway.Current()
	if session == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Role:      string(session.Role),
		UserID:    session.SubjectID,
		VehicleID: session.OwnedVehicleID,
		State:     string(h.gateway.State()),
	})
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError はエラーレスポンスを書き込む。
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/fleetwatch/internal/auth"
	"github.com/hitoshi/fleetwatch/internal/model"
)

type mockGateway struct {
	loginFunc  func(ctx context.Context, username, password string, role model.Role) (*model.Session, error)
	logoutFunc func(ctx context.Context) error
	current    *model.Session
	state      auth.State
}

func (m *mockGateway) Login(ctx context.Context, username, password string, role model.Role) (*model.Session, error) {
	return m.loginFunc(ctx, username, password, role)
}

func (m *mockGateway) Logout(ctx context.Context) error {
	if m.logoutFunc != nil {
		return m.logoutFunc(ctx)
	}
	m.current = nil
	return nil
}

func (m *mockGateway) Current() *model.Session {
	return m.current
}

func (m *mockGateway) State() auth.State {
	if m.state == "" {
		return auth.StateUnauthenticated
	}
	return m.state
}

func TestAuthHandler_Login_Success(t *testing.T) {
	gw := &mockGateway{
		loginFunc: func(ctx context.Context, username, password string, role model.Role) (*model.Session, error) {
			if username != "owner_v001" || role != model.RoleOwner {
				t.Errorf("引数が不正: %q %q", username, role)
			}
			return &model.Session{Token: "tok-123", Role: model.RoleOwner, SubjectID: "owner_v001", OwnedVehicleID: "V001"}, nil
		},
	}
	h := NewAuthHandler(gw)

	body := `{"username":"owner_v001","password":"pass123","role":"user"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp sessionResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Role != "user" || resp.VehicleID != "V001" {
		t.Errorf("レスポンスが不正: %+v", resp)
	}
}

func TestAuthHandler_Login_RoleAlias(t *testing.T) {
	gw := &mockGateway{
		loginFunc: func(ctx context.Context, username, password string, role model.Role) (*model.Session, error) {
			if role != model.RoleOwner {
				t.Errorf("role = %q, want user", role)
			}
			return &model.Session{Token: "t", Role: model.RoleOwner, SubjectID: "owner_v001", OwnedVehicleID: "V001"}, nil
		},
	}
	h := NewAuthHandler(gw)

	// "owner" エイリアスはワイヤ値 "user" に正規化される
	body := `{"username":"owner_v001","password":"pass123","role":"owner"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAuthHandler_Login_RejectedIs401(t *testing.T) {
	gw := &mockGateway{
		loginFunc: func(ctx context.Context, username, password string, role model.Role) (*model.Session, error) {
			return nil, &auth.LoginError{Message: "Invalid credentials"}
		},
	}
	h := NewAuthHandler(gw)

	body := `{"username":"owner_v001","password":"wrong","role":"user"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["error"] != "Invalid credentials" {
		t.Errorf("error = %q", resp["error"])
	}
}

func TestAuthHandler_Login_AgentDownIs502(t *testing.T) {
	gw := &mockGateway{
		loginFunc: func(ctx context.Context, username, password string, role model.Role) (*model.Session, error) {
			return nil, &model.AgentError{Agent: "master", Class: model.ErrClassTransient, Message: "接続できませんでした"}
		},
	}
	h := NewAuthHandler(gw)

	body := `{"username":"owner_v001","password":"pass123","role":"user"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestAuthHandler_Login_UnknownRoleIs400(t *testing.T) {
	h := NewAuthHandler(&mockGateway{})

	body := `{"username":"x","password":"y","role":"admin"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	gw := &mockGateway{
		current: &model.Session{Token: "tok-123", Role: model.RoleOwner, SubjectID: "owner_v001", OwnedVehicleID: "V001"},
	}
	h := NewAuthHandler(gw)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestAuthHandler_Me_Authenticated(t *testing.T) {
	gw := &mockGateway{
		current: &model.Session{Token: "tok-123", Role: model.RoleServiceCenter, SubjectID: "sc_main"},
		state:   auth.StateAuthenticated,
	}
	h := NewAuthHandler(gw)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp sessionResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Role != "service_center" || resp.State != "authenticated" {
		t.Errorf("レスポンスが不正: %+v", resp)
	}
}

func TestAuthHandler_Me_Unauthenticated(t *testing.T) {
	h := NewAuthHandler(&mockGateway{})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/bulles-portal/internal/audit"
	"github.com/nerrad567/bulles-portal/internal/auth"
)

// ─── Login Tests ───────────────────────────────────────────────────

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	res := env.login(t, "CE1-001", "fifame")

	if res.Token == "" || res.RefreshToken == "" {
		t.Fatal("expected both tokens to be non-empty")
	}
	if res.ExpiresIn != 3600 {
		t.Errorf("expiresIn = %d, want 3600", res.ExpiresIn)
	}
	if res.User == nil || res.User.ID != "CE1-001" || res.User.Role != auth.RoleStudent {
		t.Fatalf("user = %+v, want CE1-001 student", res.User)
	}
	if res.User.FullName != "AGBLO AGONDJIHOSSOU Fifamè" || res.User.Class != "CE1" {
		t.Errorf("user = %+v", res.User)
	}

	claims, err := env.tokens.Verify(res.Token, auth.KeyAccess)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Subject != "CE1-001" || claims.Username != "CE1-001" || claims.Role != auth.RoleStudent {
		t.Errorf("claims = %+v", claims)
	}
	if env.srv.sessions.Active() != 1 {
		t.Errorf("active sessions = %d, want 1", env.srv.sessions.Active())
	}

	entries := env.waitForAudit(t, audit.ActionLoginSuccess)
	if entries[0].UserID != "CE1-001" || entries[0].SessionID != claims.SessionID {
		t.Errorf("audit entry = %+v", entries[0])
	}
}

func TestLogin_NeverLeaksHash(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	w := env.do(t, http.MethodPost, "/api/login", `{"username":"CE1-002","password":"emmanuel"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var raw map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	user, _ := raw["user"].(map[string]any)
	for _, key := range []string{"passwordHash", "password_hash", "PasswordHash", "password"} {
		if _, ok := user[key]; ok {
			t.Errorf("user payload contains %q", key)
		}
	}
	for _, key := range []string{"id", "username", "fullName", "class", "role"} {
		if _, ok := user[key]; !ok {
			t.Errorf("user payload missing %q", key)
		}
	}
}

func TestLogin_Admin(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	res := env.login(t, "admin", testAdminPassword)
	if res.User.Role != auth.RoleAdmin {
		t.Errorf("role = %q, want admin", res.User.Role)
	}
}

func TestLogin_MissingCredentials(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"empty object", `{}`},
		{"no password", `{"username":"CE1-001"}`},
		{"empty username", `{"username":"","password":"fifame"}`},
		{"empty password", `{"username":"CE1-001","password":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/login", tt.body, "")
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			e := decodeError(t, w)
			if e.Code != ErrCodeMissingCredentials || e.Message != "Identifiants manquants" {
				t.Errorf("error = %+v", e)
			}
		})
	}
}

func TestLogin_InvalidCredentialsIndistinguishable(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	tests := []struct {
		name string
		body string
	}{
		{"wrong password", `{"username":"CE1-001","password":"wrong"}`},
		{"unknown user", `{"username":"CE1-999","password":"fifame"}`},
		{"case differs", `{"username":"ce1-001","password":"fifame"}`},
		{"padded username", `{"username":"  CE1-001 ","password":"fifame"}`},
		{"blank username", `{"username":"   ","password":"fifame"}`},
		{"blank password", `{"username":"CE1-001","password":"  "}`},
		{"invalid username", `{"username":"../etc","password":"fifame"}`},
	}

	var first string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/login", tt.body, "")
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			if first == "" {
				first = w.Body.String()
			}
			if w.Body.String() != first {
				t.Errorf("body = %s, want byte-identical %s", w.Body.String(), first)
			}
		})
	}

	e := Error{}
	if err := json.Unmarshal([]byte(first), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Code != ErrCodeInvalidCredentials || e.Message != "Identifiants incorrects" {
		t.Errorf("error = %+v", e)
	}

	env.waitForAudit(t, audit.ActionLoginFailed)
	if env.srv.sessions.Active() != 0 {
		t.Errorf("active sessions = %d after failures, want 0", env.srv.sessions.Active())
	}
}

// ─── Refresh Tests ─────────────────────────────────────────────────

func TestRefresh_Success(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	res := env.login(t, "CE1-001", "fifame")
	first, err := env.tokens.Verify(res.Token, auth.KeyAccess)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	env.clock.Advance(30 * time.Minute)

	var tokens []string
	for range 2 {
		w := env.do(t, http.MethodPost, "/api/refresh", `{"refreshToken":"`+res.RefreshToken+`"}`, "")
		if w.Code != http.StatusOK {
			t.Fatalf("refresh status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
		}
		var out refreshResponse
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		tokens = append(tokens, out.Token)
	}

	if tokens[0] == tokens[1] {
		t.Error("two refreshes returned the same access token")
	}
	for _, tok := range tokens {
		claims, err := env.tokens.Verify(tok, auth.KeyAccess)
		if err != nil {
			t.Fatalf("Verify(refreshed) error = %v", err)
		}
		if claims.SessionID != first.SessionID {
			t.Errorf("sid = %q, want %q", claims.SessionID, first.SessionID)
		}
		if !claims.Expiry().After(first.Expiry()) {
			t.Errorf("refreshed exp %v not after original %v", claims.Expiry(), first.Expiry())
		}
	}

	env.waitForAudit(t, audit.ActionTokenRefreshed)
}

func TestRefresh_Failures(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	res := env.login(t, "CE1-001", "fifame")

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
		wantMsg  string
	}{
		{"missing", `{}`, http.StatusBadRequest, ErrCodeMissingToken, "Refresh token manquant"},
		{"empty", `{"refreshToken":""}`, http.StatusBadRequest, ErrCodeMissingToken, "Refresh token manquant"},
		{"garbage", `{"refreshToken":"not-a-jwt"}`, http.StatusForbidden, ErrCodeInvalidToken, "Refresh token invalide"},
		{"access token instead", `{"refreshToken":"` + res.Token + `"}`, http.StatusForbidden, ErrCodeInvalidToken, "Refresh token invalide"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/refresh", tt.body, "")
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if e := decodeError(t, w); e.Code != tt.wantErr || e.Message != tt.wantMsg {
				t.Errorf("error = %+v, want %s / %s", e, tt.wantErr, tt.wantMsg)
			}
		})
	}

	env.waitForAudit(t, audit.ActionRefreshFailed)
}

func TestRefresh_Expired(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	res := env.login(t, "CE1-001", "fifame")

	env.clock.Advance(7 * 24 * time.Hour)

	w := env.do(t, http.MethodPost, "/api/refresh", `{"refreshToken":"`+res.RefreshToken+`"}`, "")
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

// ─── Gate Tests ────────────────────────────────────────────────────

func TestGate(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	res := env.login(t, "CE1-001", "fifame")

	refreshAsBearer := res.RefreshToken
	tampered := res.Token[:strings.LastIndex(res.Token, ".")+1] + "c2lnbmF0dXJl"

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantErr  string
	}{
		{"no header", "", http.StatusUnauthorized, ErrCodeMissingToken},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, ErrCodeMissingToken},
		{"empty bearer", "Bearer ", http.StatusUnauthorized, ErrCodeMissingToken},
		{"garbage", "Bearer abc.def.ghi", http.StatusForbidden, ErrCodeInvalidToken},
		{"tampered", "Bearer " + tampered, http.StatusForbidden, ErrCodeInvalidToken},
		{"refresh token", "Bearer " + refreshAsBearer, http.StatusForbidden, ErrCodeInvalidToken},
		{"valid", "Bearer " + res.Token, http.StatusOK, ""},
		{"lowercase scheme", "bearer " + res.Token, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			env.handler.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d; body: %s", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantErr != "" {
				if e := decodeError(t, w); e.Code != tt.wantErr {
					t.Errorf("code = %q, want %q", e.Code, tt.wantErr)
				}
			}
		})
	}
}

func TestGate_ExpiryBoundary(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	res := env.login(t, "CE1-001", "fifame")

	env.clock.Advance(time.Hour - time.Second)
	if w := env.do(t, http.MethodGet, "/api/profile", "", res.Token); w.Code != http.StatusOK {
		t.Fatalf("1s before exp: status = %d, want %d", w.Code, http.StatusOK)
	}

	env.clock.Advance(time.Second)
	w := env.do(t, http.MethodGet, "/api/profile", "", res.Token)
	if w.Code != http.StatusForbidden {
		t.Fatalf("at exp: status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if e := decodeError(t, w); e.Message != "Token invalide ou expiré" {
		t.Errorf("message = %q", e.Message)
	}
}

// ─── Logout Tests ──────────────────────────────────────────────────

func TestLogout_Stateless(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	res := env.login(t, "CE1-001", "fifame")

	w := env.do(t, http.MethodPost, "/api/logout", "", res.Token)
	if w.Code != http.StatusOK {
		t.Fatalf("logout status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["success"] != true || body["message"] != "Déconnexion réussie" {
		t.Errorf("body = %v", body)
	}
	if env.srv.sessions.Active() != 0 {
		t.Errorf("active sessions = %d after logout, want 0", env.srv.sessions.Active())
	}
	env.waitForAudit(t, audit.ActionLogout)

	// Without a denylist the token stays valid until it expires.
	if w := env.do(t, http.MethodGet, "/api/profile", "", res.Token); w.Code != http.StatusOK {
		t.Errorf("profile after stateless logout = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestLogout_WithRevocation(t *testing.T) {
	env := newTestEnv(t, testOptions{revocation: true})
	res := env.login(t, "CE1-001", "fifame")
	other := env.login(t, "CE1-001", "fifame")

	if w := env.do(t, http.MethodPost, "/api/logout", "", res.Token); w.Code != http.StatusOK {
		t.Fatalf("logout status = %d, want %d", w.Code, http.StatusOK)
	}

	if w := env.do(t, http.MethodGet, "/api/profile", "", res.Token); w.Code != http.StatusForbidden {
		t.Errorf("profile after logout = %d, want %d", w.Code, http.StatusForbidden)
	}
	w := env.do(t, http.MethodPost, "/api/refresh", `{"refreshToken":"`+res.RefreshToken+`"}`, "")
	if w.Code != http.StatusForbidden {
		t.Errorf("refresh after logout = %d, want %d", w.Code, http.StatusForbidden)
	}

	// Other sessions of the same user are unaffected.
	if w := env.do(t, http.MethodGet, "/api/profile", "", other.Token); w.Code != http.StatusOK {
		t.Errorf("other session profile = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestLogout_RequiresToken(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	if w := env.do(t, http.MethodPost, "/api/logout", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// ─── WebSocket Ticket Tests ────────────────────────────────────────

func TestWSTicket_SingleUse(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	res := env.login(t, "CE1-001", "fifame")

	w := env.do(t, http.MethodPost, "/api/ws-ticket", "", res.Token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Ticket    string `json:"ticket"`
		ExpiresIn int    `json:"expiresIn"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Ticket) != 2*ticketBytes || resp.ExpiresIn != 60 {
		t.Fatalf("response = %+v", resp)
	}

	entry, ok := env.srv.tickets.consume(resp.Ticket)
	if !ok {
		t.Fatal("ticket should be valid on first use")
	}
	if entry.userID != "CE1-001" || entry.sessionID == "" {
		t.Errorf("entry = %+v", entry)
	}
	if _, ok := env.srv.tickets.consume(resp.Ticket); ok {
		t.Error("ticket should not be valid on second use")
	}
}

func TestWSTicket_Expiry(t *testing.T) {
	clock := newTestClock()
	store := newTicketStore(clock.Now)

	expired := store.issue("CE1-001", "sid-1")
	live := store.issue("CE1-001", "sid-2")

	clock.Advance(ticketTTL)
	// Re-issue live so it is younger than the TTL.
	live = store.issue("CE1-001", "sid-2")

	if removed := store.cleanExpired(); removed != 2 {
		t.Errorf("cleanExpired() = %d, want 2", removed)
	}
	if _, ok := store.consume(expired); ok {
		t.Error("expired ticket should not be valid")
	}
	if _, ok := store.consume(live); !ok {
		t.Error("fresh ticket should be valid")
	}
}

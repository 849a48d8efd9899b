package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/vandalsquat/backend/internal/models"
	"github.com/vandalsquat/backend/internal/services"
)

func totpCode(t *testing.T, secret string) string {
	t.Helper()

	code, err := totp.GenerateCodeCustom(secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("failed generating TOTP code: %v", err)
	}
	return code
}

func TestAuthHandler_Register(t *testing.T) {
	env := setupTestEnv(t)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
		"username": "Alice",
		"password": "password123",
	}, nil)
	assertStatus(t, resp, http.StatusCreated)

	body := decodeJSONMap(t, resp)
	data := body["data"].(map[string]any)
	user := data["user"].(map[string]any)
	if user["username"].(string) != "alice" {
		t.Fatalf("expected username to be stored lowercase, got %q", user["username"])
	}
}

func TestAuthHandler_RegisterInvalidUsername(t *testing.T) {
	env := setupTestEnv(t)

	for _, username := range []string{"ab", "has spaces", "way_too_long_username_over_twenty", "bad!chars"} {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
			"username": username,
			"password": "password123",
		}, nil)
		assertStatus(t, resp, http.StatusBadRequest)
	}
}

func TestAuthHandler_RegisterDuplicateUsername(t *testing.T) {
	env := setupTestEnv(t)
	createTestUser(t, env.db, "alice", "password123", models.UserRoleUser)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
		"username": "ALICE",
		"password": "password123",
	}, nil)
	assertStatus(t, resp, http.StatusConflict)
}

func TestAuthHandler_LoginWithoutSecondFactor(t *testing.T) {
	env := setupTestEnv(t)
	createTestUser(t, env.db, "alice", "password123", models.UserRoleUser)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"username": "alice",
		"password": "password123",
	}, nil)
	assertStatus(t, resp, http.StatusOK)

	body := decodeJSONMap(t, resp)
	data := body["data"].(map[string]any)
	if _, ok := data["token"].(string); !ok {
		t.Fatal("expected session token for a user without a second factor")
	}
	if _, present := data["challengeToken"]; present {
		t.Fatal("expected no challenge token")
	}
}

func TestAuthHandler_LoginWrongPassword(t *testing.T) {
	env := setupTestEnv(t)
	createTestUser(t, env.db, "alice", "password123", models.UserRoleUser)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"username": "alice",
		"password": "wrong",
	}, nil)
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestAuthHandler_SecondFactorLoginFlow(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env.db, "alice", "password123", models.UserRoleUser)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/two-factor/enable", map[string]any{}, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)

	var stored models.User
	if err := env.db.First(&stored, "id = ?", user.ID).Error; err != nil {
		t.Fatalf("failed reloading user: %v", err)
	}

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"username": "alice",
		"password": "password123",
	}, nil)
	assertStatus(t, resp, http.StatusOK)

	body := decodeJSONMap(t, resp)
	data := body["data"].(map[string]any)
	if required, _ := data["secondFactorRequired"].(bool); !required {
		t.Fatal("expected secondFactorRequired to be true")
	}
	challenge := data["challengeToken"].(string)
	if challenge == "" {
		t.Fatal("expected a challenge token")
	}

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login/second-factor", map[string]any{
		"challengeToken": challenge,
		"code":           totpCode(t, stored.OTPSecret),
		"rememberDevice": true,
	}, nil)
	assertStatus(t, resp, http.StatusOK)

	body = decodeJSONMap(t, resp)
	data = body["data"].(map[string]any)
	if _, ok := data["token"].(string); !ok {
		t.Fatal("expected session token after second factor")
	}
	deviceToken, ok := data["deviceToken"].(string)
	if !ok || deviceToken == "" {
		t.Fatal("expected device token when rememberDevice is set")
	}

	// The remembered device bypasses the second factor on the next login.
	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"username":    "alice",
		"password":    "password123",
		"deviceToken": deviceToken,
	}, nil)
	assertStatus(t, resp, http.StatusOK)

	body = decodeJSONMap(t, resp)
	data = body["data"].(map[string]any)
	if _, ok := data["token"].(string); !ok {
		t.Fatal("expected direct session token with trusted device")
	}
	if _, present := data["challengeToken"]; present {
		t.Fatal("expected no challenge token with trusted device")
	}
}

func TestAuthHandler_SecondFactorInvalidCode(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "alice", "password123", models.UserRoleUser)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/two-factor/enable", map[string]any{}, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"username": "alice",
		"password": "password123",
	}, nil)
	body := decodeJSONMap(t, resp)
	challenge := body["data"].(map[string]any)["challengeToken"].(string)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login/second-factor", map[string]any{
		"challengeToken": challenge,
		"code":           "000000",
	}, nil)
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestAuthHandler_SecondFactorExpiredChallenge(t *testing.T) {
	env := setupTestEnv(t)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login/second-factor", map[string]any{
		"challengeToken": "garbage",
		"code":           "000000",
	}, nil)
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestAuthHandler_LogoutAndMe(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "alice", "password123", models.UserRoleUser)

	resp := performRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/logout", map[string]any{}, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)

	resp = performRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, nil)
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestAuthHandler_ChangePassword(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "alice", "password123", models.UserRoleUser)

	resp := performJSONRequest(t, env.app, http.MethodPut, "/api/auth/password", map[string]any{
		"currentPassword": "wrong",
		"newPassword":     "newpassword123",
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusBadRequest)

	resp = performJSONRequest(t, env.app, http.MethodPut, "/api/auth/password", map[string]any{
		"currentPassword": "password123",
		"newPassword":     "newpassword123",
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"username": "alice",
		"password": "newpassword123",
	}, nil)
	assertStatus(t, resp, http.StatusOK)
}

func TestAuthHandler_DeleteAccountCascadesDevices(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env.db, "alice", "password123", models.UserRoleUser)

	if _, err := env.devices.Issue(user, services.ClientMeta{UserAgent: "test-agent"}); err != nil {
		t.Fatalf("failed issuing device: %v", err)
	}

	resp := performJSONRequest(t, env.app, http.MethodDelete, "/api/auth/account", map[string]any{
		"password": "password123",
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)

	var users int64
	env.db.Model(&models.User{}).Where("id = ?", user.ID).Count(&users)
	if users != 0 {
		t.Fatal("expected user to be deleted")
	}

	var devices int64
	env.db.Model(&models.TrustedDevice{}).Where("user_id = ?", user.ID).Count(&devices)
	if devices != 0 {
		t.Fatal("expected trusted devices to be deleted with the account")
	}
}

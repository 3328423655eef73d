package auth

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgAuth "github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/auth/session"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/security"
)

var testJWTConfig = config.JWTConfig{
	Secret:            "secret",
	Issuer:            "bazaar",
	ExpirationMinutes: 30,
}

func TestServiceLoginIssuesRoleClaim(t *testing.T) {
	password := "vendor-secret-1"
	user := testUser(t, enums.RoleVendor, password)

	svc, sessions := buildTestService(t, user)

	resp, err := svc.Login(context.Background(), LoginRequest{Email: user.Email, Password: password})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	claims, err := pkgAuth.ParseAccessToken(testJWTConfig, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.Role != enums.RoleVendor {
		t.Fatalf("expected vendor role claim, got %s", claims.Role)
	}
	if claims.UserID != user.ID {
		t.Fatalf("expected user id %s, got %s", user.ID, claims.UserID)
	}
	if resp.RefreshToken == "" {
		t.Fatalf("expected refresh token to be set")
	}
	if sessions.generated[claims.ID] != user.ID {
		t.Fatalf("expected session stored under the token jti")
	}
	if user.LastLoginAt == nil {
		t.Fatalf("expected last login to be recorded")
	}
}

func TestServiceLoginRejectsWrongPassword(t *testing.T) {
	user := testUser(t, enums.RoleBuyer, "correct-horse")
	svc, _ := buildTestService(t, user)

	_, err := svc.Login(context.Background(), LoginRequest{Email: user.Email, Password: "wrong-horse"})
	requireUnauthorized(t, err)
}

func TestServiceLoginRejectsInactiveUser(t *testing.T) {
	password := "correct-horse"
	user := testUser(t, enums.RoleBuyer, password)
	user.IsActive = false
	svc, _ := buildTestService(t, user)

	_, err := svc.Login(context.Background(), LoginRequest{Email: user.Email, Password: password})
	requireUnauthorized(t, err)
}

func TestServiceLoginUnknownEmail(t *testing.T) {
	svc, _ := buildTestService(t, nil)

	_, err := svc.Login(context.Background(), LoginRequest{Email: "ghost@example.com", Password: "whatever-1"})
	requireUnauthorized(t, err)
}

func TestServiceRefreshRotatesSession(t *testing.T) {
	user := testUser(t, enums.RoleBuyer, "correct-horse")
	svc, sessions := buildTestService(t, user)

	expired, err := pkgAuth.MintAccessToken(testJWTConfig, time.Now().Add(-2*time.Hour), pkgAuth.AccessTokenPayload{
		UserID: user.ID,
		Role:   user.Role,
		JTI:    "old-access",
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	sessions.valid["old-access"] = sessionEntry{userID: user.ID, token: "refresh-1"}

	resp, err := svc.Refresh(context.Background(), RefreshRequest{AccessToken: expired, RefreshToken: "refresh-1"})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	claims, err := pkgAuth.ParseAccessToken(testJWTConfig, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse refreshed token: %v", err)
	}
	if claims.ID == "old-access" {
		t.Fatalf("expected a new access id")
	}
	if _, ok := sessions.valid["old-access"]; ok {
		t.Fatalf("expected old session to be revoked")
	}
}

func TestServiceRefreshRejectsBadToken(t *testing.T) {
	user := testUser(t, enums.RoleBuyer, "correct-horse")
	svc, sessions := buildTestService(t, user)

	access, err := pkgAuth.MintAccessToken(testJWTConfig, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: user.ID,
		Role:   user.Role,
		JTI:    "old-access",
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	sessions.valid["old-access"] = sessionEntry{userID: user.ID, token: "refresh-1"}

	_, err = svc.Refresh(context.Background(), RefreshRequest{AccessToken: access, RefreshToken: "guess"})
	requireUnauthorized(t, err)
}

func TestServiceRefreshRejectsDeactivatedUser(t *testing.T) {
	user := testUser(t, enums.RoleBuyer, "correct-horse")
	user.IsActive = false
	svc, sessions := buildTestService(t, user)

	access, err := pkgAuth.MintAccessToken(testJWTConfig, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: user.ID,
		Role:   user.Role,
		JTI:    "old-access",
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	sessions.valid["old-access"] = sessionEntry{userID: user.ID, token: "refresh-1"}

	_, err = svc.Refresh(context.Background(), RefreshRequest{AccessToken: access, RefreshToken: "refresh-1"})
	requireUnauthorized(t, err)
	if len(sessions.valid) != 0 {
		t.Fatalf("expected rotated session to be revoked, got %d", len(sessions.valid))
	}
}

func TestServiceLogoutRevokes(t *testing.T) {
	svc, sessions := buildTestService(t, nil)
	sessions.valid["abc"] = sessionEntry{userID: uuid.New(), token: "t"}

	if err := svc.Logout(context.Background(), "abc"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := sessions.valid["abc"]; ok {
		t.Fatalf("expected session removed")
	}
	if err := svc.Logout(context.Background(), " "); err == nil {
		t.Fatalf("expected blank access id to fail")
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatal("expected missing repository to fail")
	}
}

func buildTestService(t *testing.T, user *models.User) (Service, *stubSessionManager) {
	t.Helper()
	sessions := &stubSessionManager{
		generated: map[string]uuid.UUID{},
		valid:     map[string]sessionEntry{},
	}
	svc, err := NewService(ServiceParams{
		UserRepo:       &stubUserRepo{user: user},
		SessionManager: sessions,
		JWTConfig:      testJWTConfig,
		Logger:         logger.New(logger.Options{ServiceName: "auth-test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc, sessions
}

func testUser(t *testing.T, role enums.Role, password string) *models.User {
	t.Helper()
	hash, err := security.HashPassword(password, config.PasswordConfig{})
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return &models.User{
		ID:           uuid.New(),
		Email:        "user@example.com",
		Username:     "someone",
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
}

func requireUnauthorized(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected unauthorized error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

type stubUserRepo struct {
	user *models.User
}

func (s *stubUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, gorm.ErrRecordNotFound
	}
	return s.user, nil
}

func (s *stubUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return s.user, nil
}

func (s *stubUserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	if s.user != nil && s.user.ID == id {
		s.user.LastLoginAt = &at
	}
	return nil
}

func (s *stubUserRepo) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	if s.user != nil && s.user.ID == id {
		s.user.PasswordHash = hash
	}
	return nil
}

type sessionEntry struct {
	userID uuid.UUID
	token  string
}

type stubSessionManager struct {
	generated map[string]uuid.UUID
	valid     map[string]sessionEntry
}

func (s *stubSessionManager) Generate(ctx context.Context, userID uuid.UUID, accessID string) (string, error) {
	s.generated[accessID] = userID
	s.valid[accessID] = sessionEntry{userID: userID, token: "refresh-" + accessID}
	return "refresh-" + accessID, nil
}

func (s *stubSessionManager) Rotate(ctx context.Context, oldAccessID, provided string) (*session.Rotation, error) {
	entry, ok := s.valid[oldAccessID]
	if !ok || entry.token != provided {
		return nil, session.ErrInvalidRefreshToken
	}
	delete(s.valid, oldAccessID)
	next := session.NewAccessID()
	token, _ := s.Generate(ctx, entry.userID, next)
	return &session.Rotation{UserID: entry.userID, AccessID: next, RefreshToken: token}, nil
}

func (s *stubSessionManager) Revoke(ctx context.Context, accessID string) error {
	delete(s.valid, accessID)
	return nil
}

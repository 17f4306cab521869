package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/clinic-workflow-api/internal/models"
	appErrors "github.com/noah-isme/clinic-workflow-api/pkg/errors"
)

type mockAuthRepo struct {
	user             *models.User
	findByEmailErr   error
	lastLoginUpdated bool
	lastLoginErr     error
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	if m.user == nil {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id int64, ts time.Time) error {
	m.lastLoginUpdated = true
	return m.lastLoginErr
}

func newAuthFixture(t *testing.T, active bool) (*AuthService, *mockAuthRepo) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("Password123!"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &mockAuthRepo{user: &models.User{
		ID:           7,
		Email:        "lab@clinic.test",
		PasswordHash: string(hash),
		FullName:     "Lab Technician",
		Role:         models.RoleStaff,
		Active:       active,
	}}
	svc := NewAuthService(repo, NewValidator(), nil, AuthConfig{
		AccessTokenSecret: "secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "clinic-test",
	})
	return svc, repo
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	svc, repo := newAuthFixture(t, true)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: " lab@clinic.test ", Password: "Password123!"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, models.RoleStaff, resp.User.Role)
	assert.True(t, repo.lastLoginUpdated)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "clinic-test", claims.Issuer)
	assert.Equal(t, &models.Actor{ID: 7, Role: models.RoleStaff}, claims.Actor())
}

func TestAuthServiceLoginFailures(t *testing.T) {
	svc, _ := newAuthFixture(t, true)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "lab@clinic.test", Password: "wrong-password"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email", Password: "Password123!"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	missing, missingRepo := newAuthFixture(t, true)
	missingRepo.user = nil
	_, err = missing.Login(context.Background(), models.LoginRequest{Email: "ghost@clinic.test", Password: "Password123!"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))

	broken, repo := newAuthFixture(t, true)
	repo.findByEmailErr = errBoom
	_, err = broken.Login(context.Background(), models.LoginRequest{Email: "lab@clinic.test", Password: "Password123!"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
}

func TestAuthServiceLoginInactive(t *testing.T) {
	svc, repo := newAuthFixture(t, false)
	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "lab@clinic.test", Password: "Password123!"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInactiveAccount))
	assert.False(t, repo.lastLoginUpdated)
}

func TestAuthServiceLastLoginFailureIsNotFatal(t *testing.T) {
	svc, repo := newAuthFixture(t, true)
	repo.lastLoginErr = errBoom
	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "lab@clinic.test", Password: "Password123!"})
	require.NoError(t, err)
}

func TestAuthServiceValidateTokenRejects(t *testing.T) {
	svc, _ := newAuthFixture(t, true)
	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "lab@clinic.test", Password: "Password123!"})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.ValidateToken(resp.AccessToken)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized), "expired")
	svc.now = time.Now

	_, err = svc.ValidateToken(resp.AccessToken + "tampered")
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{
		UserID: 7,
		Role:   "superuser",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := forged.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized), "unknown role")
}

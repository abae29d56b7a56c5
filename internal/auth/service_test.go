package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/urbanflow/internal/model"
	"github.com/terminal-bench/urbanflow/internal/store/storetest"
)

func seedUser(t *testing.T, mem *storetest.Memory, email, password string, role model.Role) model.User {
	t.Helper()

	hash, err := HashPassword(password)
	require.NoError(t, err)

	u := model.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Name:         "Test Operator",
		Role:         role,
		CreatedAt:    time.Now(),
	}
	mem.AddUser(u)
	return u
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("valid credentials yields verifiable token", func(t *testing.T) {
		mem := storetest.NewMemory()
		seeded := seedUser(t, mem, "ops@city.example", "green-light", model.RoleOperator)
		svc := NewService(mem, "test-secret", time.Hour)

		token, user, err := svc.Login(ctx, "ops@city.example", "green-light")
		require.NoError(t, err)
		assert.Equal(t, seeded.ID, user.ID)

		claims, err := svc.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, seeded.ID, claims.UserID)
		assert.Equal(t, model.RoleOperator, claims.Role)
	})

	t.Run("wrong password and unknown email fail identically", func(t *testing.T) {
		mem := storetest.NewMemory()
		seedUser(t, mem, "ops@city.example", "green-light", model.RoleOperator)
		svc := NewService(mem, "test-secret", time.Hour)

		_, _, badPass := svc.Login(ctx, "ops@city.example", "red-light")
		_, _, badEmail := svc.Login(ctx, "nobody@city.example", "green-light")

		assert.ErrorIs(t, badPass, ErrInvalidCredentials)
		assert.ErrorIs(t, badEmail, ErrInvalidCredentials)
	})

	t.Run("zone scoping survives the round trip", func(t *testing.T) {
		mem := storetest.NewMemory()
		zone := uuid.New()
		u := seedUser(t, mem, "south@city.example", "pw", model.RoleViewer)
		u.ZoneID = &zone
		mem.AddUser(u)
		svc := NewService(mem, "test-secret", time.Hour)

		token, _, err := svc.Login(ctx, "south@city.example", "pw")
		require.NoError(t, err)

		claims, err := svc.Verify(token)
		require.NoError(t, err)
		require.NotNil(t, claims.ZoneID)
		assert.Equal(t, zone, *claims.ZoneID)
	})
}

func TestVerify(t *testing.T) {
	mem := storetest.NewMemory()
	seedUser(t, mem, "ops@city.example", "pw", model.RoleOperator)

	t.Run("rejects token signed with another secret", func(t *testing.T) {
		issuer := NewService(mem, "other-secret", time.Hour)
		verifier := NewService(mem, "test-secret", time.Hour)

		token, _, err := issuer.Login(context.Background(), "ops@city.example", "pw")
		require.NoError(t, err)

		_, err = verifier.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects expired token", func(t *testing.T) {
		svc := NewService(mem, "test-secret", time.Hour)
		svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

		token, _, err := svc.Login(context.Background(), "ops@city.example", "pw")
		require.NoError(t, err)

		svc.now = time.Now
		_, err = svc.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		svc := NewService(mem, "test-secret", time.Hour)
		_, err := svc.Verify("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

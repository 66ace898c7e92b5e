package auth

import (
	"context"
	"testing"
	"time"

	"github.com/avolkov/slotcore/internal/audit"
	"github.com/avolkov/slotcore/internal/config"
	"github.com/avolkov/slotcore/internal/database"
)

// setupTestAuth wires the auth service to a local PostgreSQL instance
// and returns the service, a seeded shop id and a cleanup func.
func setupTestAuth(t *testing.T) (*Service, int64, func()) {
	t.Helper()

	db, err := database.New("postgres", "host=localhost dbname=slotcore sslmode=disable")
	if err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}

	if err := db.Migrate(); err != nil {
		t.Logf("Migration note: %v", err)
	}
	if err := db.CleanData(); err != nil {
		t.Fatalf("Failed to clean data: %v", err)
	}

	var shopID int64
	err = db.QueryRow(`INSERT INTO shops (percent, currency) VALUES (90, 'USD') RETURNING id`).Scan(&shopID)
	if err != nil {
		t.Fatalf("Failed to seed shop: %v", err)
	}

	auditSvc := audit.New(db.DB, nil)
	cfg := &config.AuthConfig{
		JWTSecret:         "test-secret-key-12345",
		TokenExpiry:       1 * time.Hour,
		SessionTimeout:    30 * time.Minute,
		MaxFailedAttempts: 3,
		LockoutDuration:   15 * time.Minute,
	}

	svc := New(db.DB, cfg, auditSvc)

	return svc, shopID, func() {
		db.CleanData()
		db.Close()
	}
}

func TestRegister(t *testing.T) {
	svc, shopID, cleanup := setupTestAuth(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("SuccessfulRegistration", func(t *testing.T) {
		account, err := svc.Register(ctx, &RegisterRequest{
			Username: "testuser",
			Password: "password123",
			ShopID:   shopID,
		}, "127.0.0.1")

		if err != nil {
			t.Fatalf("Registration failed: %v", err)
		}

		if account.ID == 0 {
			t.Error("Expected player ID")
		}
		if account.Username != "testuser" {
			t.Errorf("Expected username 'testuser', got '%s'", account.Username)
		}
		if account.ShopID != shopID {
			t.Errorf("Expected shop %d, got %d", shopID, account.ShopID)
		}
	})

	t.Run("DuplicateUsername", func(t *testing.T) {
		_, err := svc.Register(ctx, &RegisterRequest{
			Username: "testuser",
			Password: "password123",
			ShopID:   shopID,
		}, "127.0.0.1")

		if err == nil {
			t.Error("Expected error for duplicate username")
		}
	})

	t.Run("ShortPassword", func(t *testing.T) {
		_, err := svc.Register(ctx, &RegisterRequest{
			Username: "validuser",
			Password: "short",
			ShopID:   shopID,
		}, "127.0.0.1")

		if err == nil {
			t.Error("Expected error for short password")
		}
	})

	t.Run("MissingShop", func(t *testing.T) {
		_, err := svc.Register(ctx, &RegisterRequest{
			Username: "shopless",
			Password: "password123",
		}, "127.0.0.1")

		if err == nil {
			t.Error("Expected error when shop is missing")
		}
	})
}

func TestLogin(t *testing.T) {
	svc, shopID, cleanup := setupTestAuth(t)
	defer cleanup()

	ctx := context.Background()

	if _, err := svc.Register(ctx, &RegisterRequest{
		Username: "loginuser",
		Password: "password123",
		ShopID:   shopID,
	}, "127.0.0.1"); err != nil {
		t.Fatalf("Failed to seed player: %v", err)
	}

	t.Run("SuccessfulLogin", func(t *testing.T) {
		result, err := svc.Login(ctx, &LoginRequest{
			Username: "loginuser",
			Password: "password123",
		}, "127.0.0.1", "TestAgent")

		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}

		if result.Token == "" {
			t.Error("Expected token")
		}
		if result.Account.Username != "loginuser" {
			t.Errorf("Expected username 'loginuser', got '%s'", result.Account.Username)
		}
		if result.Session.Status != SessionStatusActive {
			t.Errorf("Expected active session, got '%s'", result.Session.Status)
		}
	})

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := svc.Login(ctx, &LoginRequest{
			Username: "loginuser",
			Password: "wrong-password",
		}, "127.0.0.1", "TestAgent")

		if err == nil {
			t.Error("Expected error for wrong password")
		}
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, err := svc.Login(ctx, &LoginRequest{
			Username: "ghost",
			Password: "password123",
		}, "127.0.0.1", "TestAgent")

		if err == nil {
			t.Error("Expected error for unknown user")
		}
	})
}

func TestValidateToken(t *testing.T) {
	svc, shopID, cleanup := setupTestAuth(t)
	defer cleanup()

	ctx := context.Background()

	if _, err := svc.Register(ctx, &RegisterRequest{
		Username: "tokenuser",
		Password: "password123",
		ShopID:   shopID,
	}, "127.0.0.1"); err != nil {
		t.Fatalf("Failed to seed player: %v", err)
	}

	loginResult, loginErr := svc.Login(ctx, &LoginRequest{
		Username: "tokenuser",
		Password: "password123",
	}, "127.0.0.1", "TestAgent")
	if loginErr != nil {
		t.Fatalf("Login failed: %v", loginErr)
	}

	t.Run("ValidToken", func(t *testing.T) {
		session, account, err := svc.ValidateToken(ctx, loginResult.Token)
		if err != nil {
			t.Fatalf("Token validation failed: %v", err)
		}

		if session.PlayerID == 0 {
			t.Error("Expected player ID in session")
		}
		if account.Username != "tokenuser" {
			t.Errorf("Expected username 'tokenuser', got '%s'", account.Username)
		}
	})

	t.Run("InvalidToken", func(t *testing.T) {
		_, _, err := svc.ValidateToken(ctx, "invalid-token")
		if err == nil {
			t.Error("Expected error for invalid token")
		}
	})

	t.Run("TamperedToken", func(t *testing.T) {
		tampered := loginResult.Token + "tampered"
		_, _, err := svc.ValidateToken(ctx, tampered)
		if err == nil {
			t.Error("Expected error for tampered token")
		}
	})
}

func TestLogout(t *testing.T) {
	svc, shopID, cleanup := setupTestAuth(t)
	defer cleanup()

	ctx := context.Background()

	if _, err := svc.Register(ctx, &RegisterRequest{
		Username: "logoutuser",
		Password: "password123",
		ShopID:   shopID,
	}, "127.0.0.1"); err != nil {
		t.Fatalf("Failed to seed player: %v", err)
	}

	loginResult, loginErr := svc.Login(ctx, &LoginRequest{
		Username: "logoutuser",
		Password: "password123",
	}, "127.0.0.1", "TestAgent")
	if loginErr != nil {
		t.Fatalf("Login failed: %v", loginErr)
	}

	t.Run("SuccessfulLogout", func(t *testing.T) {
		session, _, err := svc.ValidateToken(ctx, loginResult.Token)
		if err != nil {
			t.Fatalf("Token should be valid before logout: %v", err)
		}

		if err := svc.Logout(ctx, session.ID); err != nil {
			t.Fatalf("Logout failed: %v", err)
		}

		_, _, err = svc.ValidateToken(ctx, loginResult.Token)
		if err == nil {
			t.Error("Token should be invalid after logout")
		}
	})
}

func TestAccountLockout(t *testing.T) {
	svc, shopID, cleanup := setupTestAuth(t)
	defer cleanup()

	ctx := context.Background()

	if _, err := svc.Register(ctx, &RegisterRequest{
		Username: "lockoutuser",
		Password: "password123",
		ShopID:   shopID,
	}, "127.0.0.1"); err != nil {
		t.Fatalf("Failed to seed player: %v", err)
	}

	t.Run("LockedAfterRepeatedFailures", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_, err := svc.Login(ctx, &LoginRequest{
				Username: "lockoutuser",
				Password: "wrong-password",
			}, "127.0.0.1", "TestAgent")
			if err == nil {
				t.Fatal("Expected failed login")
			}
		}

		// Even the right password is rejected while locked.
		_, err := svc.Login(ctx, &LoginRequest{
			Username: "lockoutuser",
			Password: "password123",
		}, "127.0.0.1", "TestAgent")
		if err != ErrAccountLocked {
			t.Errorf("Expected ErrAccountLocked, got %v", err)
		}
	})
}

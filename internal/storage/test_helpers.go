package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/estrella/internal/config"
	"github.com/estrella/internal/models"
	"github.com/google/uuid"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func testPostgresConfig() *config.PostgresConfig {
	return &config.PostgresConfig{
		Host:           testEnv("POSTGRES_HOST", "localhost"),
		Port:           testEnv("POSTGRES_PORT", "5432"),
		Database:       testEnv("POSTGRES_DB", "estrella_test"),
		User:           testEnv("POSTGRES_USER", "estrella"),
		Password:       testEnv("POSTGRES_PASSWORD", "estrella_dev_password"),
		SSLMode:        "disable",
		MaxConnections: 10,
	}
}

// setupTestPostgres connects to the test database and applies the schema,
// skipping the test when Postgres is not available
func setupTestPostgres(t *testing.T) *PostgresDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testPostgresConfig()
	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	if err := RunMigrations(cfg.URL()); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	return db
}

// createTestUser inserts a fresh user and returns it
func createTestUser(t *testing.T, db *PostgresDB, name string) *models.User {
	t.Helper()

	user := &models.User{
		ID:           uuid.New().String(),
		Name:         name,
		Age:          30,
		Gender:       "mujer",
		VisibleOnMap: true,
	}
	if err := NewUserRepository(db).Create(testContext(t), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

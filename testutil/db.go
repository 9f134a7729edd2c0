// Package testutil holds helpers shared by package tests.
package testutil

import (
	"testing"

	"affiliate-system/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSQLiteDB returns a migrated in-memory database private to t.
// A single connection keeps the in-memory database alive and serializes
// writers the way row locks would.
func NewSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// Migrate creates the affiliate tables plus a stand-in for the account table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(append(models.All(), &models.User{})...)
}

// SeedUser inserts an account row.
func SeedUser(t testing.TB, db *gorm.DB, id, email, name string, tier models.Tier) *models.User {
	t.Helper()
	u := &models.User{ID: id, Email: email, Name: name, Tier: tier}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("failed to seed user %s: %v", id, err)
	}
	return u
}

// LoadUser re-reads an account row.
func LoadUser(t testing.TB, db *gorm.DB, id string) models.User {
	t.Helper()
	var u models.User
	if err := db.Where("id = ?", id).First(&u).Error; err != nil {
		t.Fatalf("failed to load user %s: %v", id, err)
	}
	return u
}

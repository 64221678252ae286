/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package dbtest opens migrated in-memory databases for tests.
package dbtest

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/confplanner/internal/db"
	"github.com/friendsincode/confplanner/internal/seed"
)

// Open returns an empty, migrated in-memory sqlite database closed at the
// end of the test.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// Every connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.RegisterCallbacks(database); err != nil {
		t.Fatalf("register callbacks: %v", err)
	}
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

// Seeded returns a database loaded with the built-in conference data.
func Seeded(t testing.TB) *gorm.DB {
	t.Helper()

	database := Open(t)
	data, err := seed.Default()
	if err != nil {
		t.Fatalf("load default conference: %v", err)
	}
	if _, err := seed.Apply(context.Background(), database, data); err != nil {
		t.Fatalf("apply seed: %v", err)
	}
	return database
}

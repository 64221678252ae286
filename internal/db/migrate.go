/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"github.com/friendsincode/confplanner/internal/models"
	"gorm.io/gorm"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		// Accounts
		&models.User{},
		&models.APIKey{},
		&models.AuditLog{},

		// Conference catalog
		&models.Speaker{},
		&models.Track{},
		&models.Room{},
		&models.Talk{},

		// Attendee data
		&models.UserSchedule{},
		&models.Rating{},
	); err != nil {
		return err
	}

	if err := applyPostgresTalkIntervalGuard(database); err != nil {
		return err
	}
	if err := normalizeLegacyRoles(database); err != nil {
		return err
	}

	return nil
}

// applyPostgresTalkIntervalGuard rejects talks whose end is not after their
// start. Other backends rely on the seed loader's validation.
func applyPostgresTalkIntervalGuard(database *gorm.DB) error {
	if database.Dialector.Name() != "postgres" {
		return nil
	}

	stmt := `
DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM pg_constraint WHERE conname = 'chk_talks_interval'
  ) THEN
    ALTER TABLE talks ADD CONSTRAINT chk_talks_interval CHECK (ends_at > starts_at);
  END IF;
END;
$$;
`
	if err := database.Exec(stmt).Error; err != nil {
		return fmt.Errorf("apply postgres talk interval guard: %w", err)
	}

	return nil
}

func normalizeLegacyRoles(database *gorm.DB) error {
	if err := database.Exec("UPDATE users SET role = ? WHERE LOWER(TRIM(role)) IN ?", models.RoleOrganizer, []string{"admin", "manager"}).Error; err != nil {
		return fmt.Errorf("normalize legacy organizer role: %w", err)
	}
	if err := database.Exec("UPDATE users SET role = ? WHERE role IS NULL OR role = ''", models.RoleAttendee).Error; err != nil {
		return fmt.Errorf("normalize empty role: %w", err)
	}
	return nil
}

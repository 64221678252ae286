/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/confplanner/internal/db"
	"github.com/friendsincode/confplanner/internal/models"
	"github.com/friendsincode/confplanner/internal/seed"
)

var (
	resetForce          bool
	resetDeleteAvatars  bool
	resetKeepOrganizers bool
	resetSeed           bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the database and optionally delete speaker photos",
	Long: `Reset Confplanner to a fresh state.

This command will:
- Drop all tables from the database (organizer accounts can be kept)
- Re-create empty tables
- Optionally delete locally stored speaker photos
- Optionally load the built-in conference again

WARNING: This action is irreversible! Saved schedules and ratings will be lost.

Examples:
  # Interactive reset (will prompt for confirmation)
  confplanner reset

  # Force reset and load the built-in conference
  confplanner reset --force --seed

  # Reset but keep organizer accounts
  confplanner reset --force --keep-organizers
`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "Skip confirmation prompt")
	resetCmd.Flags().BoolVar(&resetDeleteAvatars, "delete-avatars", false, "Also delete locally stored speaker photos")
	resetCmd.Flags().BoolVar(&resetKeepOrganizers, "keep-organizers", false, "Preserve organizer accounts")
	resetCmd.Flags().BoolVar(&resetSeed, "seed", false, "Load the built-in conference after the reset")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !resetForce {
		ok, err := confirmReset(cmd.InOrStdin(), out)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Reset cancelled.")
			return nil
		}
	}

	logger.Info().
		Bool("delete_avatars", resetDeleteAvatars).
		Bool("keep_organizers", resetKeepOrganizers).
		Msg("Starting database reset")

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close(database)

	kept, err := resetDatabase(database, resetKeepOrganizers, logger)
	if err != nil {
		return err
	}

	if resetDeleteAvatars && cfg.S3Bucket == "" && cfg.AvatarRoot != "" {
		logger.Info().Str("path", cfg.AvatarRoot).Msg("Deleting speaker photos")
		deleteFiles(cfg.AvatarRoot, logger)
	}

	if resetSeed {
		data, err := seed.Default()
		if err != nil {
			return fmt.Errorf("load conference data: %w", err)
		}
		if _, err := seedConference(cmd.Context(), database, data, "", logger); err != nil {
			return err
		}
		invalidateCaches(cmd.Context(), cfg, database, logger)
	}

	logger.Info().Msg("Reset complete")
	fmt.Fprintf(out, "Confplanner has been reset. %d organizer account(s) kept.\n", kept)
	if !resetSeed {
		fmt.Fprintln(out, "Load conference data with: confplanner seed")
	}
	return nil
}

func confirmReset(in io.Reader, out io.Writer) (bool, error) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "WARNING: this will DELETE ALL DATA from Confplanner:")
	if resetKeepOrganizers {
		fmt.Fprintln(out, "  - all attendee accounts and API keys")
	} else {
		fmt.Fprintln(out, "  - all accounts and API keys")
	}
	fmt.Fprintln(out, "  - all talks, speakers, tracks and rooms")
	fmt.Fprintln(out, "  - all saved schedules, ratings and audit history")
	if resetDeleteAvatars {
		fmt.Fprintln(out, "  - ALL UPLOADED SPEAKER PHOTOS")
	}
	fmt.Fprintln(out, "This action CANNOT be undone!")
	fmt.Fprintln(out)
	fmt.Fprint(out, "Type 'yes' to confirm reset: ")

	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(strings.ToLower(response)) == "yes", nil
}

// resetDatabase drops and re-creates every table. With keepOrganizers the
// organizer accounts are restored afterwards; their API keys are not.
func resetDatabase(database *gorm.DB, keepOrganizers bool, logger zerolog.Logger) (int, error) {
	var preserved []models.User
	if keepOrganizers {
		if err := database.Where("role = ?", models.RoleOrganizer).Order("created_at ASC").Find(&preserved).Error; err != nil {
			return 0, fmt.Errorf("load organizers: %w", err)
		}
		for _, u := range preserved {
			logger.Info().Str("user_id", u.ID).Str("email", u.Email).Msg("Preserving user")
		}
	}

	// Dependents first.
	tables := []interface{}{
		&models.Rating{},
		&models.UserSchedule{},
		&models.Talk{},
		&models.Room{},
		&models.Track{},
		&models.Speaker{},
		&models.AuditLog{},
		&models.APIKey{},
		&models.User{},
	}

	logger.Info().Msg("Dropping all tables")
	for _, table := range tables {
		if err := database.Migrator().DropTable(table); err != nil {
			logger.Debug().Err(err).Msg("drop table (may not exist)")
		}
	}

	logger.Info().Msg("Creating fresh database schema")
	if err := db.Migrate(database); err != nil {
		return 0, fmt.Errorf("migrate database: %w", err)
	}

	for i := range preserved {
		u := preserved[i]
		u.UpdatedAt = u.CreatedAt
		if err := database.Create(&u).Error; err != nil {
			return i, fmt.Errorf("restore user %s: %w", u.Email, err)
		}
	}
	return len(preserved), nil
}

// deleteFiles removes every file under root, then any directories left empty.
func deleteFiles(root string, logger zerolog.Logger) {
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root || d.IsDir() {
			return nil
		}
		if err := os.Remove(path); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("failed to delete file")
		}
		return nil
	})
	if err != nil {
		logger.Warn().Err(err).Msg("error walking avatar directory")
	}
	cleanEmptyDirs(root)
}

// cleanEmptyDirs removes empty directories below root, deepest first.
func cleanEmptyDirs(root string) {
	var dirs []string
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err == nil && d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	for i := len(dirs) - 1; i >= 0; i-- {
		if entries, err := os.ReadDir(dirs[i]); err == nil && len(entries) == 0 {
			_ = os.Remove(dirs[i])
		}
	}
}

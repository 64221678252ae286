/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/confplanner/internal/audit"
	"github.com/friendsincode/confplanner/internal/cache"
	"github.com/friendsincode/confplanner/internal/catalog"
	"github.com/friendsincode/confplanner/internal/config"
	"github.com/friendsincode/confplanner/internal/db"
	"github.com/friendsincode/confplanner/internal/eventbus"
	"github.com/friendsincode/confplanner/internal/events"
	"github.com/friendsincode/confplanner/internal/models"
	"github.com/friendsincode/confplanner/internal/seed"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load conference data into the database",
	Long: `Load tracks, rooms, speakers and talks into the database.

Without --file the built-in conference is loaded. Running seed again updates
existing rows and removes talks the file no longer lists, together with the
saved schedule entries and ratings that pointed at them.

Examples:
  # Load the built-in conference
  confplanner seed

  # Load a custom conference
  confplanner seed --file ./conference.yaml
`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "YAML conference file (default: built-in conference)")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	var (
		data *seed.Data
		err  error
	)
	if seedFile != "" {
		data, err = seed.LoadFile(seedFile)
	} else {
		data, err = seed.Default()
	}
	if err != nil {
		return fmt.Errorf("load conference data: %w", err)
	}

	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	res, err := seedConference(ctx, database, data, seedFile, logger)
	if err != nil {
		return err
	}

	invalidateCaches(ctx, cfg, database, logger)

	fmt.Fprintf(cmd.OutOrStdout(), "Loaded %q: %d tracks, %d rooms, %d speakers, %d talks\n",
		data.Name, res.Tracks, res.Rooms, res.Speakers, res.Talks)
	if res.OrphanSchedules > 0 || res.OrphanRatings > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d saved schedule entries and %d ratings for talks no longer listed\n",
			res.OrphanSchedules, res.OrphanRatings)
	}
	return nil
}

// seedConference applies data and records the run in the audit log.
func seedConference(ctx context.Context, database *gorm.DB, data *seed.Data, source string, logger zerolog.Logger) (*seed.Result, error) {
	res, err := seed.Apply(ctx, database, data)
	if err != nil {
		return nil, fmt.Errorf("apply conference data: %w", err)
	}

	if source == "" {
		source = "built-in"
	}
	entry := audit.EntryFromPayload(models.AuditActionSeed, events.Payload{
		"resource_type": "conference",
		"resource_id":   data.Name,
		"source":        source,
		"talks":         res.Talks,
		"speakers":      res.Speakers,
	})
	if err := audit.NewService(database, nil, logger).Log(ctx, entry); err != nil {
		logger.Warn().Err(err).Msg("failed to record seed in audit log")
	}

	logger.Info().
		Str("conference", data.Name).
		Int("talks", res.Talks).
		Int("orphan_schedules", res.OrphanSchedules).
		Msg("conference data applied")
	return res, nil
}

// invalidateCaches drops the shared Redis catalog cache and tells running
// servers to drop their in-process copies.
func invalidateCaches(ctx context.Context, cfg *config.Config, database *gorm.DB, logger zerolog.Logger) {
	if cfg.CacheEnabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = cfg.RedisAddr
		cacheCfg.RedisPassword = cfg.RedisPassword
		cacheCfg.RedisDB = cfg.RedisDB
		cacheCfg.L1Size = 0
		if c, err := cache.New(cacheCfg, logger); err == nil {
			if err := catalog.NewService(database, c, logger).Invalidate(ctx); err != nil {
				logger.Warn().Err(err).Msg("failed to invalidate catalog cache")
			}
			_ = c.Close()
		}
	}

	var (
		transport eventbus.Transport
		err       error
	)
	switch cfg.EventBusBackend {
	case config.EventBusRedis:
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB
		transport, err = eventbus.NewRedisTransport(ctx, redisCfg, logger)
	case config.EventBusNATS:
		transport, err = eventbus.NewNATSTransport(ctx, cfg.NATSURL, "confplanner-seed", logger)
	default:
		return
	}
	if err != nil {
		logger.Warn().Err(err).Msg("event bus unavailable, running servers keep cached catalog until it expires")
		return
	}

	bus := events.NewBus()
	bridge := eventbus.NewBridge(bus, transport, "", logger)
	if err := bridge.Start(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to start event bridge")
		_ = transport.Close()
		return
	}
	bus.Publish(events.EventCatalogUpdated, events.Payload{"source": "seed"})
	_ = bridge.Close()
}

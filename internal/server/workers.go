/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/friendsincode/confplanner/internal/db"
	"github.com/friendsincode/confplanner/internal/events"
	"github.com/friendsincode/confplanner/internal/telemetry"
)

// Background job schedules.
const (
	dbMetricsSchedule = "@every 30s"
	cacheWarmSchedule = "@every 5m"
	cacheWarmTimeout  = 30 * time.Second
	dbMetricsJobName  = "db_metrics"
	cacheWarmJobName  = "cache_warm"
)

func (s *Server) startBackgroundWorkers() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if s.bridge != nil {
		if err := s.bridge.Start(ctx); err != nil {
			return fmt.Errorf("start event bridge: %w", err)
		}
	}

	if s.election != nil {
		s.election.Start(ctx)
	}

	// Start audit service
	if s.auditSvc != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.auditSvc.Start(ctx)
		}()
	}

	// Start cache invalidation listener
	if s.cache != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.runCacheInvalidationListener(ctx)
		}()
	}

	jobs, err := newJobs(ctx, s.logger, map[string]job{
		dbMetricsJobName: {schedule: dbMetricsSchedule, run: func(context.Context) error {
			db.UpdateConnectionMetrics(s.db)
			return nil
		}},
		cacheWarmJobName: {schedule: cacheWarmSchedule, run: func(ctx context.Context) error {
			if s.cache == nil || !s.runsClusterJobs() {
				return nil
			}
			ctx, cancel := context.WithTimeout(ctx, cacheWarmTimeout)
			defer cancel()
			return s.catalog.Warm(ctx)
		}},
	})
	if err != nil {
		return err
	}
	s.jobs = jobs
	s.jobs.Start()
	return nil
}

// runsClusterJobs reports whether jobs that touch shared state should run
// here. Without leader election every instance runs them.
func (s *Server) runsClusterJobs() bool {
	return s.election == nil || s.election.IsLeader()
}

type job struct {
	schedule string
	run      func(context.Context) error
}

// newJobs registers jobs on a cron runner. Runs that overlap a still
// running invocation are skipped.
func newJobs(ctx context.Context, logger zerolog.Logger, jobs map[string]job) (*cron.Cron, error) {
	logger = logger.With().Str("component", "jobs").Logger()
	c := cron.New(cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})))

	for name, j := range jobs {
		if _, err := c.AddFunc(j.schedule, func() {
			start := time.Now()
			if err := j.run(ctx); err != nil {
				telemetry.JobRunsTotal.WithLabelValues(name, "error").Inc()
				logger.Warn().Err(err).Str("job", name).Msg("background job failed")
				return
			}
			telemetry.JobRunsTotal.WithLabelValues(name, "ok").Inc()
			logger.Debug().Str("job", name).Dur("duration", time.Since(start)).Msg("background job finished")
		}); err != nil {
			return nil, fmt.Errorf("schedule job %s: %w", name, err)
		}
	}
	return c, nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// runCacheInvalidationListener drops cached catalog entries when this or
// another instance changes conference data.
func (s *Server) runCacheInvalidationListener(ctx context.Context) {
	catalogUpdated := s.bus.Subscribe(events.EventCatalogUpdated)
	speakerUpdated := s.bus.Subscribe(events.EventSpeakerUpdated)

	defer func() {
		s.bus.Unsubscribe(events.EventCatalogUpdated, catalogUpdated)
		s.bus.Unsubscribe(events.EventSpeakerUpdated, speakerUpdated)
	}()

	s.logger.Info().Msg("cache invalidation listener started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("cache invalidation listener stopped")
			return

		case <-catalogUpdated:
			s.logger.Debug().Msg("invalidating catalog cache (catalog updated)")
			if err := s.catalog.Invalidate(ctx); err != nil {
				s.logger.Debug().Err(err).Msg("catalog cache invalidation failed")
			}

		case payload := <-speakerUpdated:
			speakerID, _ := payload["speaker_id"].(string)
			s.logger.Debug().Str("speaker_id", speakerID).Msg("invalidating catalog cache (speaker updated)")
			if err := s.catalog.Invalidate(ctx); err != nil {
				s.logger.Debug().Err(err).Msg("catalog cache invalidation failed")
			}
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.jobs != nil {
		<-s.jobs.Stop().Done()
		s.jobs = nil
	}
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

package scheduler

import (
	"context"
	"fmt"
	"time"

	"rentacar/internal/config"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const jobTimeout = 10 * time.Minute

type Backup interface {
	Run(ctx context.Context) error
}

type LinkPurger interface {
	PurgeInspectionLinksExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type RegisterResyncer interface {
	EnqueueResync(ctx context.Context) error
}

// Jobs are the collaborators the housekeeping jobs act on. Nil members are skipped.
type Jobs struct {
	Backup   Backup
	Links    LinkPurger
	Register RegisterResyncer
}

// Scheduler runs housekeeping jobs on cron specs with seconds precision.
type Scheduler struct {
	cron       *cron.Cron
	jobs       Jobs
	retainDays int
	now        func() time.Time
	logger     zerolog.Logger
}

func New(cfg config.SchedulerConfig, backupSpec string, jobs Jobs, logger *zerolog.Logger) (*Scheduler, error) {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "scheduler").Logger()
	}

	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithSeconds(),
		),
		jobs:       jobs,
		retainDays: cfg.ExpiredLinkRetainDays,
		now:        time.Now,
		logger:     l,
	}

	if jobs.Backup != nil {
		if err := s.add("backup", backupSpec, s.backup); err != nil {
			return nil, err
		}
	}
	if jobs.Links != nil {
		if err := s.add("purge_expired_links", cfg.PurgeExpiredLinks, s.purgeExpiredLinks); err != nil {
			return nil, err
		}
	}
	if jobs.Register != nil {
		if err := s.add("resync_register", cfg.ResyncRegister, s.resyncRegister); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(name, spec string, job func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		start := time.Now()
		if err := job(ctx); err != nil {
			s.logger.Error().Err(err).Str("job", name).Msg("scheduled job failed")
			return
		}
		s.logger.Info().Str("job", name).Dur("duration", time.Since(start)).Msg("scheduled job finished")
	})
	if err != nil {
		return fmt.Errorf("register %s job (%q): %w", name, spec, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.logger.Info().Int("jobs", len(s.cron.Entries())).Msg("starting cron scheduler")
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("cron scheduler stopped")
}

func (s *Scheduler) backup(ctx context.Context) error {
	return s.jobs.Backup.Run(ctx)
}

func (s *Scheduler) purgeExpiredLinks(ctx context.Context) error {
	cutoff := s.now().UTC().AddDate(0, 0, -s.retainDays)
	n, err := s.jobs.Links.PurgeInspectionLinksExpiredBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	s.logger.Info().Int64("purged", n).Time("cutoff", cutoff).Msg("expired inspection links purged")
	return nil
}

func (s *Scheduler) resyncRegister(ctx context.Context) error {
	return s.jobs.Register.EnqueueResync(ctx)
}

// Package scheduler drives the monthly settlement jobs: rolling closed
// collection activity into billing items and generating summaries.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/wasteflow/wasteflow/internal/audit/domain"
	"github.com/wasteflow/wasteflow/internal/billing"
	summarydomain "github.com/wasteflow/wasteflow/internal/billingsummary/domain"
	"github.com/wasteflow/wasteflow/internal/clock"
	collectiondomain "github.com/wasteflow/wasteflow/internal/collection/domain"
	"github.com/wasteflow/wasteflow/internal/identity"
	obscontext "github.com/wasteflow/wasteflow/internal/observability/context"
	obslogger "github.com/wasteflow/wasteflow/internal/observability/logger"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	CollectionSvc collectiondomain.Service
	SummarySvc    summarydomain.Service
	AuditSvc      auditdomain.Service `optional:"true"`
	Locker        *Locker             `optional:"true"`
	Config        Config              `optional:"true"`
}

type Scheduler struct {
	db            *gorm.DB
	log           *zap.Logger
	cfg           Config
	clock         clock.Clock
	collectionSvc collectiondomain.Service
	summarySvc    summarydomain.Service
	auditSvc      auditdomain.Service
	locker        *Locker
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.CollectionSvc == nil || p.SummarySvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:            p.DB,
		log:           p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:           p.Config.withDefaults(),
		clock:         p.Clock,
		collectionSvc: p.CollectionSvc,
		summarySvc:    p.SummarySvc,
		auditSvc:      p.AuditSvc,
		locker:        p.Locker,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx = obscontext.WithActor(ctx, identity.ActorTypeSystem, "scheduler")
	runID := ulid.Make().String()
	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("job", name),
		zap.String("run_id", runID),
	)

	if s.locker != nil {
		key := "wasteflow:scheduler:" + name
		token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if !ok {
			log.Debug("job held by another instance")
			return nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				log.Warn("lock release failed", zap.Error(err))
			}
		}()
	}

	log.Info("job start")
	err := fn(ctx)
	duration := time.Since(start)

	if err == nil {
		log.Info("job finish", zap.Int64("duration_ms", duration.Milliseconds()))
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out",
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}
	log.Warn("job failed",
		zap.Int64("duration_ms", duration.Milliseconds()),
		zap.String("error_type", classifyJobError(err)),
		zap.Bool("retryable", isRetryableJobError(err)),
		zap.Error(err),
	)
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes every enabled job for the previous settlement month.
// All jobs are idempotent; rerunning a completed month is a no-op.
func (s *Scheduler) RunOnce(parent context.Context) error {
	month := billing.PreviousMonth(s.clock.Now())
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{"generate_items", func(ctx context.Context) error {
			return s.GenerateItemsJob(ctx, month)
		}},
		{"generate_summaries", func(ctx context.Context) error {
			return s.GenerateSummariesJob(ctx, month)
		}},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) GenerateItemsJob(ctx context.Context, month string) error {
	result, err := s.collectionSvc.GenerateItemsForMonth(ctx, identity.System(), month)
	if err != nil {
		return err
	}
	if result.MeteredItems > 0 || result.FixedItems > 0 {
		s.log.Info("items generated",
			zap.String("billing_month", month),
			zap.Int("metered_items", result.MeteredItems),
			zap.Int("fixed_items", result.FixedItems),
			zap.Int("skipped_collectors", result.SkippedCollectors),
		)
	}
	return nil
}

func (s *Scheduler) GenerateSummariesJob(ctx context.Context, month string) error {
	result, err := s.summarySvc.GenerateForMonth(ctx, identity.System(), month)
	if err != nil {
		return err
	}
	if result.Generated > 0 {
		s.log.Info("summaries generated",
			zap.String("billing_month", month),
			zap.Int("generated", result.Generated),
			zap.Int("skipped", result.Skipped),
		)
	}
	return nil
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bigapple/fleetops/internal/clock"
	importersvc "github.com/bigapple/fleetops/internal/importer/service"
	obsmetrics "github.com/bigapple/fleetops/internal/observability/metrics"
	repairsvc "github.com/bigapple/fleetops/internal/repair/service"
	settlementsvc "github.com/bigapple/fleetops/internal/settlement/service"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler missing required dependencies")

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	ImporterSvc   *importersvc.Service
	RepairSvc     *repairsvc.Service
	SettlementSvc *settlementsvc.Service
	Config        Config `optional:"true"`
}

// Scheduler drives the periodic pipeline: feed import, association,
// posting, installment billing and settlement. Jobs are independent and
// idempotent, so overlapping or repeated runs are safe.
type Scheduler struct {
	db            *gorm.DB
	log           *zap.Logger
	cfg           Config
	genID         *snowflake.Node
	clock         clock.Clock
	importerSvc   *importersvc.Service
	repairSvc     *repairsvc.Service
	settlementSvc *settlementsvc.Service
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil ||
		p.ImporterSvc == nil || p.RepairSvc == nil || p.SettlementSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:            p.DB,
		log:           p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:           p.Config.withDefaults(),
		genID:         p.GenID,
		clock:         p.Clock,
		importerSvc:   p.ImporterSvc,
		repairSvc:     p.RepairSvc,
		settlementSvc: p.SettlementSvc,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)

	err := fn(ctx)
	obsmetrics.Pipeline().ObserveJobRun(name, time.Since(start), err)
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	obsmetrics.Pipeline().IncJobError(name)
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes one pass of every enabled job, in pipeline order per
// source. Job failures are joined, never fatal to the pass.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{"import_trips", s.cfg.isJobEnabled("import_trips"), func(ctx context.Context) error {
			return s.runJob(ctx, "import_trips", s.cfg.BatchSize, s.cfg.JobTimeout, s.ImportTripsJob)
		}},
		{"import_violations", s.cfg.isJobEnabled("import_violations"), func(ctx context.Context) error {
			return s.runJob(ctx, "import_violations", s.cfg.BatchSize, s.cfg.JobTimeout, s.ImportViolationsJob)
		}},
		{"import_tolls", s.cfg.isJobEnabled("import_tolls"), func(ctx context.Context) error {
			return s.runJob(ctx, "import_tolls", s.cfg.BatchSize, s.cfg.JobTimeout, s.ImportTollsJob)
		}},
		{"associate_records", s.cfg.isJobEnabled("associate_records"), func(ctx context.Context) error {
			return s.runJob(ctx, "associate_records", s.cfg.BatchSize, s.cfg.JobTimeout, s.AssociateRecordsJob)
		}},
		{"post_records", s.cfg.isJobEnabled("post_records"), func(ctx context.Context) error {
			return s.runJob(ctx, "post_records", s.cfg.BatchSize, s.cfg.JobTimeout, s.PostRecordsJob)
		}},
		{"post_installments", s.cfg.isJobEnabled("post_installments"), func(ctx context.Context) error {
			return s.runJob(ctx, "post_installments", s.cfg.BatchSize, s.cfg.JobTimeout, s.PostInstallmentsJob)
		}},
		{"settle_drivers", s.cfg.isJobEnabled("settle_drivers"), func(ctx context.Context) error {
			return s.runJob(ctx, "settle_drivers", s.cfg.BatchSize, s.cfg.JobTimeout, s.SettleDriversJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}

	return err
}

// RunForever ticks RunOnce until the context is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	s.log.Info("scheduler started",
		zap.Duration("interval", s.cfg.RunInterval),
	)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.log.Error("scheduler pass failed", zap.Error(err))
			}
		}
	}
}

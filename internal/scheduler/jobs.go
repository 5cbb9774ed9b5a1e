package scheduler

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	importerdomain "github.com/bigapple/fleetops/internal/importer/domain"
	importersvc "github.com/bigapple/fleetops/internal/importer/service"
	obscontext "github.com/bigapple/fleetops/internal/observability/context"
	obsmetrics "github.com/bigapple/fleetops/internal/observability/metrics"
	txdomain "github.com/bigapple/fleetops/internal/transaction/domain"
	"go.uber.org/zap"
)

// pipelineSources are the feed-backed sources, in the order each pass
// processes them. Installments enter the ledger through the repair job.
var pipelineSources = []txdomain.SourceType{
	txdomain.SourceTrip,
	txdomain.SourceViolation,
	txdomain.SourceToll,
}

func (s *Scheduler) ImportTripsJob(ctx context.Context) error {
	return s.importFeedDir(ctx, txdomain.SourceTrip, "trips", "*.xml", s.importerSvc.ImportTrips)
}

func (s *Scheduler) ImportViolationsJob(ctx context.Context) error {
	return s.importFeedDir(ctx, txdomain.SourceViolation, "violations", "*.csv", s.importerSvc.ImportViolations)
}

func (s *Scheduler) ImportTollsJob(ctx context.Context) error {
	return s.importFeedDir(ctx, txdomain.SourceToll, "tolls", "*.csv", s.importerSvc.ImportTolls)
}

// importFeedDir imports every pending file from the source's drop
// directory. Imported files are renamed so a crash mid-directory never
// re-imports them; record-level dedup backstops a crash mid-file.
func (s *Scheduler) importFeedDir(
	ctx context.Context,
	source txdomain.SourceType,
	subdir string,
	pattern string,
	importFn func(context.Context, io.Reader) (*importerdomain.ImportBatch, error),
) error {
	ctx = obscontext.WithSource(ctx, string(source))
	run := jobRunFromContext(ctx)

	paths, err := filepath.Glob(filepath.Join(s.cfg.FeedDir, subdir, pattern))
	if err != nil {
		return err
	}

	var errs []error
	for _, path := range paths {
		file, err := os.Open(path)
		if err != nil {
			run.IncError()
			errs = append(errs, err)
			continue
		}

		batch, err := importFn(ctx, file)
		_ = file.Close()
		if err != nil {
			run.IncError()
			errs = append(errs, err)
			continue
		}
		run.AddProcessed(batch.Total)

		if err := os.Rename(path, path+".done"); err != nil {
			run.IncError()
			errs = append(errs, err)
			continue
		}
		s.logger(ctx).Info("feed file imported",
			zap.String("path", path),
			zap.String("batch_status", string(batch.Status)),
			zap.Int("total", batch.Total),
		)
	}
	return errors.Join(errs...)
}

func (s *Scheduler) AssociateRecordsJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)

	var errs []error
	for _, source := range pipelineSources {
		processed, err := s.importerSvc.AssociateRecords(obscontext.WithSource(ctx, string(source)), source, s.cfg.BatchSize)
		run.AddProcessed(processed)
		if err != nil {
			run.IncError()
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) PostRecordsJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)

	var errs []error
	for _, source := range pipelineSources {
		stats, err := s.importerSvc.PostRecords(obscontext.WithSource(ctx, string(source)), source, s.cfg.BatchSize)
		run.AddProcessed(stats.Posted + stats.Skipped + stats.Failed)
		s.observePostStats(ctx, source, stats)
		if err != nil {
			run.IncError()
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) PostInstallmentsJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)

	stats, err := s.repairSvc.PostDueInstallments(ctx)
	run.AddProcessed(stats.Posted + stats.Skipped)
	if err != nil {
		run.IncError()
		return err
	}
	obsmetrics.Pipeline().AddRecords("post_installments", "posted", stats.Posted)
	s.logger(ctx).Info("installments posted",
		zap.Int("posted", stats.Posted),
		zap.Int("skipped", stats.Skipped),
	)
	return nil
}

func (s *Scheduler) SettleDriversJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)

	settled, err := s.settlementSvc.SettleAllDrivers(ctx)
	run.AddProcessed(settled)
	if err != nil {
		run.IncError()
		return err
	}
	return nil
}

func (s *Scheduler) observePostStats(ctx context.Context, source txdomain.SourceType, stats importersvc.PostStats) {
	if stats.Posted == 0 && stats.Skipped == 0 && stats.Failed == 0 {
		return
	}
	metrics := obsmetrics.Pipeline()
	metrics.AddRecords("post_records", "posted", stats.Posted)
	metrics.AddRecords("post_records", "skipped", stats.Skipped)
	metrics.AddRecords("post_records", "failed", stats.Failed)
	s.logger(ctx).Info("records posted",
		zap.String("source", string(source)),
		zap.Int("posted", stats.Posted),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
}

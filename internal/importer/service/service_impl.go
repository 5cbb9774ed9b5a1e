package service

import (
	"context"
	"errors"
	"io"

	"github.com/bigapple/fleetops/internal/clock"
	"github.com/bigapple/fleetops/internal/fleet/resolver"
	importerdomain "github.com/bigapple/fleetops/internal/importer/domain"
	"github.com/bigapple/fleetops/internal/intake"
	ledgerdomain "github.com/bigapple/fleetops/internal/ledger/domain"
	obsmetrics "github.com/bigapple/fleetops/internal/observability/metrics"
	txdomain "github.com/bigapple/fleetops/internal/transaction/domain"
	"github.com/bigapple/fleetops/pkg/db"
	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Resolver *resolver.Resolver
	Ledger   ledgerdomain.Service
}

// Service runs the intake pipeline: parse, dedup, associate, post.
type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	resolver *resolver.Resolver
	ledger   ledgerdomain.Service
}

func New(p Params) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("importer.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		resolver: p.Resolver,
		ledger:   p.Ledger,
	}
}

// PostStats summarizes one posting pass.
type PostStats struct {
	Posted  int
	Skipped int
	Failed  int
}

func (s *Service) ImportTrips(ctx context.Context, r io.Reader) (*importerdomain.ImportBatch, error) {
	batch, err := s.openBatch(ctx, txdomain.SourceTrip)
	if err != nil {
		return nil, err
	}

	rows, rowErrs, err := intake.ParseTripFeed(r)
	if err != nil {
		return s.finalizeFailed(ctx, batch, err)
	}

	records := make([]*txdomain.TransactionRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, &txdomain.TransactionRecord{
			SourceType:      txdomain.SourceTrip,
			NaturalKey:      row.NaturalKey(),
			TransactionDate: row.TripDate,
			Trip: txdomain.TripData{
				RecordID:      row.RecordID,
				Period:        row.Period,
				CabNumber:     row.CabNumber,
				DriverLicense: row.DriverLicense,
				PaymentType:   row.PaymentType,
				Fare:          row.Fare,
				Surcharge:     row.Surcharge,
				Tips:          row.Tips,
				Tolls:         row.Tolls,
				CardFee:       row.CardFee,
			},
		})
	}
	return s.ingest(ctx, batch, records, rowErrs)
}

func (s *Service) ImportViolations(ctx context.Context, r io.Reader) (*importerdomain.ImportBatch, error) {
	batch, err := s.openBatch(ctx, txdomain.SourceViolation)
	if err != nil {
		return nil, err
	}

	rows, rowErrs, err := intake.ParseViolationFeed(r)
	if err != nil {
		return s.finalizeFailed(ctx, batch, err)
	}

	records := make([]*txdomain.TransactionRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, &txdomain.TransactionRecord{
			SourceType:      txdomain.SourceViolation,
			NaturalKey:      row.NaturalKey(),
			TransactionDate: row.IssueDate,
			Violation: txdomain.ViolationData{
				SummonsNumber: row.SummonsNumber,
				PlateNumber:   row.PlateNumber,
				State:         row.State,
				Fine:          row.Fine,
				Penalty:       row.Penalty,
				Reduction:     row.Reduction,
			},
		})
	}
	return s.ingest(ctx, batch, records, rowErrs)
}

func (s *Service) ImportTolls(ctx context.Context, r io.Reader) (*importerdomain.ImportBatch, error) {
	batch, err := s.openBatch(ctx, txdomain.SourceToll)
	if err != nil {
		return nil, err
	}

	rows, rowErrs, err := intake.ParseTollFeed(r)
	if err != nil {
		return s.finalizeFailed(ctx, batch, err)
	}

	records := make([]*txdomain.TransactionRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, &txdomain.TransactionRecord{
			SourceType:      txdomain.SourceToll,
			NaturalKey:      row.NaturalKey(),
			TransactionDate: row.PostedDate,
			Toll: txdomain.TollData{
				TagID:       row.TagID,
				PlateNumber: row.PlateNumber,
				Plaza:       row.Plaza,
				Amount:      row.Amount,
			},
		})
	}
	return s.ingest(ctx, batch, records, rowErrs)
}

// ingest dedups and persists parsed records, then finalizes the batch. Feed
// order is preserved. A database error aborts the run and marks the batch
// failed; already created records stay for the next association pass.
func (s *Service) ingest(
	ctx context.Context,
	batch *importerdomain.ImportBatch,
	records []*txdomain.TransactionRecord,
	rowErrs []intake.RowError,
) (*importerdomain.ImportBatch, error) {

	counters := importerdomain.Counters{}
	for _, rowErr := range rowErrs {
		s.log.Warn("unparseable feed row",
			zap.String("source", string(batch.Source)),
			zap.Int("row", rowErr.Row),
			zap.Error(rowErr.Err),
		)
		counters.AddFailure()
	}

	for _, record := range records {
		duplicate, err := s.naturalKeyExists(ctx, record.SourceType, record.NaturalKey)
		if err != nil {
			return s.finalizeFailedWithCounters(ctx, batch, counters, err)
		}
		if duplicate {
			counters.AddDuplicate()
			continue
		}

		record.ID = s.genID.Generate()
		record.Status = txdomain.StatusImported
		record.ImportBatchID = batch.ID
		record.CreatedAt = s.clock.Now()
		record.UpdatedAt = record.CreatedAt

		if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
			// A concurrent run may have claimed the natural key
			// between the check and the insert.
			if db.IsDuplicateKeyErr(err) {
				counters.AddDuplicate()
				continue
			}
			return s.finalizeFailedWithCounters(ctx, batch, counters, err)
		}
		counters.AddSuccess()
	}

	return s.finalizeBatch(ctx, batch, counters, "")
}

// AssociateRecords resolves imported (and previously failed) records for one
// source. Data failures mark the record failed; an infrastructure error
// aborts the pass.
func (s *Service) AssociateRecords(ctx context.Context, source txdomain.SourceType, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 200
	}

	processed := 0
	var lastID snowflake.ID
	for {
		var records []*txdomain.TransactionRecord
		err := s.db.WithContext(ctx).
			Where("source_type = ? AND status IN ? AND id > ?", source, []txdomain.RecordStatus{
				txdomain.StatusImported,
				txdomain.StatusFailed,
			}, lastID).
			Order("id").
			Limit(batchSize).
			Find(&records).Error
		if err != nil {
			return processed, err
		}
		if len(records) == 0 {
			return processed, nil
		}

		for _, record := range records {
			resolution, reason, err := s.resolver.Resolve(ctx, record)
			if err != nil {
				return processed, err
			}

			if reason != "" {
				if err := txdomain.Fail(record, reason); err != nil {
					return processed, err
				}
			} else {
				resolution.Apply(record)
				if err := txdomain.AdvanceStatus(record, txdomain.StatusAssociated); err != nil {
					return processed, err
				}
				record.FailureReason = nil
			}
			record.UpdatedAt = s.clock.Now()
			if err := s.db.WithContext(ctx).Save(record).Error; err != nil {
				return processed, err
			}
			processed++
			lastID = record.ID
		}

		if len(records) < batchSize {
			return processed, nil
		}
	}
}

// PostRecords posts associated records for one source through the ledger.
// Each record commits independently; an interrupted pass leaves posted
// records terminal and the rest eligible for retry.
func (s *Service) PostRecords(ctx context.Context, source txdomain.SourceType, batchSize int) (PostStats, error) {
	if batchSize <= 0 {
		batchSize = 200
	}

	stats := PostStats{}
	for {
		var records []*txdomain.TransactionRecord
		err := s.db.WithContext(ctx).
			Where("source_type = ? AND status = ?", source, txdomain.StatusAssociated).
			Order("id").
			Limit(batchSize).
			Find(&records).Error
		if err != nil {
			return stats, err
		}
		if len(records) == 0 {
			return stats, nil
		}

		for _, record := range records {
			posting, err := ledgerdomain.PostingForRecord(record)
			if err != nil {
				if !errors.Is(err, ledgerdomain.ErrMissingRequired) {
					return stats, err
				}
				if err := txdomain.Fail(record, ledgerdomain.ErrMissingRequired.Error()); err != nil {
					return stats, err
				}
				record.UpdatedAt = s.clock.Now()
				if err := s.db.WithContext(ctx).Save(record).Error; err != nil {
					return stats, err
				}
				stats.Failed++
				continue
			}

			// Infrastructure errors leave the record associated so the
			// next run retries it.
			_, skipped, err := s.ledger.Post(ctx, posting)
			if err != nil {
				return stats, err
			}

			if err := txdomain.AdvanceStatus(record, txdomain.StatusPosted); err != nil {
				return stats, err
			}
			record.UpdatedAt = s.clock.Now()
			if err := s.db.WithContext(ctx).Save(record).Error; err != nil {
				return stats, err
			}

			if skipped {
				stats.Skipped++
			} else {
				stats.Posted++
			}
		}

		if len(records) < batchSize {
			return stats, nil
		}
	}
}

// ListBatches returns recent batches for the read-only API.
func (s *Service) ListBatches(ctx context.Context, source txdomain.SourceType, limit int) ([]*importerdomain.ImportBatch, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	stmt := s.db.WithContext(ctx).Model(&importerdomain.ImportBatch{})
	if source != "" {
		stmt = stmt.Where("source = ?", source)
	}

	var batches []*importerdomain.ImportBatch
	err := stmt.Order("started_at desc, id desc").Limit(limit).Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}

func (s *Service) naturalKeyExists(ctx context.Context, source txdomain.SourceType, key string) (bool, error) {
	var id snowflake.ID
	err := s.db.WithContext(ctx).Raw(
		`SELECT id FROM transaction_records WHERE source_type = ? AND natural_key = ?`,
		source,
		key,
	).Scan(&id).Error
	if err != nil {
		return false, err
	}
	return id != 0, nil
}

func (s *Service) openBatch(ctx context.Context, source txdomain.SourceType) (*importerdomain.ImportBatch, error) {
	batch := &importerdomain.ImportBatch{
		ID:        s.genID.Generate(),
		Source:    source,
		RunID:     uuid.NewString(),
		StartedAt: s.clock.Now(),
		Status:    importerdomain.BatchInProgress,
		CreatedAt: s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(batch).Error; err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *Service) finalizeBatch(
	ctx context.Context,
	batch *importerdomain.ImportBatch,
	counters importerdomain.Counters,
	errorSummary string,
) (*importerdomain.ImportBatch, error) {

	endedAt := s.clock.Now()
	batch.EndedAt = &endedAt
	batch.Total = counters.Total
	batch.SuccessCount = counters.Success
	batch.DuplicateCount = counters.Duplicate
	batch.FailureCount = counters.Failure
	if errorSummary != "" {
		batch.Status = importerdomain.BatchFailed
		batch.ErrorSummary = errorSummary
	} else {
		batch.Status = counters.Status()
	}

	if err := s.db.WithContext(ctx).Save(batch).Error; err != nil {
		return batch, err
	}

	obsmetrics.Pipeline().IncBatchFinalized(string(batch.Source), string(batch.Status))
	s.log.Info("import batch finalized",
		zap.String("source", string(batch.Source)),
		zap.String("run_id", batch.RunID),
		zap.String("status", string(batch.Status)),
		zap.Int("total", batch.Total),
		zap.Int("success", batch.SuccessCount),
		zap.Int("duplicate", batch.DuplicateCount),
		zap.Int("failure", batch.FailureCount),
	)
	return batch, nil
}

func (s *Service) finalizeFailed(ctx context.Context, batch *importerdomain.ImportBatch, cause error) (*importerdomain.ImportBatch, error) {
	return s.finalizeFailedWithCounters(ctx, batch, importerdomain.Counters{}, cause)
}

func (s *Service) finalizeFailedWithCounters(
	ctx context.Context,
	batch *importerdomain.ImportBatch,
	counters importerdomain.Counters,
	cause error,
) (*importerdomain.ImportBatch, error) {

	if _, err := s.finalizeBatch(ctx, batch, counters, cause.Error()); err != nil {
		return batch, errors.Join(cause, err)
	}
	return batch, cause
}

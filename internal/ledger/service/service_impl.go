package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bigapple/fleetops/internal/clock"
	ledgerdomain "github.com/bigapple/fleetops/internal/ledger/domain"
	obsmetrics "github.com/bigapple/fleetops/internal/observability/metrics"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) ledgerdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ledger.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Post(ctx context.Context, posting ledgerdomain.Posting) (*ledgerdomain.LedgerEntry, bool, error) {
	if err := validatePosting(posting); err != nil {
		return nil, false, err
	}

	entry := &ledgerdomain.LedgerEntry{
		ID:              s.genID.Generate(),
		OwnerDriverID:   posting.OwnerDriverID,
		VehicleID:       posting.VehicleID,
		MedallionID:     posting.MedallionID,
		LeaseID:         posting.LeaseID,
		Category:        posting.Category,
		Direction:       posting.Direction,
		Amount:          posting.Amount,
		SourceType:      posting.SourceType,
		SourceID:        posting.SourceID,
		TransactionDate: posting.TransactionDate.UTC(),
		Description:     posting.Description,
		CreatedAt:       s.clock.Now(),
	}
	entry.PostingRef = makePostingRef(entry.CreatedAt, entry.ID)

	// The existence check and the insert must share one statement so two
	// concurrent runs cannot both insert for the same source id. The
	// unique index on (source_type, source_id) backs the conflict target.
	inserted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).Exec(
			`INSERT INTO ledger_entries (
				id, owner_driver_id, vehicle_id, medallion_id, lease_id,
				category, direction, amount, source_type, source_id,
				transaction_date, description, posting_ref, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (source_type, source_id) DO NOTHING`,
			entry.ID,
			entry.OwnerDriverID,
			entry.VehicleID,
			entry.MedallionID,
			entry.LeaseID,
			string(entry.Category),
			string(entry.Direction),
			entry.Amount,
			entry.SourceType,
			entry.SourceID,
			entry.TransactionDate,
			entry.Description,
			entry.PostingRef,
			entry.CreatedAt,
		)
		if result.Error != nil {
			return result.Error
		}
		inserted = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if !inserted {
		existing, err := s.FindBySource(ctx, posting.SourceType, posting.SourceID)
		if err != nil {
			return nil, true, err
		}
		s.log.Debug("ledger entry already exists",
			zap.String("source_type", posting.SourceType),
			zap.String("source_id", posting.SourceID.String()),
		)
		return existing, true, nil
	}

	obsmetrics.Pipeline().IncEntryPosted(entry.SourceType)
	s.log.Info("ledger entry posted",
		zap.String("posting_ref", entry.PostingRef),
		zap.String("source_type", entry.SourceType),
		zap.String("source_id", entry.SourceID.String()),
		zap.String("category", string(entry.Category)),
		zap.String("direction", string(entry.Direction)),
		zap.String("amount", entry.Amount.StringFixed(2)),
	)
	return entry, false, nil
}

func (s *Service) Reverse(ctx context.Context, entryID snowflake.ID, reason string) (*ledgerdomain.LedgerEntry, error) {
	var original ledgerdomain.LedgerEntry
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM ledger_entries WHERE id = ?`,
		entryID,
	).Scan(&original).Error
	if err != nil {
		return nil, err
	}
	if original.ID == 0 {
		return nil, ledgerdomain.ErrEntryNotFound
	}

	direction := ledgerdomain.DirectionDebit
	if original.Direction == ledgerdomain.DirectionDebit {
		direction = ledgerdomain.DirectionCredit
	}

	description := "Reversal"
	if reason = strings.TrimSpace(reason); reason != "" {
		description = "Reversal: " + reason
	}

	// Reuses the idempotent path: the original entry id is the source id,
	// so a second reversal attempt is a no-op.
	entry, _, err := s.Post(ctx, ledgerdomain.Posting{
		OwnerDriverID:   original.OwnerDriverID,
		VehicleID:       original.VehicleID,
		MedallionID:     original.MedallionID,
		LeaseID:         original.LeaseID,
		Category:        original.Category,
		Direction:       direction,
		Amount:          original.Amount,
		SourceType:      ledgerdomain.SourceTypeReversal,
		SourceID:        original.ID,
		TransactionDate: s.clock.Now(),
		Description:     description,
	})
	return entry, err
}

func (s *Service) FindBySource(ctx context.Context, sourceType string, sourceID snowflake.ID) (*ledgerdomain.LedgerEntry, error) {
	var entry ledgerdomain.LedgerEntry
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM ledger_entries WHERE source_type = ? AND source_id = ?`,
		sourceType,
		sourceID,
	).Scan(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (s *Service) List(ctx context.Context, filter ledgerdomain.ListFilter) ([]*ledgerdomain.LedgerEntry, error) {
	stmt := s.db.WithContext(ctx).Model(&ledgerdomain.LedgerEntry{})
	if filter.DriverID != 0 {
		stmt = stmt.Where("owner_driver_id = ?", filter.DriverID)
	}
	if filter.Category != "" {
		stmt = stmt.Where("category = ?", filter.Category)
	}
	if filter.SourceType != "" {
		stmt = stmt.Where("source_type = ?", filter.SourceType)
	}
	if filter.From != nil {
		stmt = stmt.Where("transaction_date >= ?", *filter.From)
	}
	if filter.To != nil {
		stmt = stmt.Where("transaction_date <= ?", *filter.To)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var entries []*ledgerdomain.LedgerEntry
	err := stmt.
		Order("transaction_date desc, id desc").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func validatePosting(p ledgerdomain.Posting) error {
	if p.OwnerDriverID == 0 {
		return ledgerdomain.ErrMissingOwner
	}
	if strings.TrimSpace(p.SourceType) == "" {
		return ledgerdomain.ErrInvalidSourceType
	}
	if p.SourceID == 0 {
		return ledgerdomain.ErrInvalidSourceID
	}
	if p.Amount.IsNegative() {
		return ledgerdomain.ErrInvalidAmount
	}
	if p.Direction != ledgerdomain.DirectionDebit && p.Direction != ledgerdomain.DirectionCredit {
		return ledgerdomain.ErrInvalidDirection
	}
	if p.Category == "" {
		return ledgerdomain.ErrInvalidCategory
	}
	if p.TransactionDate.IsZero() {
		return ledgerdomain.ErrInvalidOccurredAt
	}
	return nil
}

func makePostingRef(now time.Time, id snowflake.ID) string {
	return fmt.Sprintf("POST-%s-%06d", now.Format("20060102150405"), id.Int64()%1000000)
}

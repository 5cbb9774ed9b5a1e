package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bigapple/fleetops/internal/clock"
	"github.com/bigapple/fleetops/internal/config"
	fleetdomain "github.com/bigapple/fleetops/internal/fleet/domain"
	ledgerdomain "github.com/bigapple/fleetops/internal/ledger/domain"
	settlementdomain "github.com/bigapple/fleetops/internal/settlement/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
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
	Cfg   config.Config
	Fleet fleetdomain.Repository
}

// Service computes weekly per-driver settlement snapshots from posted
// ledger entries. It only reads the ledger.
type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	cfg   config.Config
	fleet fleetdomain.Repository
}

func New(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("settlement.service"),
		genID: p.GenID,
		clock: p.Clock,
		cfg:   p.Cfg,
		fleet: p.Fleet,
	}
}

// Settle aggregates the driver's ledger activity over the window into a
// draft snapshot. Re-running before finalization overwrites the draft with
// identical totals for identical inputs; a finalized window refuses.
func (s *Service) Settle(ctx context.Context, driverID snowflake.ID, periodStart, periodEnd time.Time) (*settlementdomain.SettlementSnapshot, error) {
	existing, err := s.findByWindow(ctx, driverID, periodStart)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.State != settlementdomain.SnapshotDraft {
		return nil, settlementdomain.ErrAlreadyFinalized
	}

	var entries []*ledgerdomain.LedgerEntry
	err = s.db.WithContext(ctx).
		Where("owner_driver_id = ? AND transaction_date >= ? AND transaction_date <= ?",
			driverID, periodStart, periodEnd).
		Order("transaction_date, id").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	// Signed per-category nets: credits positive, debits negative.
	// Reversal entries carry the flipped direction, so they fall out of
	// the same arithmetic.
	byCategory := make(map[ledgerdomain.Category]decimal.Decimal)
	for _, entry := range entries {
		amount := entry.Amount
		if entry.Direction == ledgerdomain.DirectionDebit {
			amount = amount.Neg()
		}
		byCategory[entry.Category] = byCategory[entry.Category].Add(amount)
	}

	snapshot := existing
	if snapshot == nil {
		snapshot = &settlementdomain.SettlementSnapshot{
			ID:            s.genID.Generate(),
			DriverID:      driverID,
			PeriodStart:   periodStart.UTC(),
			PeriodEnd:     periodEnd.UTC(),
			ReceiptNumber: makeReceiptNumber(periodStart, driverID),
			State:         settlementdomain.SnapshotDraft,
			CreatedAt:     s.clock.Now(),
		}
	}

	snapshot.Earnings = byCategory[ledgerdomain.CategoryEarnings]
	snapshot.InterimPayments = byCategory[ledgerdomain.CategoryInterimPayment]
	snapshot.Deposits = byCategory[ledgerdomain.CategoryDeposit]
	snapshot.LeaseDues = byCategory[ledgerdomain.CategoryLease].Neg()
	snapshot.RepairDues = byCategory[ledgerdomain.CategoryRepair].Neg()
	snapshot.LoanDues = byCategory[ledgerdomain.CategoryLoan].Neg()
	snapshot.EZPassDues = byCategory[ledgerdomain.CategoryEZPass].Neg()
	snapshot.PVBDues = byCategory[ledgerdomain.CategoryPVB].Neg()
	snapshot.TLCDues = byCategory[ledgerdomain.CategoryTLC].Neg()
	snapshot.TaxDues = byCategory[ledgerdomain.CategoryTaxes].Neg()
	snapshot.MiscDues = byCategory[ledgerdomain.CategoryMisc].Neg()

	snapshot.TotalCredits = snapshot.Earnings.
		Add(snapshot.InterimPayments).
		Add(snapshot.Deposits)
	snapshot.TotalDebits = snapshot.LeaseDues.
		Add(snapshot.RepairDues).
		Add(snapshot.LoanDues).
		Add(snapshot.EZPassDues).
		Add(snapshot.PVBDues).
		Add(snapshot.TLCDues).
		Add(snapshot.TaxDues).
		Add(snapshot.MiscDues)
	snapshot.Balance = snapshot.TotalCredits.Sub(snapshot.TotalDebits)
	snapshot.UpdatedAt = s.clock.Now()

	if err := s.db.WithContext(ctx).Save(snapshot).Error; err != nil {
		return nil, err
	}

	s.log.Info("settlement snapshot written",
		zap.String("receipt_number", snapshot.ReceiptNumber),
		zap.String("driver_id", driverID.String()),
		zap.String("balance", snapshot.Balance.StringFixed(2)),
		zap.Int("entries", len(entries)),
	)
	return snapshot, nil
}

// SettleAllDrivers runs Settle for every active driver's current pay
// window. Already finalized windows are skipped, not errors.
func (s *Service) SettleAllDrivers(ctx context.Context) (int, error) {
	drivers, err := s.fleet.ListActiveDrivers(ctx, s.db)
	if err != nil {
		return 0, err
	}

	settled := 0
	var errs []error
	for _, driver := range drivers {
		periodStart, periodEnd := PayWindow(s.clock.Now(), time.Weekday(driver.PayDay), s.cfg.SettlementHour)
		_, err := s.Settle(ctx, driver.ID, periodStart, periodEnd)
		if err != nil {
			if errors.Is(err, settlementdomain.ErrAlreadyFinalized) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		settled++
	}
	return settled, errors.Join(errs...)
}

func (s *Service) Finalize(ctx context.Context, snapshotID snowflake.ID) error {
	return s.transition(ctx, snapshotID, settlementdomain.SnapshotFinalized)
}

func (s *Service) MarkPaid(ctx context.Context, snapshotID snowflake.ID) error {
	return s.transition(ctx, snapshotID, settlementdomain.SnapshotPaid)
}

func (s *Service) Void(ctx context.Context, snapshotID snowflake.ID) error {
	return s.transition(ctx, snapshotID, settlementdomain.SnapshotVoided)
}

func (s *Service) transition(ctx context.Context, snapshotID snowflake.ID, to settlementdomain.SnapshotState) error {
	var snapshot settlementdomain.SettlementSnapshot
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM settlement_snapshots WHERE id = ?`,
		snapshotID,
	).Scan(&snapshot).Error
	if err != nil {
		return err
	}
	if snapshot.ID == 0 {
		return settlementdomain.ErrSnapshotNotFound
	}

	if err := settlementdomain.TransitionSnapshot(&snapshot, to); err != nil {
		return err
	}
	now := s.clock.Now()
	if to == settlementdomain.SnapshotFinalized {
		snapshot.FinalizedAt = &now
	}
	snapshot.UpdatedAt = now
	return s.db.WithContext(ctx).Save(&snapshot).Error
}

// List returns recent snapshots for the read-only API.
func (s *Service) List(ctx context.Context, driverID snowflake.ID, limit int) ([]*settlementdomain.SettlementSnapshot, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	stmt := s.db.WithContext(ctx).Model(&settlementdomain.SettlementSnapshot{})
	if driverID != 0 {
		stmt = stmt.Where("driver_id = ?", driverID)
	}

	var snapshots []*settlementdomain.SettlementSnapshot
	err := stmt.Order("period_start desc, id desc").Limit(limit).Find(&snapshots).Error
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (s *Service) findByWindow(ctx context.Context, driverID snowflake.ID, periodStart time.Time) (*settlementdomain.SettlementSnapshot, error) {
	var snapshot settlementdomain.SettlementSnapshot
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM settlement_snapshots WHERE driver_id = ? AND period_start = ?`,
		driverID,
		periodStart.UTC(),
	).Scan(&snapshot).Error
	if err != nil {
		return nil, err
	}
	if snapshot.ID == 0 {
		return nil, nil
	}
	return &snapshot, nil
}

func makeReceiptNumber(periodStart time.Time, driverID snowflake.ID) string {
	return fmt.Sprintf("DTR-%s-%d", periodStart.UTC().Format("20060102"), driverID)
}

package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bigapple/fleetops/internal/clock"
	ledgerdomain "github.com/bigapple/fleetops/internal/ledger/domain"
	repairdomain "github.com/bigapple/fleetops/internal/repair/domain"
	txdomain "github.com/bigapple/fleetops/internal/transaction/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Ledger ledgerdomain.Service
}

// Service owns the repair invoice lifecycle and the weekly posting job.
type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	ledger ledgerdomain.Service
}

func New(p Params) *Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("repair.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		ledger: p.Ledger,
	}
}

type CreateInvoiceInput struct {
	DriverID    snowflake.ID
	VehicleID   snowflake.ID
	MedallionID snowflake.ID
	LeaseID     snowflake.ID
	Principal   decimal.Decimal
	StartWeek   repairdomain.StartWeek
	Description string
}

// CreateInvoice materializes the invoice and its full installment schedule
// atomically. The invoice starts in draft and posts nothing until confirmed.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*repairdomain.RepairInvoice, error) {
	if !input.Principal.IsPositive() {
		return nil, repairdomain.ErrInvalidPrincipal
	}
	if input.DriverID == 0 || input.VehicleID == 0 || input.MedallionID == 0 || input.LeaseID == 0 {
		return nil, repairdomain.ErrMissingOwner
	}
	startWeek := input.StartWeek
	if startWeek != repairdomain.StartWeekNext {
		startWeek = repairdomain.StartWeekCurrent
	}

	now := s.clock.Now()
	weekly := WeeklyRate(input.Principal)
	anchor := paymentPeriodStart(now, startWeek)
	lines, err := GenerateSchedule(input.Principal, weekly, anchor)
	if err != nil {
		return nil, err
	}

	invoice := &repairdomain.RepairInvoice{
		ID:                s.genID.Generate(),
		DriverID:          input.DriverID,
		VehicleID:         input.VehicleID,
		MedallionID:       input.MedallionID,
		LeaseID:           input.LeaseID,
		PrincipalAmount:   input.Principal,
		WeeklyInstallment: weekly,
		Balance:           input.Principal,
		State:             repairdomain.InvoiceDraft,
		StartWeek:         startWeek,
		Description:       strings.TrimSpace(input.Description),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := s.nextInvoiceNumber(ctx, tx, now.Year())
		if err != nil {
			return err
		}
		invoice.InvoiceNumber = number

		if err := tx.WithContext(ctx).Create(invoice).Error; err != nil {
			return err
		}

		for i, line := range lines {
			installment := &repairdomain.RepairInstallment{
				ID:                s.genID.Generate(),
				InvoiceID:         invoice.ID,
				InstallmentNumber: fmt.Sprintf("%s-%02d", invoice.InvoiceNumber, i+1),
				WeekStart:         line.WeekStart,
				WeekEnd:           line.WeekEnd,
				PaymentAmount:     line.PaymentAmount,
				PriorBalance:      line.PriorBalance,
				Balance:           line.Balance,
				State:             repairdomain.InstallmentScheduled,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if err := tx.WithContext(ctx).Create(installment).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("repair invoice created",
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("principal", invoice.PrincipalAmount.StringFixed(2)),
		zap.String("weekly", invoice.WeeklyInstallment.StringFixed(2)),
		zap.Int("installments", len(lines)),
	)
	return invoice, nil
}

func (s *Service) Confirm(ctx context.Context, invoiceID snowflake.ID) error {
	return s.transition(ctx, invoiceID, repairdomain.InvoiceOpen, nil)
}

func (s *Service) Hold(ctx context.Context, invoiceID snowflake.ID) error {
	return s.transition(ctx, invoiceID, repairdomain.InvoiceHold, nil)
}

func (s *Service) Release(ctx context.Context, invoiceID snowflake.ID) error {
	return s.transition(ctx, invoiceID, repairdomain.InvoiceOpen, nil)
}

// Cancel refuses once any installment has posted.
func (s *Service) Cancel(ctx context.Context, invoiceID snowflake.ID) error {
	return s.transition(ctx, invoiceID, repairdomain.InvoiceCancelled, func(ctx context.Context, invoice *repairdomain.RepairInvoice) error {
		var posted int64
		err := s.db.WithContext(ctx).
			Model(&repairdomain.RepairInstallment{}).
			Where("invoice_id = ? AND state IN ?", invoice.ID, []repairdomain.InstallmentState{
				repairdomain.InstallmentPosted,
				repairdomain.InstallmentPaid,
			}).
			Count(&posted).Error
		if err != nil {
			return err
		}
		if posted > 0 {
			return repairdomain.ErrHasPostedInstallment
		}
		return nil
	})
}

func (s *Service) transition(
	ctx context.Context,
	invoiceID snowflake.ID,
	to repairdomain.InvoiceState,
	guard func(context.Context, *repairdomain.RepairInvoice) error,
) error {

	invoice, err := s.FindInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	if invoice == nil {
		return repairdomain.ErrInvoiceNotFound
	}
	if guard != nil {
		if err := guard(ctx, invoice); err != nil {
			return err
		}
	}
	if err := repairdomain.TransitionInvoice(invoice, to); err != nil {
		return err
	}
	invoice.UpdatedAt = s.clock.Now()
	return s.db.WithContext(ctx).Save(invoice).Error
}

func (s *Service) FindInvoice(ctx context.Context, invoiceID snowflake.ID) (*repairdomain.RepairInvoice, error) {
	var invoice repairdomain.RepairInvoice
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM repair_invoices WHERE id = ?`,
		invoiceID,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (s *Service) ListInstallments(ctx context.Context, invoiceID snowflake.ID) ([]*repairdomain.RepairInstallment, error) {
	var installments []*repairdomain.RepairInstallment
	err := s.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("week_start, id").
		Find(&installments).Error
	if err != nil {
		return nil, err
	}
	return installments, nil
}

// PostStats summarizes one posting run.
type PostStats struct {
	Posted  int
	Skipped int
}

// PostDueInstallments posts every scheduled installment whose week has
// started, through the shared ledger poster. Installments of held or
// cancelled invoices are skipped and picked up again once the invoice is
// released.
func (s *Service) PostDueInstallments(ctx context.Context) (PostStats, error) {
	now := s.clock.Now()
	stats := PostStats{}

	var due []*repairdomain.RepairInstallment
	err := s.db.WithContext(ctx).
		Where("state = ? AND week_start <= ?", repairdomain.InstallmentScheduled, now).
		Order("week_start, id").
		Find(&due).Error
	if err != nil {
		return stats, err
	}

	invoices := make(map[snowflake.ID]*repairdomain.RepairInvoice)
	for _, installment := range due {
		invoice, ok := invoices[installment.InvoiceID]
		if !ok {
			invoice, err = s.FindInvoice(ctx, installment.InvoiceID)
			if err != nil {
				return stats, err
			}
			invoices[installment.InvoiceID] = invoice
			if invoice == nil {
				s.log.Warn("installment references missing invoice",
					zap.String("installment_number", installment.InstallmentNumber),
					zap.Int64("invoice_id", int64(installment.InvoiceID)),
				)
			}
		}
		// An orphaned installment must not starve the rest of the run.
		if invoice == nil {
			stats.Skipped++
			continue
		}

		if invoice.State != repairdomain.InvoiceOpen {
			stats.Skipped++
			continue
		}

		if err := s.postInstallment(ctx, invoice, installment); err != nil {
			return stats, err
		}
		stats.Posted++

		if err := s.maybeClose(ctx, invoice); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

func (s *Service) postInstallment(
	ctx context.Context,
	invoice *repairdomain.RepairInvoice,
	installment *repairdomain.RepairInstallment,
) error {

	record, err := s.findOrCreateInstallmentRecord(ctx, invoice, installment)
	if err != nil {
		return err
	}

	posting, err := ledgerdomain.PostingForRecord(record)
	if err != nil {
		return err
	}

	entry, skipped, err := s.ledger.Post(ctx, posting)
	if err != nil {
		return err
	}
	if entry == nil {
		return ledgerdomain.ErrEntryNotFound
	}

	if record.Status != txdomain.StatusPosted {
		if err := txdomain.AdvanceStatus(record, txdomain.StatusPosted); err != nil {
			return err
		}
		record.UpdatedAt = s.clock.Now()
		if err := s.db.WithContext(ctx).Save(record).Error; err != nil {
			return err
		}
	}

	installment.State = repairdomain.InstallmentPosted
	installment.LedgerPostingRef = &entry.PostingRef
	installment.UpdatedAt = s.clock.Now()
	if err := s.db.WithContext(ctx).Save(installment).Error; err != nil {
		return err
	}

	balance := invoice.Balance.Sub(installment.PaymentAmount)
	if balance.IsNegative() {
		balance = decimal.Zero
	}
	invoice.Balance = balance
	invoice.UpdatedAt = s.clock.Now()
	if err := s.db.WithContext(ctx).Save(invoice).Error; err != nil {
		return err
	}

	s.log.Info("repair installment posted",
		zap.String("installment_number", installment.InstallmentNumber),
		zap.String("amount", installment.PaymentAmount.StringFixed(2)),
		zap.String("invoice_balance", invoice.Balance.StringFixed(2)),
		zap.Bool("ledger_skipped", skipped),
	)
	return nil
}

// findOrCreateInstallmentRecord reuses an existing record so a run
// interrupted between posting and installment update stays idempotent.
func (s *Service) findOrCreateInstallmentRecord(
	ctx context.Context,
	invoice *repairdomain.RepairInvoice,
	installment *repairdomain.RepairInstallment,
) (*txdomain.TransactionRecord, error) {

	var existing txdomain.TransactionRecord
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM transaction_records WHERE source_type = ? AND natural_key = ?`,
		txdomain.SourceInstallment,
		installment.InstallmentNumber,
	).Scan(&existing).Error
	if err != nil {
		return nil, err
	}
	if existing.ID != 0 {
		return &existing, nil
	}

	now := s.clock.Now()
	driverID := invoice.DriverID
	vehicleID := invoice.VehicleID
	medallionID := invoice.MedallionID
	leaseID := invoice.LeaseID
	record := &txdomain.TransactionRecord{
		ID:              s.genID.Generate(),
		SourceType:      txdomain.SourceInstallment,
		NaturalKey:      installment.InstallmentNumber,
		Status:          txdomain.StatusAssociated,
		TransactionDate: installment.WeekStart,
		DriverID:        &driverID,
		VehicleID:       &vehicleID,
		MedallionID:     &medallionID,
		LeaseID:         &leaseID,
		Installment: txdomain.InstallmentData{
			InvoiceID:     invoice.ID,
			InstallmentID: installment.ID,
			Amount:        installment.PaymentAmount,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// maybeClose auto-closes the invoice once every installment is posted or
// paid and the balance is within rounding of zero.
func (s *Service) maybeClose(ctx context.Context, invoice *repairdomain.RepairInvoice) error {
	var open int64
	err := s.db.WithContext(ctx).
		Model(&repairdomain.RepairInstallment{}).
		Where("invoice_id = ? AND state NOT IN ?", invoice.ID, []repairdomain.InstallmentState{
			repairdomain.InstallmentPosted,
			repairdomain.InstallmentPaid,
		}).
		Count(&open).Error
	if err != nil {
		return err
	}
	if open > 0 || invoice.Balance.GreaterThan(roundingEpsilon) {
		return nil
	}

	if err := repairdomain.TransitionInvoice(invoice, repairdomain.InvoiceClosed); err != nil {
		return err
	}
	invoice.UpdatedAt = s.clock.Now()
	if err := s.db.WithContext(ctx).Save(invoice).Error; err != nil {
		return err
	}

	s.log.Info("repair invoice closed",
		zap.String("invoice_number", invoice.InvoiceNumber),
	)
	return nil
}

func (s *Service) nextInvoiceNumber(ctx context.Context, tx *gorm.DB, year int) (string, error) {
	var count int64
	err := tx.WithContext(ctx).
		Model(&repairdomain.RepairInvoice{}).
		Where("invoice_number LIKE ?", fmt.Sprintf("VRPR-%d-%%", year)).
		Count(&count).Error
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("VRPR-%d-%03d", year, count+1), nil
}

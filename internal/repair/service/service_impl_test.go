package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bigapple/fleetops/internal/clock"
	ledgerdomain "github.com/bigapple/fleetops/internal/ledger/domain"
	ledgerservice "github.com/bigapple/fleetops/internal/ledger/service"
	repairdomain "github.com/bigapple/fleetops/internal/repair/domain"
	txdomain "github.com/bigapple/fleetops/internal/transaction/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupRepairTest(t *testing.T) (*Service, *gorm.DB, *snowflake.Node, *clock.FakeClock) {
	t.Helper()

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&repairdomain.RepairInvoice{},
		&repairdomain.RepairInstallment{},
		&txdomain.TransactionRecord{},
		&ledgerdomain.LedgerEntry{},
	))
	require.NoError(t, db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_ledger_entries_source ON ledger_entries(source_type, source_id)",
	).Error)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	// Wednesday March 12, 2025; the current payment period began Sunday
	// March 9.
	fake := clock.NewFakeClock(time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC))

	ledgerSvc := ledgerservice.New(ledgerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
	})
	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fake,
		Ledger: ledgerSvc,
	})
	return svc, db, node, fake
}

func createTestInvoice(t *testing.T, svc *Service, node *snowflake.Node, principal string, startWeek repairdomain.StartWeek) *repairdomain.RepairInvoice {
	t.Helper()
	invoice, err := svc.CreateInvoice(context.Background(), CreateInvoiceInput{
		DriverID:    node.Generate(),
		VehicleID:   node.Generate(),
		MedallionID: node.Generate(),
		LeaseID:     node.Generate(),
		Principal:   decimal.RequireFromString(principal),
		StartWeek:   startWeek,
		Description: "body work",
	})
	require.NoError(t, err)
	return invoice
}

func TestCreateInvoice_MaterializesSchedule(t *testing.T) {
	svc, _, node, _ := setupRepairTest(t)
	ctx := context.Background()

	invoice := createTestInvoice(t, svc, node, "1200.00", repairdomain.StartWeekCurrent)
	assert.Equal(t, repairdomain.InvoiceDraft, invoice.State)
	assert.Equal(t, "VRPR-2025-001", invoice.InvoiceNumber)
	assert.True(t, invoice.WeeklyInstallment.Equal(decimal.NewFromInt(250)))
	assert.True(t, invoice.Balance.Equal(invoice.PrincipalAmount))

	installments, err := svc.ListInstallments(ctx, invoice.ID)
	require.NoError(t, err)
	require.Len(t, installments, 5)
	assert.Equal(t, "VRPR-2025-001-01", installments[0].InstallmentNumber)
	assert.Equal(t, "VRPR-2025-001-05", installments[4].InstallmentNumber)
	assert.Equal(t, time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC), installments[0].WeekStart.UTC())
	assert.True(t, installments[4].PaymentAmount.Equal(decimal.NewFromInt(200)))

	for _, installment := range installments {
		assert.Equal(t, repairdomain.InstallmentScheduled, installment.State)
	}
}

func TestCreateInvoice_SequentialNumbers(t *testing.T) {
	svc, _, node, _ := setupRepairTest(t)

	first := createTestInvoice(t, svc, node, "500.00", repairdomain.StartWeekCurrent)
	second := createTestInvoice(t, svc, node, "800.00", repairdomain.StartWeekCurrent)
	assert.Equal(t, "VRPR-2025-001", first.InvoiceNumber)
	assert.Equal(t, "VRPR-2025-002", second.InvoiceNumber)
}

func TestCreateInvoice_Validation(t *testing.T) {
	svc, _, node, _ := setupRepairTest(t)
	ctx := context.Background()

	_, err := svc.CreateInvoice(ctx, CreateInvoiceInput{
		DriverID:    node.Generate(),
		VehicleID:   node.Generate(),
		MedallionID: node.Generate(),
		LeaseID:     node.Generate(),
		Principal:   decimal.Zero,
	})
	assert.ErrorIs(t, err, repairdomain.ErrInvalidPrincipal)

	_, err = svc.CreateInvoice(ctx, CreateInvoiceInput{
		DriverID:  node.Generate(),
		Principal: decimal.NewFromInt(300),
	})
	assert.ErrorIs(t, err, repairdomain.ErrMissingOwner)
}

func TestPostDueInstallments_DraftPostsNothing(t *testing.T) {
	svc, _, node, _ := setupRepairTest(t)
	ctx := context.Background()

	createTestInvoice(t, svc, node, "600.00", repairdomain.StartWeekCurrent)

	stats, err := svc.PostDueInstallments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Posted)
	assert.Equal(t, 1, stats.Skipped)
}

func TestPostDueInstallments_PostsDueWeeks(t *testing.T) {
	svc, db, node, fake := setupRepairTest(t)
	ctx := context.Background()

	invoice := createTestInvoice(t, svc, node, "600.00", repairdomain.StartWeekCurrent)
	require.NoError(t, svc.Confirm(ctx, invoice.ID))

	// Only the first week is due at the anchor date.
	stats, err := svc.PostDueInstallments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Posted)

	updated, err := svc.FindInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	assert.True(t, updated.Balance.Equal(decimal.NewFromInt(400)))
	assert.Equal(t, repairdomain.InvoiceOpen, updated.State)

	installments, err := svc.ListInstallments(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, repairdomain.InstallmentPosted, installments[0].State)
	require.NotNil(t, installments[0].LedgerPostingRef)
	assert.Equal(t, repairdomain.InstallmentScheduled, installments[1].State)

	var entries []*ledgerdomain.LedgerEntry
	require.NoError(t, db.Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, ledgerdomain.CategoryRepair, entries[0].Category)
	assert.Equal(t, ledgerdomain.DirectionDebit, entries[0].Direction)
	assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, invoice.DriverID, entries[0].OwnerDriverID)

	// A week later the next installment falls due; the first stays posted.
	fake.Advance(7 * 24 * time.Hour)
	stats, err = svc.PostDueInstallments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Posted)

	require.NoError(t, db.Find(&entries).Error)
	assert.Len(t, entries, 2)
}

func TestPostDueInstallments_RerunIsIdempotent(t *testing.T) {
	svc, db, node, _ := setupRepairTest(t)
	ctx := context.Background()

	invoice := createTestInvoice(t, svc, node, "600.00", repairdomain.StartWeekCurrent)
	require.NoError(t, svc.Confirm(ctx, invoice.ID))

	_, err := svc.PostDueInstallments(ctx)
	require.NoError(t, err)
	stats, err := svc.PostDueInstallments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Posted)

	var count int64
	require.NoError(t, db.Model(&ledgerdomain.LedgerEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	updated, err := svc.FindInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	assert.True(t, updated.Balance.Equal(decimal.NewFromInt(400)))
}

func TestPostDueInstallments_AutoClosesOnFinalInstallment(t *testing.T) {
	svc, _, node, fake := setupRepairTest(t)
	ctx := context.Background()

	invoice := createTestInvoice(t, svc, node, "150.00", repairdomain.StartWeekCurrent)
	require.NoError(t, svc.Confirm(ctx, invoice.ID))

	stats, err := svc.PostDueInstallments(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Posted)

	updated, err := svc.FindInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, repairdomain.InvoiceClosed, updated.State)
	assert.True(t, updated.Balance.IsZero())

	// Nothing left after close, no matter how far the clock moves.
	fake.Advance(30 * 24 * time.Hour)
	stats, err = svc.PostDueInstallments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Posted)
}

func TestPostDueInstallments_HoldSkipsAndReleaseResumes(t *testing.T) {
	svc, _, node, _ := setupRepairTest(t)
	ctx := context.Background()

	invoice := createTestInvoice(t, svc, node, "600.00", repairdomain.StartWeekCurrent)
	require.NoError(t, svc.Confirm(ctx, invoice.ID))
	require.NoError(t, svc.Hold(ctx, invoice.ID))

	stats, err := svc.PostDueInstallments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Posted)
	assert.Equal(t, 1, stats.Skipped)

	require.NoError(t, svc.Release(ctx, invoice.ID))
	stats, err = svc.PostDueInstallments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Posted)
}

func TestPostDueInstallments_OrphanedInstallmentDoesNotStarveRun(t *testing.T) {
	svc, db, node, _ := setupRepairTest(t)
	ctx := context.Background()

	orphaned := createTestInvoice(t, svc, node, "600.00", repairdomain.StartWeekCurrent)
	require.NoError(t, svc.Confirm(ctx, orphaned.ID))
	healthy := createTestInvoice(t, svc, node, "300.00", repairdomain.StartWeekCurrent)
	require.NoError(t, svc.Confirm(ctx, healthy.ID))

	require.NoError(t, db.Exec(
		"DELETE FROM repair_invoices WHERE id = ?", orphaned.ID,
	).Error)

	stats, err := svc.PostDueInstallments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Posted)
	assert.Equal(t, 1, stats.Skipped)

	var entries []*ledgerdomain.LedgerEntry
	require.NoError(t, db.Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, healthy.DriverID, entries[0].OwnerDriverID)
}

func TestCancel_RefusedAfterPosting(t *testing.T) {
	svc, _, node, _ := setupRepairTest(t)
	ctx := context.Background()

	invoice := createTestInvoice(t, svc, node, "600.00", repairdomain.StartWeekCurrent)
	require.NoError(t, svc.Confirm(ctx, invoice.ID))
	_, err := svc.PostDueInstallments(ctx)
	require.NoError(t, err)

	// An open invoice with posted installments can only run to completion.
	require.NoError(t, svc.Hold(ctx, invoice.ID))
	err = svc.Cancel(ctx, invoice.ID)
	assert.ErrorIs(t, err, repairdomain.ErrHasPostedInstallment)
}

func TestCancel_DraftInvoice(t *testing.T) {
	svc, _, node, _ := setupRepairTest(t)
	ctx := context.Background()

	invoice := createTestInvoice(t, svc, node, "600.00", repairdomain.StartWeekCurrent)
	require.NoError(t, svc.Cancel(ctx, invoice.ID))

	updated, err := svc.FindInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, repairdomain.InvoiceCancelled, updated.State)

	err = svc.Confirm(ctx, invoice.ID)
	assert.ErrorIs(t, err, repairdomain.ErrInvalidTransition)
}

func TestStartWeekNext_NothingDueInCurrentWeek(t *testing.T) {
	svc, _, node, fake := setupRepairTest(t)
	ctx := context.Background()

	invoice := createTestInvoice(t, svc, node, "600.00", repairdomain.StartWeekNext)
	require.NoError(t, svc.Confirm(ctx, invoice.ID))

	stats, err := svc.PostDueInstallments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Posted)
	assert.Equal(t, 0, stats.Skipped)

	fake.Advance(7 * 24 * time.Hour)
	stats, err = svc.PostDueInstallments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Posted)
}

func TestPostDueInstallments_RecordCarriesInvoiceRefs(t *testing.T) {
	svc, db, node, _ := setupRepairTest(t)
	ctx := context.Background()

	invoice := createTestInvoice(t, svc, node, "300.00", repairdomain.StartWeekCurrent)
	require.NoError(t, svc.Confirm(ctx, invoice.ID))
	_, err := svc.PostDueInstallments(ctx)
	require.NoError(t, err)

	var record txdomain.TransactionRecord
	require.NoError(t, db.Where("source_type = ?", txdomain.SourceInstallment).First(&record).Error)
	assert.Equal(t, fmt.Sprintf("%s-01", invoice.InvoiceNumber), record.NaturalKey)
	assert.Equal(t, txdomain.StatusPosted, record.Status)
	require.NotNil(t, record.DriverID)
	assert.Equal(t, invoice.DriverID, *record.DriverID)
	assert.Equal(t, invoice.ID, record.Installment.InvoiceID)
}

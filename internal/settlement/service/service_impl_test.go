package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bigapple/fleetops/internal/clock"
	"github.com/bigapple/fleetops/internal/config"
	fleetdomain "github.com/bigapple/fleetops/internal/fleet/domain"
	fleetrepository "github.com/bigapple/fleetops/internal/fleet/repository"
	ledgerdomain "github.com/bigapple/fleetops/internal/ledger/domain"
	settlementdomain "github.com/bigapple/fleetops/internal/settlement/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupSettlementTest(t *testing.T) (*Service, *gorm.DB, *snowflake.Node, *clock.FakeClock) {
	t.Helper()

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&fleetdomain.Driver{},
		&ledgerdomain.LedgerEntry{},
		&settlementdomain.SettlementSnapshot{},
	))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	// Wednesday March 12, 2025.
	fake := clock.NewFakeClock(time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC))

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Cfg:   config.Config{SettlementHour: 5},
		Fleet: fleetrepository.Provide(),
	})
	return svc, db, node, fake
}

func seedEntry(t *testing.T, db *gorm.DB, node *snowflake.Node, driverID snowflake.ID, category ledgerdomain.Category, amount string, at time.Time) {
	t.Helper()
	entry := &ledgerdomain.LedgerEntry{
		ID:              node.Generate(),
		OwnerDriverID:   driverID,
		Category:        category,
		Direction:       ledgerdomain.DirectionForCategory(category),
		Amount:          decimal.RequireFromString(amount),
		SourceType:      "trip",
		SourceID:        node.Generate(),
		TransactionDate: at,
		PostingRef:      "POST-20250312120000-000001",
		CreatedAt:       at,
	}
	require.NoError(t, db.Create(entry).Error)
}

func TestSettle_AggregatesWindow(t *testing.T) {
	svc, db, node, _ := setupSettlementTest(t)
	ctx := context.Background()

	driverID := node.Generate()
	periodStart := time.Date(2025, 3, 9, 5, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 0, 7).Add(-time.Minute)
	inWindow := periodStart.Add(30 * time.Hour)

	seedEntry(t, db, node, driverID, ledgerdomain.CategoryEarnings, "500.00", inWindow)
	seedEntry(t, db, node, driverID, ledgerdomain.CategoryLease, "300.00", inWindow)
	seedEntry(t, db, node, driverID, ledgerdomain.CategoryEZPass, "6.94", inWindow)
	seedEntry(t, db, node, driverID, ledgerdomain.CategoryEZPass, "5.06", inWindow)
	// Outside the window, must not count.
	seedEntry(t, db, node, driverID, ledgerdomain.CategoryEarnings, "999.00", periodStart.Add(-time.Hour))
	// Another driver, must not count.
	seedEntry(t, db, node, node.Generate(), ledgerdomain.CategoryEarnings, "999.00", inWindow)

	snapshot, err := svc.Settle(ctx, driverID, periodStart, periodEnd)
	require.NoError(t, err)

	assert.Equal(t, settlementdomain.SnapshotDraft, snapshot.State)
	assert.Equal(t, "DTR-20250309-"+driverID.String(), snapshot.ReceiptNumber)
	assert.True(t, snapshot.Earnings.Equal(decimal.RequireFromString("500.00")))
	assert.True(t, snapshot.LeaseDues.Equal(decimal.RequireFromString("300.00")))
	assert.True(t, snapshot.EZPassDues.Equal(decimal.RequireFromString("12.00")))
	assert.True(t, snapshot.TotalCredits.Equal(decimal.RequireFromString("500.00")))
	assert.True(t, snapshot.TotalDebits.Equal(decimal.RequireFromString("312.00")))
	assert.True(t, snapshot.Balance.Equal(decimal.RequireFromString("188.00")))
}

func TestSettle_ReversalsNetOut(t *testing.T) {
	svc, db, node, _ := setupSettlementTest(t)
	ctx := context.Background()

	driverID := node.Generate()
	periodStart := time.Date(2025, 3, 9, 5, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 0, 7).Add(-time.Minute)
	inWindow := periodStart.Add(24 * time.Hour)

	seedEntry(t, db, node, driverID, ledgerdomain.CategoryPVB, "115.00", inWindow)
	// Offsetting credit from a reversal.
	entry := &ledgerdomain.LedgerEntry{
		ID:              node.Generate(),
		OwnerDriverID:   driverID,
		Category:        ledgerdomain.CategoryPVB,
		Direction:       ledgerdomain.DirectionCredit,
		Amount:          decimal.RequireFromString("115.00"),
		SourceType:      ledgerdomain.SourceTypeReversal,
		SourceID:        node.Generate(),
		TransactionDate: inWindow.Add(time.Hour),
		PostingRef:      "POST-20250312120000-000002",
		CreatedAt:       inWindow,
	}
	require.NoError(t, db.Create(entry).Error)

	snapshot, err := svc.Settle(ctx, driverID, periodStart, periodEnd)
	require.NoError(t, err)
	assert.True(t, snapshot.PVBDues.IsZero())
	assert.True(t, snapshot.Balance.IsZero())
}

func TestSettle_RerunOverwritesDraft(t *testing.T) {
	svc, db, node, _ := setupSettlementTest(t)
	ctx := context.Background()

	driverID := node.Generate()
	periodStart := time.Date(2025, 3, 9, 5, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 0, 7).Add(-time.Minute)

	seedEntry(t, db, node, driverID, ledgerdomain.CategoryEarnings, "200.00", periodStart.Add(time.Hour))

	first, err := svc.Settle(ctx, driverID, periodStart, periodEnd)
	require.NoError(t, err)

	// Late entry lands in the window before finalization.
	seedEntry(t, db, node, driverID, ledgerdomain.CategoryEarnings, "50.00", periodStart.Add(2*time.Hour))

	second, err := svc.Settle(ctx, driverID, periodStart, periodEnd)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ReceiptNumber, second.ReceiptNumber)
	assert.True(t, second.Earnings.Equal(decimal.RequireFromString("250.00")))

	var count int64
	require.NoError(t, db.Model(&settlementdomain.SettlementSnapshot{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSettle_FinalizedWindowRefuses(t *testing.T) {
	svc, _, node, _ := setupSettlementTest(t)
	ctx := context.Background()

	driverID := node.Generate()
	periodStart := time.Date(2025, 3, 9, 5, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 0, 7).Add(-time.Minute)

	snapshot, err := svc.Settle(ctx, driverID, periodStart, periodEnd)
	require.NoError(t, err)
	require.NoError(t, svc.Finalize(ctx, snapshot.ID))

	_, err = svc.Settle(ctx, driverID, periodStart, periodEnd)
	assert.ErrorIs(t, err, settlementdomain.ErrAlreadyFinalized)
}

func TestTransitions(t *testing.T) {
	svc, _, node, _ := setupSettlementTest(t)
	ctx := context.Background()

	periodStart := time.Date(2025, 3, 9, 5, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 0, 7).Add(-time.Minute)
	snapshot, err := svc.Settle(ctx, node.Generate(), periodStart, periodEnd)
	require.NoError(t, err)

	// Draft cannot be paid directly.
	err = svc.MarkPaid(ctx, snapshot.ID)
	assert.ErrorIs(t, err, settlementdomain.ErrInvalidTransition)

	require.NoError(t, svc.Finalize(ctx, snapshot.ID))
	require.NoError(t, svc.MarkPaid(ctx, snapshot.ID))

	err = svc.Void(ctx, snapshot.ID)
	assert.ErrorIs(t, err, settlementdomain.ErrInvalidTransition)
}

func TestTransition_UnknownSnapshot(t *testing.T) {
	svc, _, node, _ := setupSettlementTest(t)

	err := svc.Finalize(context.Background(), node.Generate())
	assert.ErrorIs(t, err, settlementdomain.ErrSnapshotNotFound)
}

func TestSettleAllDrivers(t *testing.T) {
	svc, db, node, _ := setupSettlementTest(t)
	ctx := context.Background()

	monday := &fleetdomain.Driver{
		ID:               node.Generate(),
		TLCLicenseNumber: "5312876",
		PayDay:           int(time.Monday),
		Status:           fleetdomain.StatusActive,
	}
	sunday := &fleetdomain.Driver{
		ID:               node.Generate(),
		TLCLicenseNumber: "5312877",
		PayDay:           int(time.Sunday),
		Status:           fleetdomain.StatusActive,
	}
	inactive := &fleetdomain.Driver{
		ID:               node.Generate(),
		TLCLicenseNumber: "5312878",
		Status:           fleetdomain.StatusInactive,
	}
	for _, driver := range []*fleetdomain.Driver{monday, sunday, inactive} {
		require.NoError(t, db.Create(driver).Error)
	}

	seedEntry(t, db, node, monday.ID, ledgerdomain.CategoryEarnings, "320.00",
		time.Date(2025, 3, 11, 12, 0, 0, 0, time.UTC))

	settled, err := svc.SettleAllDrivers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, settled)

	snapshots, err := svc.List(ctx, monday.ID, 10)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, time.Date(2025, 3, 10, 5, 0, 0, 0, time.UTC), snapshots[0].PeriodStart.UTC())
	assert.True(t, snapshots[0].Earnings.Equal(decimal.RequireFromString("320.00")))

	none, err := svc.List(ctx, inactive.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	// A second sweep rewrites the same drafts, no new rows.
	settled, err = svc.SettleAllDrivers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, settled)

	var count int64
	require.NoError(t, db.Model(&settlementdomain.SettlementSnapshot{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

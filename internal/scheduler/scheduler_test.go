package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bigapple/fleetops/internal/clock"
	"github.com/bigapple/fleetops/internal/config"
	fleetdomain "github.com/bigapple/fleetops/internal/fleet/domain"
	fleetrepository "github.com/bigapple/fleetops/internal/fleet/repository"
	"github.com/bigapple/fleetops/internal/fleet/resolver"
	importerdomain "github.com/bigapple/fleetops/internal/importer/domain"
	importersvc "github.com/bigapple/fleetops/internal/importer/service"
	ledgerdomain "github.com/bigapple/fleetops/internal/ledger/domain"
	ledgerservice "github.com/bigapple/fleetops/internal/ledger/service"
	repairdomain "github.com/bigapple/fleetops/internal/repair/domain"
	repairsvc "github.com/bigapple/fleetops/internal/repair/service"
	settlementdomain "github.com/bigapple/fleetops/internal/settlement/domain"
	settlementsvc "github.com/bigapple/fleetops/internal/settlement/service"
	txdomain "github.com/bigapple/fleetops/internal/transaction/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupSchedulerTest(t *testing.T) (*Scheduler, *gorm.DB, *snowflake.Node, string) {
	t.Helper()

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&fleetdomain.Driver{},
		&fleetdomain.Vehicle{},
		&fleetdomain.Medallion{},
		&fleetdomain.VehicleRegistration{},
		&fleetdomain.Lease{},
		&importerdomain.ImportBatch{},
		&repairdomain.RepairInvoice{},
		&repairdomain.RepairInstallment{},
		&txdomain.TransactionRecord{},
		&ledgerdomain.LedgerEntry{},
		&settlementdomain.SettlementSnapshot{},
	))
	require.NoError(t, db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_ledger_entries_source ON ledger_entries(source_type, source_id)",
	).Error)

	node, err := snowflake.NewNode(6)
	require.NoError(t, err)

	// Wednesday March 12, 2025.
	fake := clock.NewFakeClock(time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	repo := fleetrepository.Provide()
	cfg := config.Config{SettlementHour: 5}

	ledgerSvc := ledgerservice.New(ledgerservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake,
	})
	importerSvc := importersvc.New(importersvc.Params{
		DB: db, Log: log, GenID: node, Clock: fake,
		Resolver: resolver.New(resolver.Params{DB: db, Log: log, Repo: repo}),
		Ledger:   ledgerSvc,
	})
	repairSvc := repairsvc.New(repairsvc.Params{
		DB: db, Log: log, GenID: node, Clock: fake, Ledger: ledgerSvc,
	})
	settlementSvc := settlementsvc.New(settlementsvc.Params{
		DB: db, Log: log, GenID: node, Clock: fake, Cfg: cfg, Fleet: repo,
	})

	feedDir := t.TempDir()
	for _, sub := range []string{"trips", "violations", "tolls"} {
		require.NoError(t, os.MkdirAll(filepath.Join(feedDir, sub), 0o755))
	}

	sched, err := New(Params{
		DB:            db,
		Log:           log,
		GenID:         node,
		Clock:         fake,
		ImporterSvc:   importerSvc,
		RepairSvc:     repairSvc,
		SettlementSvc: settlementSvc,
		Config: Config{
			BatchSize:  50,
			JobTimeout: time.Minute,
			FeedDir:    feedDir,
		},
	})
	require.NoError(t, err)
	return sched, db, node, feedDir
}

func seedSchedulerFleet(t *testing.T, db *gorm.DB, node *snowflake.Node) *fleetdomain.Driver {
	t.Helper()

	driver := &fleetdomain.Driver{
		ID:               node.Generate(),
		TLCLicenseNumber: "5312876",
		PayDay:           int(time.Monday),
		Status:           fleetdomain.StatusActive,
	}
	vehicle := &fleetdomain.Vehicle{
		ID:          node.Generate(),
		PlateNumber: "T505123C",
		Status:      fleetdomain.StatusActive,
	}
	vehicleID := vehicle.ID
	medallion := &fleetdomain.Medallion{
		ID:              node.Generate(),
		MedallionNumber: "4J77",
		VehicleID:       &vehicleID,
		Status:          fleetdomain.StatusActive,
	}
	lease := &fleetdomain.Lease{
		ID:          node.Generate(),
		DriverID:    driver.ID,
		VehicleID:   vehicle.ID,
		MedallionID: medallion.ID,
		StartDate:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:      fleetdomain.StatusActive,
	}
	registration := &fleetdomain.VehicleRegistration{
		ID:            node.Generate(),
		PlateNumber:   "T505123C",
		VehicleID:     vehicle.ID,
		EffectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:        fleetdomain.StatusActive,
	}
	for _, row := range []any{driver, vehicle, medallion, lease, registration} {
		require.NoError(t, db.Create(row).Error)
	}
	return driver
}

func writeFeedFile(t *testing.T, feedDir, sub, name, content string) string {
	t.Helper()
	path := filepath.Join(feedDir, sub, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const schedulerTripFeed = `<TripFeed period="2025-W11">
  <Trip>
    <RecordID>TRP-1001</RecordID>
    <CabNumber>4J77</CabNumber>
    <DriverLicense>5312876</DriverLicense>
    <PaymentType>card</PaymentType>
    <TripDate>2025-03-10 14:32:05</TripDate>
    <Fare>18.50</Fare>
    <Surcharge>2.50</Surcharge>
    <Tips>4.00</Tips>
    <CardFee>0.75</CardFee>
  </Trip>
</TripFeed>`

const schedulerTollFeed = "tag_id,plate,plaza,posted_date,amount\n" +
	"00412345601,T505123C,RFK Bridge,2025-03-11 06:15:00,6.94\n"

func TestRunOnce_FullPipeline(t *testing.T) {
	sched, db, node, feedDir := setupSchedulerTest(t)
	ctx := context.Background()
	driver := seedSchedulerFleet(t, db, node)

	tripPath := writeFeedFile(t, feedDir, "trips", "trips_2025w11.xml", schedulerTripFeed)
	tollPath := writeFeedFile(t, feedDir, "tolls", "tolls_20250311.csv", schedulerTollFeed)

	require.NoError(t, sched.RunOnce(ctx))

	// Files are renamed once imported.
	_, err := os.Stat(tripPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(tripPath + ".done")
	assert.NoError(t, err)
	_, err = os.Stat(tollPath + ".done")
	assert.NoError(t, err)

	// One pass carries records all the way to the ledger.
	var entries []*ledgerdomain.LedgerEntry
	require.NoError(t, db.Find(&entries).Error)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, driver.ID, entry.OwnerDriverID)
	}

	var records []*txdomain.TransactionRecord
	require.NoError(t, db.Find(&records).Error)
	require.Len(t, records, 2)
	for _, record := range records {
		assert.Equal(t, txdomain.StatusPosted, record.Status)
	}

	// And writes the driver's draft settlement for the current window.
	var snapshots []*settlementdomain.SettlementSnapshot
	require.NoError(t, db.Find(&snapshots).Error)
	require.Len(t, snapshots, 1)
	assert.Equal(t, driver.ID, snapshots[0].DriverID)
	assert.Equal(t, settlementdomain.SnapshotDraft, snapshots[0].State)
}

func TestRunOnce_RerunIsIdempotent(t *testing.T) {
	sched, db, node, feedDir := setupSchedulerTest(t)
	ctx := context.Background()
	seedSchedulerFleet(t, db, node)

	writeFeedFile(t, feedDir, "trips", "trips.xml", schedulerTripFeed)
	require.NoError(t, sched.RunOnce(ctx))
	require.NoError(t, sched.RunOnce(ctx))

	var entryCount, snapshotCount int64
	require.NoError(t, db.Model(&ledgerdomain.LedgerEntry{}).Count(&entryCount).Error)
	require.NoError(t, db.Model(&settlementdomain.SettlementSnapshot{}).Count(&snapshotCount).Error)
	assert.Equal(t, int64(1), entryCount)
	assert.Equal(t, int64(1), snapshotCount)
}

func TestRunOnce_DisabledJobsSkipped(t *testing.T) {
	sched, db, node, feedDir := setupSchedulerTest(t)
	ctx := context.Background()
	seedSchedulerFleet(t, db, node)
	sched.cfg.DisabledJobs = []string{"post_records", "settle_drivers"}

	writeFeedFile(t, feedDir, "trips", "trips.xml", schedulerTripFeed)
	require.NoError(t, sched.RunOnce(ctx))

	var record txdomain.TransactionRecord
	require.NoError(t, db.First(&record).Error)
	assert.Equal(t, txdomain.StatusAssociated, record.Status)

	var entryCount int64
	require.NoError(t, db.Model(&ledgerdomain.LedgerEntry{}).Count(&entryCount).Error)
	assert.Equal(t, int64(0), entryCount)
}

func TestRunOnce_EmptyFeedDir(t *testing.T) {
	sched, db, _, _ := setupSchedulerTest(t)

	require.NoError(t, sched.RunOnce(context.Background()))

	var batchCount int64
	require.NoError(t, db.Model(&importerdomain.ImportBatch{}).Count(&batchCount).Error)
	assert.Equal(t, int64(0), batchCount)
}

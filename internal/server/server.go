package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bigapple/fleetops/internal/config"
	"github.com/bigapple/fleetops/internal/fleet"
	"github.com/bigapple/fleetops/internal/importer"
	importersvc "github.com/bigapple/fleetops/internal/importer/service"
	"github.com/bigapple/fleetops/internal/ledger"
	ledgerdomain "github.com/bigapple/fleetops/internal/ledger/domain"
	obsmiddleware "github.com/bigapple/fleetops/internal/observability/logger"
	"github.com/bigapple/fleetops/internal/repair"
	repairsvc "github.com/bigapple/fleetops/internal/repair/service"
	"github.com/bigapple/fleetops/internal/settlement"
	settlementsvc "github.com/bigapple/fleetops/internal/settlement/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fleet.Module,
	importer.Module,
	ledger.Module,
	repair.Module,
	settlement.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// Server exposes the back-office API: batch history, ledger queries,
// repair invoice management and settlement review. The pipeline itself
// runs in the scheduler, not behind these routes.
type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	importerSvc   *importersvc.Service
	ledgerSvc     ledgerdomain.Service
	repairSvc     *repairsvc.Service
	settlementSvc *settlementsvc.Service
}

type ServerParams struct {
	fx.In

	Engine        *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	ImporterSvc   *importersvc.Service
	LedgerSvc     ledgerdomain.Service
	RepairSvc     *repairsvc.Service
	SettlementSvc *settlementsvc.Service
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:        p.Engine,
		cfg:           p.Cfg,
		log:           p.Log.Named("server"),
		importerSvc:   p.ImporterSvc,
		ledgerSvc:     p.LedgerSvc,
		repairSvc:     p.RepairSvc,
		settlementSvc: p.SettlementSvc,
	}
}

func registerRoutes(s *Server) {
	v1 := s.engine.Group("/v1")

	v1.GET("/import-batches", s.listImportBatches)

	v1.GET("/ledger-entries", s.listLedgerEntries)
	v1.POST("/ledger-entries/:id/reverse", s.reverseLedgerEntry)

	v1.POST("/repair-invoices", s.createRepairInvoice)
	v1.GET("/repair-invoices/:id", s.getRepairInvoice)
	v1.POST("/repair-invoices/:id/confirm", s.confirmRepairInvoice)
	v1.POST("/repair-invoices/:id/hold", s.holdRepairInvoice)
	v1.POST("/repair-invoices/:id/release", s.releaseRepairInvoice)
	v1.POST("/repair-invoices/:id/cancel", s.cancelRepairInvoice)

	v1.GET("/settlements", s.listSettlements)
	v1.POST("/settlements/:id/finalize", s.finalizeSettlement)
	v1.POST("/settlements/:id/pay", s.paySettlement)
	v1.POST("/settlements/:id/void", s.voidSettlement)
}

func run(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			s.log.Info("http server started", zap.String("addr", s.cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

package server

import (
	"context"
	"net/http"

	repairdomain "github.com/bigapple/fleetops/internal/repair/domain"
	repairsvc "github.com/bigapple/fleetops/internal/repair/service"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type createRepairInvoiceRequest struct {
	DriverID    string `json:"driver_id"`
	VehicleID   string `json:"vehicle_id"`
	MedallionID string `json:"medallion_id"`
	LeaseID     string `json:"lease_id"`
	Principal   string `json:"principal"`
	StartWeek   string `json:"start_week"`
	Description string `json:"description"`
}

func (s *Server) createRepairInvoice(c *gin.Context) {
	var req createRepairInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(ErrInvalidRequest)
		return
	}

	principal, err := decimal.NewFromString(req.Principal)
	if err != nil {
		_ = c.Error(ErrInvalidRequest)
		return
	}

	startWeek := repairdomain.StartWeek(req.StartWeek)
	switch startWeek {
	case "":
		startWeek = repairdomain.StartWeekCurrent
	case repairdomain.StartWeekCurrent, repairdomain.StartWeekNext:
	default:
		_ = c.Error(ErrInvalidRequest)
		return
	}

	input := repairsvc.CreateInvoiceInput{
		Principal:   principal,
		StartWeek:   startWeek,
		Description: req.Description,
	}

	ids := []struct {
		raw string
		dst *snowflake.ID
	}{
		{req.DriverID, &input.DriverID},
		{req.VehicleID, &input.VehicleID},
		{req.MedallionID, &input.MedallionID},
		{req.LeaseID, &input.LeaseID},
	}
	for _, id := range ids {
		parsed, err := parseOptionalSnowflakeID(id.raw)
		if err != nil {
			_ = c.Error(ErrInvalidRequest)
			return
		}
		if parsed != nil {
			*id.dst = *parsed
		}
	}

	invoice, err := s.repairSvc.CreateInvoice(c.Request.Context(), input)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"repair_invoice": invoice})
}

func (s *Server) getRepairInvoice(c *gin.Context) {
	invoiceID, err := parseRequiredSnowflakeID(c.Param("id"))
	if err != nil {
		_ = c.Error(ErrInvalidRequest)
		return
	}

	invoice, err := s.repairSvc.FindInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	installments, err := s.repairSvc.ListInstallments(c.Request.Context(), invoiceID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"repair_invoice": invoice,
		"installments":   installments,
	})
}

func (s *Server) confirmRepairInvoice(c *gin.Context) {
	s.transitionRepairInvoice(c, s.repairSvc.Confirm)
}

func (s *Server) holdRepairInvoice(c *gin.Context) {
	s.transitionRepairInvoice(c, s.repairSvc.Hold)
}

func (s *Server) releaseRepairInvoice(c *gin.Context) {
	s.transitionRepairInvoice(c, s.repairSvc.Release)
}

func (s *Server) cancelRepairInvoice(c *gin.Context) {
	s.transitionRepairInvoice(c, s.repairSvc.Cancel)
}

func (s *Server) transitionRepairInvoice(c *gin.Context, fn func(context.Context, snowflake.ID) error) {
	invoiceID, err := parseRequiredSnowflakeID(c.Param("id"))
	if err != nil {
		_ = c.Error(ErrInvalidRequest)
		return
	}

	if err := fn(c.Request.Context(), invoiceID); err != nil {
		_ = c.Error(err)
		return
	}

	invoice, err := s.repairSvc.FindInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"repair_invoice": invoice})
}

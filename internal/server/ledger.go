package server

import (
	"net/http"

	ledgerdomain "github.com/bigapple/fleetops/internal/ledger/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) listLedgerEntries(c *gin.Context) {
	filter := ledgerdomain.ListFilter{
		Category:   ledgerdomain.Category(c.Query("category")),
		SourceType: c.Query("source_type"),
	}

	driverID, err := parseOptionalSnowflakeID(c.Query("driver_id"))
	if err != nil {
		_ = c.Error(ErrInvalidRequest)
		return
	}
	if driverID != nil {
		filter.DriverID = *driverID
	}

	if filter.From, err = parseOptionalTime(c.Query("from"), false); err != nil {
		_ = c.Error(ErrInvalidRequest)
		return
	}
	if filter.To, err = parseOptionalTime(c.Query("to"), true); err != nil {
		_ = c.Error(ErrInvalidRequest)
		return
	}
	if filter.Limit, err = parseOptionalInt(c.Query("limit")); err != nil {
		_ = c.Error(ErrInvalidRequest)
		return
	}

	entries, err := s.ledgerSvc.List(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ledger_entries": entries})
}

type reverseEntryRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) reverseLedgerEntry(c *gin.Context) {
	entryID, err := parseRequiredSnowflakeID(c.Param("id"))
	if err != nil {
		_ = c.Error(ErrInvalidRequest)
		return
	}

	var req reverseEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(ErrInvalidRequest)
		return
	}

	entry, err := s.ledgerSvc.Reverse(c.Request.Context(), entryID, req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ledger_entry": entry})
}

package server

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) listSettlements(c *gin.Context) {
	driverID, err := parseOptionalSnowflakeID(c.Query("driver_id"))
	if err != nil {
		_ = c.Error(ErrInvalidRequest)
		return
	}

	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		_ = c.Error(ErrInvalidRequest)
		return
	}

	var filterID snowflake.ID
	if driverID != nil {
		filterID = *driverID
	}

	snapshots, err := s.settlementSvc.List(c.Request.Context(), filterID, limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settlements": snapshots})
}

func (s *Server) finalizeSettlement(c *gin.Context) {
	s.transitionSettlement(c, s.settlementSvc.Finalize)
}

func (s *Server) paySettlement(c *gin.Context) {
	s.transitionSettlement(c, s.settlementSvc.MarkPaid)
}

func (s *Server) voidSettlement(c *gin.Context) {
	s.transitionSettlement(c, s.settlementSvc.Void)
}

func (s *Server) transitionSettlement(c *gin.Context, fn func(context.Context, snowflake.ID) error) {
	snapshotID, err := parseRequiredSnowflakeID(c.Param("id"))
	if err != nil {
		_ = c.Error(ErrInvalidRequest)
		return
	}

	if err := fn(c.Request.Context(), snapshotID); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

package server

import (
	"net/http"

	txdomain "github.com/bigapple/fleetops/internal/transaction/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) listImportBatches(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		_ = c.Error(ErrInvalidRequest)
		return
	}

	source := txdomain.SourceType(c.Query("source"))
	switch source {
	case "", txdomain.SourceTrip, txdomain.SourceViolation, txdomain.SourceToll:
	default:
		_ = c.Error(ErrInvalidRequest)
		return
	}

	batches, err := s.importerSvc.ListBatches(c.Request.Context(), source, limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"import_batches": batches})
}

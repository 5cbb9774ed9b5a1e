package server

import (
	"errors"
	"net/http"

	ledgerdomain "github.com/bigapple/fleetops/internal/ledger/domain"
	repairdomain "github.com/bigapple/fleetops/internal/repair/domain"
	settlementdomain "github.com/bigapple/fleetops/internal/settlement/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, repairdomain.ErrInvalidPrincipal),
		errors.Is(err, repairdomain.ErrMissingOwner):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: err.Error()}

	case errors.Is(err, repairdomain.ErrInvoiceNotFound),
		errors.Is(err, settlementdomain.ErrSnapshotNotFound),
		errors.Is(err, ledgerdomain.ErrEntryNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}

	case errors.Is(err, repairdomain.ErrInvalidTransition),
		errors.Is(err, repairdomain.ErrHasPostedInstallment),
		errors.Is(err, settlementdomain.ErrInvalidTransition),
		errors.Is(err, settlementdomain.ErrAlreadyFinalized):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: err.Error()}
	}

	return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal error"}
}

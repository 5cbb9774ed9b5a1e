package domain

import (
	"time"

	txdomain "github.com/bigapple/fleetops/internal/transaction/domain"
	"github.com/bwmarrin/snowflake"
)

type BatchStatus string

const (
	BatchInProgress BatchStatus = "in_progress"
	BatchCompleted  BatchStatus = "completed"
	BatchPartial    BatchStatus = "partial"
	BatchFailed     BatchStatus = "failed"
)

// ImportBatch is the immutable run record for one feed import. It is created
// at run start and finalized exactly once.
type ImportBatch struct {
	ID             snowflake.ID        `gorm:"primaryKey" json:"id"`
	Source         txdomain.SourceType `gorm:"not null;index" json:"source"`
	RunID          string              `gorm:"not null" json:"run_id"`
	StartedAt      time.Time           `gorm:"not null" json:"started_at"`
	EndedAt        *time.Time          `json:"ended_at,omitempty"`
	Total          int                 `gorm:"not null;default:0" json:"total"`
	SuccessCount   int                 `gorm:"not null;default:0" json:"success_count"`
	DuplicateCount int                 `gorm:"not null;default:0" json:"duplicate_count"`
	FailureCount   int                 `gorm:"not null;default:0" json:"failure_count"`
	Status         BatchStatus         `gorm:"not null;index" json:"status"`
	ErrorSummary   string              `json:"error_summary,omitempty"`
	CreatedAt      time.Time           `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (ImportBatch) TableName() string {
	return "import_batches"
}

// Counters accumulates run-level tallies locally during an import and is
// written to the batch row once at finalization.
type Counters struct {
	Total     int
	Success   int
	Duplicate int
	Failure   int
}

func (c *Counters) AddSuccess()   { c.Total++; c.Success++ }
func (c *Counters) AddDuplicate() { c.Total++; c.Duplicate++ }
func (c *Counters) AddFailure()   { c.Total++; c.Failure++ }

// Status derives the terminal batch status from the tallies.
func (c *Counters) Status() BatchStatus {
	if c.Failure > 0 && c.Success > 0 {
		return BatchPartial
	}
	if c.Failure > 0 && c.Success == 0 {
		return BatchFailed
	}
	return BatchCompleted
}

package domain

import "errors"

var (
	ErrMissingOwner      = errors.New("missing owner driver")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidDirection  = errors.New("invalid direction")
	ErrInvalidCategory   = errors.New("invalid category")
	ErrInvalidSourceType = errors.New("invalid source type")
	ErrInvalidSourceID   = errors.New("invalid source id")
	ErrInvalidOccurredAt = errors.New("invalid transaction date")
	ErrEntryNotFound     = errors.New("ledger entry not found")
	ErrMissingRequired   = errors.New("missing required fields")
)

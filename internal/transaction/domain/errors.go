package domain

import "errors"

var (
	ErrTransactionNotFound = errors.New("transaction_not_found")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidDirection    = errors.New("invalid_direction")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrTitleRequired       = errors.New("title_required")
	ErrAlreadyPaid         = errors.New("transaction_already_paid")
	ErrNotPaid             = errors.New("transaction_not_paid")
)

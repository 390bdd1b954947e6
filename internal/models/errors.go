package models

import "errors"

var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("interval conflict")
	ErrAlreadyTerminal  = errors.New("booking already in terminal state")
	ErrAlreadyCompleted = errors.New("transaction already completed")
	ErrHasPendingOrders = errors.New("item has pending orders")
)

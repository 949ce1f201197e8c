package services

import (
	"errors"
)

// Service errors
var (
	ErrQuoteNotFound       = errors.New("quote not found")
	ErrInsufficientHistory = errors.New("insufficient price history")
	ErrSweepRunning        = errors.New("sweep already running")
	ErrUnknownSweep        = errors.New("unknown sweep kind")
	ErrNoRecipient         = errors.New("push recipient not configured")
)

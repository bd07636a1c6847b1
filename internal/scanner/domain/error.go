package domain

import "errors"

var (
	ErrNotActive             = errors.New("scanner_not_active")
	ErrInvalidOrExpiredToken = errors.New("invalid_or_expired_token")
	ErrInvalidBarcode        = errors.New("invalid_barcode")
	ErrQueueFull             = errors.New("scan_queue_full")
	ErrInvalidDesktopSession = errors.New("invalid_desktop_session")
)

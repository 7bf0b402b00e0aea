package services

import "errors"

var (
	ErrLineNotConfigured = errors.New("whatsapp line is not configured")
	ErrUnknownLine       = errors.New("unknown whatsapp line")
	ErrMerchantNotFound  = errors.New("merchant not found")
	ErrSessionNotFound   = errors.New("session not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrForbidden         = errors.New("forbidden")
	ErrMediaTooLarge     = errors.New("media exceeds size limit")
)

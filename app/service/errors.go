package service

import "errors"

var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrLinkExpired         = errors.New("payment link expired")
	ErrProviderUnsupported = errors.New("provider is not supported")
	ErrExternalService     = errors.New("payment provider error")
	ErrCallbackRejected    = errors.New("callback rejected")
)

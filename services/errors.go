// services/errors.go
package services

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Sentinel errors for the engine. Handlers map them to HTTP statuses with
// StatusFor; services wrap them with fmt.Errorf("...: %w", Err...) so the
// code survives wrapping.
var (
	ErrValidation                   = errors.New("validation_error")
	ErrNotFound                     = errors.New("not_found")
	ErrConflict                     = errors.New("conflict")
	ErrInsufficientFunds            = errors.New("insufficient_funds")
	ErrInsufficientAffiliateBalance = errors.New("insufficient_affiliate_balance")
	ErrNoPayoutMethod               = errors.New("no_payout_method")
	ErrAlreadyClaimed               = errors.New("already_claimed")
	ErrNotUnlocked                  = errors.New("not_unlocked")
	ErrConfiguration                = errors.New("configuration_error")
	ErrExternalService              = errors.New("external_service_error")
)

// StatusFor maps an engine error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrAlreadyClaimed):
		return fiber.StatusConflict
	case errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInsufficientAffiliateBalance),
		errors.Is(err, ErrNoPayoutMethod),
		errors.Is(err, ErrNotUnlocked):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, ErrExternalService):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// CodeFor returns the stable error code surfaced to clients.
func CodeFor(err error) string {
	for _, sentinel := range []error{
		ErrValidation, ErrNotFound, ErrConflict, ErrInsufficientFunds,
		ErrInsufficientAffiliateBalance, ErrNoPayoutMethod, ErrAlreadyClaimed,
		ErrNotUnlocked, ErrConfiguration, ErrExternalService,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal_error"
}

// validationf builds a wrapped validation error with a client-facing message.
func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

package server

import (
	"errors"
	"net/http"

	nativecommon "netyield/native/common"
	"netyield/native/token"
	"netyield/native/yield"
)

// errorCode maps engine failures to stable machine-readable codes so callers
// can branch deterministically, plus the HTTP status each maps to.
func errorCode(err error) (string, int) {
	var unauthorized *nativecommon.UnauthorizedError
	switch {
	case err == nil:
		return "", http.StatusOK
	case errors.As(err, &unauthorized):
		return "unauthorized", http.StatusForbidden
	case errors.Is(err, nativecommon.ErrModulePaused):
		return "paused", http.StatusServiceUnavailable
	case errors.Is(err, yield.ErrInvalidConfig):
		return "invalid_config", http.StatusUnprocessableEntity
	case errors.Is(err, yield.ErrAlreadyInitialized):
		return "already_initialized", http.StatusConflict
	case errors.Is(err, yield.ErrNotInitialized):
		return "not_initialized", http.StatusConflict
	case errors.Is(err, yield.ErrTreasuryUnchanged):
		return "treasury_unchanged", http.StatusConflict
	case errors.Is(err, yield.ErrInvalidTreasury):
		return "invalid_treasury", http.StatusUnprocessableEntity
	case errors.Is(err, yield.ErrTreasuryAssetMismatch):
		return "treasury_asset_mismatch", http.StatusUnprocessableEntity
	case errors.Is(err, yield.ErrTreasuryNotConfigured):
		return "treasury_not_configured", http.StatusConflict
	case errors.Is(err, yield.ErrLengthMismatch):
		return "length_mismatch", http.StatusBadRequest
	case errors.Is(err, yield.ErrEmptyBatch):
		return "empty_batch", http.StatusBadRequest
	case errors.Is(err, yield.ErrZeroAddress):
		return "zero_address", http.StatusBadRequest
	case errors.Is(err, yield.ErrZeroAmount):
		return "zero_amount", http.StatusBadRequest
	case errors.Is(err, yield.ErrInsufficientSupply):
		return "insufficient_supply", http.StatusUnprocessableEntity
	case errors.Is(err, yield.ErrInsufficientAdvanced):
		return "insufficient_advanced_balance", http.StatusUnprocessableEntity
	case errors.Is(err, yield.ErrAdvancedExceedsSupply):
		return "total_advanced_exceeds_supply", http.StatusUnprocessableEntity
	case errors.Is(err, yield.ErrInvalidImplementation):
		return "invalid_implementation", http.StatusUnprocessableEntity
	case errors.Is(err, nativecommon.ErrAmountOverflow):
		return "overflow", http.StatusUnprocessableEntity
	case errors.Is(err, nativecommon.ErrAmountUnderflow):
		return "underflow", http.StatusUnprocessableEntity
	case errors.Is(err, token.ErrInsufficientBalance):
		return "insufficient_balance", http.StatusUnprocessableEntity
	case errors.Is(err, token.ErrInsufficientApproval):
		return "insufficient_allowance", http.StatusUnprocessableEntity
	default:
		return "internal", http.StatusInternalServerError
	}
}

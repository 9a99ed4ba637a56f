package pool

import "errors"

var (
	// ErrPaused is returned by mutating calls while the circuit breaker is
	// engaged. Reads and DepositFees keep working.
	ErrPaused = errors.New("pool: paused")
	// ErrAlreadyPaused is returned when pausing an already-paused pool.
	ErrAlreadyPaused = errors.New("pool: already paused")
	// ErrNotPaused is returned when unpausing a pool that is not paused.
	ErrNotPaused = errors.New("pool: not paused")

	// ErrZeroAmount rejects nil, zero or negative trade amounts.
	ErrZeroAmount = errors.New("pool: amount must be positive")
	// ErrZeroAddress rejects empty account identifiers.
	ErrZeroAddress = errors.New("pool: empty address")
	// ErrDeadlineExpired is returned when the transaction deadline has
	// passed at call entry.
	ErrDeadlineExpired = errors.New("pool: deadline expired")
	// ErrSlippageExceeded is returned when the computed output falls below
	// the caller's minimum.
	ErrSlippageExceeded = errors.New("pool: slippage exceeded")
	// ErrSellDisabled is returned while the initial buy-only window is
	// active.
	ErrSellDisabled = errors.New("pool: sells disabled during buy-only window")
	// ErrTradeTooLarge is returned when a trade exceeds the max-trade share
	// of the current reserve.
	ErrTradeTooLarge = errors.New("pool: trade exceeds max trade size")
	// ErrInsufficientBalance is returned when the seller holds fewer tokens
	// than tokensIn.
	ErrInsufficientBalance = errors.New("pool: insufficient token balance")
	// ErrInsufficientReserve is returned when a payout would exceed the
	// tracked trading reserve.
	ErrInsufficientReserve = errors.New("pool: insufficient reserve")

	// ErrParamsOutOfBounds rejects governance parameters outside their
	// allowed ranges.
	ErrParamsOutOfBounds = errors.New("pool: parameter out of bounds")

	// ErrReentrantCall is returned when a capability callback re-enters the
	// pool while a state transition is in flight.
	ErrReentrantCall = errors.New("pool: reentrant call")
)

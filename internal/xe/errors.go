package xe

import "github.com/go-orz/orz"

var (
	ErrInvalidParams    = orz.NewError(10400, "invalid parameters")
	ErrInvalidToken     = orz.NewError(10403, "invalid operator token")
	ErrOperatorDisabled = orz.NewError(10401, "operator endpoints are disabled")

	ErrCycleRunning  = orz.NewError(10001, "recompute cycle is already running")
	ErrTraderMissing = orz.NewError(10002, "trader address is required")
)

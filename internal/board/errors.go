package board

import "errors"

// ErrOperationsOutOfOrder is returned when the clock is read back before it
// was set, or a plan orders the steps that way.
var ErrOperationsOutOfOrder = errors.New("operations out of order")

// ErrNoAddress is returned when an IP write is asked to program a blank
// address.
var ErrNoAddress = errors.New("no ip address")

package adi

import "errors"

var (
	// ErrTimeout reports a WAIT response that did not clear in time or an
	// expired polling loop. It is recoverable.
	ErrTimeout = errors.New("adi: timeout")
	// ErrFault reports a FAULT acknowledge or a sticky error on the DP.
	ErrFault = errors.New("adi: fault")
	// ErrNoResponse reports that the target did not drive an acknowledge.
	ErrNoResponse = errors.New("adi: no response")
	// ErrProtocol reports a malformed reply from the probe or target.
	ErrProtocol = errors.New("adi: protocol error")

	ErrNoAP               = errors.New("adi: no access port")
	ErrAPDisabled         = errors.New("adi: access port disabled")
	ErrTransferInProgress = errors.New("adi: transfer in progress")
	ErrBaseNotPresent     = errors.New("adi: debug base not present")
	ErrInvalidBase        = errors.New("adi: invalid debug base")
	ErrAddressWidth       = errors.New("adi: address exceeds bus width")
	ErrReleased           = errors.New("adi: access port released")
)

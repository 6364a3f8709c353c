package negotiation

import (
	"errors"
	"fmt"
)

var (
	ErrUnexpectedOffer  = errors.New("offer received mid-negotiation")
	ErrUnexpectedAnswer = errors.New("answer without a pending offer")
	ErrDriverClosed     = errors.New("driver closed")
)

// NegotiationError records which step failed and for which peer.
type NegotiationError struct {
	Op   string
	Peer string
	Err  error
}

func (e *NegotiationError) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() error {
	return e.Err
}

func wrap(op, peer string, err error) error {
	if err == nil {
		return nil
	}
	return &NegotiationError{Op: op, Peer: peer, Err: err}
}

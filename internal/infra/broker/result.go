package broker

import "fmt"

type resultKind int

const (
	resultOk resultKind = iota
	resultRetryable
	resultPermanent
)

// Result tells the consumer how to settle a delivery.
type Result struct {
	kind resultKind
	err  error
}

// Ok acknowledges the message.
func Ok() Result {
	return Result{kind: resultOk}
}

// RetryableFailure returns the message to the queue for redelivery.
func RetryableFailure(err error) Result {
	return Result{kind: resultRetryable, err: err}
}

// PermanentFailure removes the message from the queue. It is dead-lettered
// when the queue has a dead-letter exchange, dropped otherwise.
func PermanentFailure(err error) Result {
	return Result{kind: resultPermanent, err: err}
}

func (r Result) IsOk() bool        { return r.kind == resultOk }
func (r Result) IsRetryable() bool { return r.kind == resultRetryable }
func (r Result) IsPermanent() bool { return r.kind == resultPermanent }

// Err returns the failure cause, nil for Ok.
func (r Result) Err() error { return r.err }

func (r Result) String() string {
	switch r.kind {
	case resultOk:
		return "ok"
	case resultRetryable:
		return fmt.Sprintf("retryable: %v", r.err)
	default:
		return fmt.Sprintf("permanent: %v", r.err)
	}
}

package payment

// ResultKind tags the outcome of handling a validated notification.
type ResultKind string

const (
	ResultApproved ResultKind = "approved"
	ResultDeclined ResultKind = "declined"
	ResultError    ResultKind = "error"
)

// Result is returned for every business outcome; only infrastructure failures
// travel as errors.
type Result struct {
	Kind ResultKind
	// Payment is set for Approved. With AlreadyHandled it is the payment
	// recorded the first time, which may be nil if another channel placed the
	// order without one being stored here.
	Payment        *HandledPayment
	AlreadyHandled bool
	Reason         string
}

func Approved(p *HandledPayment) *Result { return &Result{Kind: ResultApproved, Payment: p} }

func Declined(reason string) *Result { return &Result{Kind: ResultDeclined, Reason: reason} }

func Failed(reason string) *Result { return &Result{Kind: ResultError, Reason: reason} }

func Replayed(p *HandledPayment) *Result {
	return &Result{Kind: ResultApproved, Payment: p, AlreadyHandled: true}
}

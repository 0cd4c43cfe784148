package basket

// State implements the state pattern for basket lifecycle transitions.
type State interface {
	Status() Status
	OnFreeze(b *Basket) (State, error)
	OnSubmit(b *Basket) (State, error)
	OnCancel(b *Basket) (State, error)
}

type openState struct{}

func (openState) Status() Status { return StatusOpen }

func (openState) OnFreeze(*Basket) (State, error) { return frozenState{}, nil }

func (openState) OnSubmit(*Basket) (State, error) { return submittedState{}, nil }

func (openState) OnCancel(*Basket) (State, error) { return cancelledState{}, nil }

type frozenState struct{}

func (frozenState) Status() Status { return StatusFrozen }

// A second token request for the same basket keeps it frozen.
func (frozenState) OnFreeze(*Basket) (State, error) { return frozenState{}, nil }

func (frozenState) OnSubmit(*Basket) (State, error) { return submittedState{}, nil }

func (frozenState) OnCancel(*Basket) (State, error) { return cancelledState{}, nil }

type submittedState struct{}

func (submittedState) Status() Status { return StatusSubmitted }

func (submittedState) OnFreeze(*Basket) (State, error) { return nil, ErrInvalidStateTransition }

func (submittedState) OnSubmit(*Basket) (State, error) { return nil, ErrInvalidStateTransition }

func (submittedState) OnCancel(*Basket) (State, error) { return nil, ErrInvalidStateTransition }

type cancelledState struct{}

func (cancelledState) Status() Status { return StatusCancelled }

func (cancelledState) OnFreeze(*Basket) (State, error) { return nil, ErrInvalidStateTransition }

func (cancelledState) OnSubmit(*Basket) (State, error) { return nil, ErrInvalidStateTransition }

func (cancelledState) OnCancel(*Basket) (State, error) { return cancelledState{}, nil }

func stateFor(s Status) State {
	switch s {
	case StatusFrozen:
		return frozenState{}
	case StatusSubmitted:
		return submittedState{}
	case StatusCancelled:
		return cancelledState{}
	default:
		return openState{}
	}
}

var allStatuses = []Status{StatusOpen, StatusFrozen, StatusSubmitted, StatusCancelled}

// SourcesFor lists the statuses from which a basket may move to target. Stores
// use it to express the transition as a conditional update.
func SourcesFor(target Status) []Status {
	var out []Status
	for _, from := range allStatuses {
		var (
			next State
			err  error
		)
		s := stateFor(from)
		switch target {
		case StatusFrozen:
			next, err = s.OnFreeze(nil)
		case StatusSubmitted:
			next, err = s.OnSubmit(nil)
		case StatusCancelled:
			next, err = s.OnCancel(nil)
		default:
			continue
		}
		if err == nil && next.Status() == target {
			out = append(out, from)
		}
	}
	return out
}

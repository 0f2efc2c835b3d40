package reminder

// State is the reminder subsystem's lifecycle state.
//
// The state is advisory bookkeeping for observers (status output,
// lifecycle logs). The tick decision re-queries the activity source
// directly and never branches on this cached value, so the two cannot
// drift apart in any observable way.
type State uint8

const (
	// StateDormant: no timer running, nothing tracked.
	StateDormant State = iota
	// StateClockedOut: timer running, no task clocked in.
	StateClockedOut
	// StateClockedIn: timer running, a task is clocked in.
	StateClockedIn
)

func (s State) String() string {
	switch s {
	case StateDormant:
		return "dormant"
	case StateClockedOut:
		return "clocked-out"
	case StateClockedIn:
		return "clocked-in"
	default:
		return "unknown"
	}
}

// Trigger is a lifecycle input.
type Trigger uint8

const (
	TriggerActivate Trigger = iota
	TriggerDeactivate
	TriggerClockIn
	TriggerClockOut
)

func (t Trigger) String() string {
	switch t {
	case TriggerActivate:
		return "activate"
	case TriggerDeactivate:
		return "deactivate"
	case TriggerClockIn:
		return "clock-in"
	case TriggerClockOut:
		return "clock-out"
	default:
		return "unknown"
	}
}

// transition applies the lifecycle table. It returns the next state and
// whether the (state, trigger) pair is in the table; out-of-table pairs
// leave the state unchanged.
//
//	Dormant    --activate-->   ClockedOut
//	ClockedOut --clock-in-->   ClockedIn
//	ClockedIn  --clock-out-->  ClockedOut
//	ClockedOut --deactivate--> Dormant
//	ClockedIn  --deactivate--> Dormant
func transition(cur State, trg Trigger) (State, bool) {
	switch {
	case cur == StateDormant && trg == TriggerActivate:
		return StateClockedOut, true
	case cur == StateClockedOut && trg == TriggerClockIn:
		return StateClockedIn, true
	case cur == StateClockedIn && trg == TriggerClockOut:
		return StateClockedOut, true
	case cur == StateClockedOut && trg == TriggerDeactivate:
		return StateDormant, true
	case cur == StateClockedIn && trg == TriggerDeactivate:
		return StateDormant, true
	default:
		return cur, false
	}
}

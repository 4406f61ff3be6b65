package escrow

// Action is a state-changing operation on a transaction.
type Action string

const (
	ActionConfirm         Action = "confirm"          // partner accepts the transaction
	ActionComplete        Action = "complete"         // buyer confirms receipt
	ActionCancel          Action = "cancel"           // either side cancels before confirmation
	ActionDispute         Action = "dispute"          // a party opens a dispute
	ActionResolveComplete Action = "resolve_complete" // admin resolves dispute in seller's favour
	ActionResolveCancel   Action = "resolve_cancel"   // admin resolves dispute in buyer's favour
	ActionExpire          Action = "expire"           // sweep cancels an unconfirmed transaction

	// The complainant withdrew their dispute; the transaction returns to
	// the state it was disputed from so the trade can continue.
	ActionReinstatePending   Action = "reinstate_pending"
	ActionReinstateConfirmed Action = "reinstate_confirmed"
)

// transitions is the single source of truth for the transaction lifecycle.
// Every (status, action) pair not listed here is rejected with
// ErrInvalidTransition; new states or actions must be added to this table
// rather than as scattered status checks.
var transitions = map[Status]map[Action]Status{
	StatusPending: {
		ActionConfirm: StatusConfirmed,
		ActionCancel:  StatusCancelled,
		ActionDispute: StatusDisputed,
		ActionExpire:  StatusCancelled,
	},
	StatusConfirmed: {
		ActionComplete: StatusCompleted,
		ActionDispute:  StatusDisputed,
	},
	StatusDisputed: {
		ActionResolveComplete:    StatusCompleted,
		ActionResolveCancel:      StatusCancelled,
		ActionReinstatePending:   StatusPending,
		ActionReinstateConfirmed: StatusConfirmed,
	},
}

// NextStatus returns the status a transaction moves to when action is
// applied, or ErrInvalidTransition if the lifecycle forbids it.
func NextStatus(from Status, action Action) (Status, error) {
	if to, ok := transitions[from][action]; ok {
		return to, nil
	}
	return "", ErrInvalidTransition
}

// CanApply reports whether action is legal in the given status.
func CanApply(from Status, action Action) bool {
	_, ok := transitions[from][action]
	return ok
}

package domain

import "fmt"

const (
	StatusDraft     = "DRAFT"
	StatusSubmitted = "SUBMITTED"
	StatusApproved  = "APPROVED"
	StatusRejected  = "REJECTED"
	StatusFinalized = "FINALIZED"
	StatusCancelled = "CANCELLED"
)

// transitions is the full item status machine. FINALIZED is terminal.
var transitions = map[string][]string{
	StatusDraft:     {StatusSubmitted, StatusCancelled},
	StatusSubmitted: {StatusApproved, StatusRejected, StatusDraft},
	StatusApproved:  {StatusFinalized, StatusSubmitted},
	StatusRejected:  {StatusDraft},
	StatusFinalized: {},
	StatusCancelled: {StatusDraft},
}

func ValidStatus(status string) bool {
	_, ok := transitions[status]
	return ok
}

// AllowedTransitions returns the statuses reachable from current.
func AllowedTransitions(current string) []string {
	return transitions[current]
}

// CanTransition reports whether current -> next is in the machine.
func CanTransition(current, next string) bool {
	for _, allowed := range transitions[current] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Immutable reports whether the status freezes commission and monetary
// fields.
func Immutable(status string) bool {
	return status == StatusApproved || status == StatusFinalized
}

// InvalidTransitionError names the rejected move and the allowed set so
// clients can render the valid next actions.
type InvalidTransitionError struct {
	Current   string
	Requested string
	Allowed   []string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition billing item from %s to %s (allowed: %v)", e.Current, e.Requested, e.Allowed)
}

// ImmutableStateError reports a commission or monetary edit attempted on
// an item whose status freezes those fields.
type ImmutableStateError struct {
	ItemID string
	Status string
}

func (e *ImmutableStateError) Error() string {
	return fmt.Sprintf("billing item %s is %s and no longer editable", e.ItemID, e.Status)
}

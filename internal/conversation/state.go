package conversation

import "fmt"

// Phase is a user's position in the fare-query dialogue.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseChooseQueryType
	PhaseCollectOrigin
	PhaseCollectDestination
	PhaseCollectCabin
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseChooseQueryType:
		return "choose_query_type"
	case PhaseCollectOrigin:
		return "collect_origin"
	case PhaseCollectDestination:
		return "collect_destination"
	case PhaseCollectCabin:
		return "collect_cabin"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is one user's dialogue progress. The zero value is the default
// record for a user who has not started a query. Collected fields are only
// set once the phase that collects them has completed.
type State struct {
	Phase                Phase
	OriginStationID      string
	DestinationStationID string
	CabinClass           int
}

// InvariantError is the panic value raised when a phase finds a field it
// depends on missing. It indicates a bug, not bad user input.
type InvariantError struct {
	UserID string
	Phase  Phase
	Field  string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("conversation: user %s in phase %s is missing %s", e.UserID, e.Phase, e.Field)
}

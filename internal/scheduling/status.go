package scheduling

// Status is the closed set of appointment lifecycle states.
type Status string

const (
	StatusAvailable Status = "available"
	StatusBooked    Status = "booked"
	StatusDone      Status = "done"
	StatusCanceled  Status = "canceled"
	StatusNoShow    Status = "no_show"
)

// AllStatuses lists every status, in the order finance reports count them.
var AllStatuses = []Status{StatusAvailable, StatusBooked, StatusDone, StatusCanceled, StatusNoShow}

// transitions is the single source of truth for lifecycle legality.
// available -> booked | canceled (block)
// booked    -> done | no_show | canceled (release)
// done, no_show, canceled are terminal.
var transitions = map[Status]map[Status]bool{
	StatusAvailable: {
		StatusBooked:   true,
		StatusCanceled: true,
	},
	StatusBooked: {
		StatusDone:     true,
		StatusNoShow:   true,
		StatusCanceled: true,
	},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusBooked, StatusDone, StatusCanceled, StatusNoShow:
		return true
	}
	return false
}

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0 && s.Valid()
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

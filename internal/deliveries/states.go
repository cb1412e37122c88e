package deliveries

// Task states.
const (
	StatePending   = "PENDIENTE"
	StateScheduled = "PROGRAMADA"
	StateDelivered = "ENTREGADA"
	StateSkipped   = "OMITIDA"
)

var transitions = map[string][]string{
	StatePending:   {StateScheduled},
	StateScheduled: {StateDelivered, StateSkipped},
}

// ValidState reports whether s is one of the four task states.
func ValidState(s string) bool {
	switch s {
	case StatePending, StateScheduled, StateDelivered, StateSkipped:
		return true
	}
	return false
}

// IsTerminal: nothing leaves ENTREGADA or OMITIDA.
func IsTerminal(s string) bool {
	return s == StateDelivered || s == StateSkipped
}

func CanTransition(from, to string) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// sourcesOf lists the states that may move to `to`.
func sourcesOf(to string) []string {
	var out []string
	for _, from := range []string{StatePending, StateScheduled, StateDelivered, StateSkipped} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

package poller

// Indicator is the tri-state recording indicator reported by the instrument.
type Indicator string

const (
	IndicatorUnknown Indicator = "UNKNOWN"
	IndicatorOn      Indicator = "R_ON"
	IndicatorOff     Indicator = "R_OFF"
)

// Edge identifies a meaningful indicator transition.
type Edge int

const (
	EdgeNone Edge = iota
	EdgeStart
	EdgeEnd
)

// transitions is the full edge table. Unknown never participates: it is the
// initial baseline state and an unrecognized reading, and neither direction
// through it fires an edge.
var transitions = map[Indicator]map[Indicator]Edge{
	IndicatorOff: {IndicatorOn: EdgeStart},
	IndicatorOn:  {IndicatorOff: EdgeEnd},
}

// classify maps a raw instrument indicator string onto the tri-state enum.
// Unrecognized values map to Unknown; callers decide whether to warn.
func classify(raw string) Indicator {
	switch raw {
	case string(IndicatorOn):
		return IndicatorOn
	case string(IndicatorOff):
		return IndicatorOff
	default:
		return IndicatorUnknown
	}
}

// transition returns the edge fired by moving from previous to current.
func transition(previous, current Indicator) Edge {
	if row, ok := transitions[previous]; ok {
		if edge, ok := row[current]; ok {
			return edge
		}
	}
	return EdgeNone
}

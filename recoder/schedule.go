package recoder

// Schedule selects which subgeneration a standard Buffer recodes from next
// (spec.md §4.5).
type Schedule int

// Recognised schedules.
const (
	TRIV Schedule = iota
	RAND
	MLPI
	NURAND
	RANDSys
	MLPISys
)

// systematicPreferring reports whether sched forwards a pending systematic
// packet before recoding, resolving spec.md §4.5's "systematic-preferring"
// schedules as exactly the _SYS-suffixed ones (DESIGN.md Open Question).
func (s Schedule) systematicPreferring() bool {
	return s == RANDSys || s == MLPISys
}

func (s Schedule) base() Schedule {
	switch s {
	case RANDSys:
		return RAND
	case MLPISys:
		return MLPI
	default:
		return s
	}
}

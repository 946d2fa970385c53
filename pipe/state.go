package pipe

// state of the stage. Transitions are idle -> running -> stopped and
// idle -> stopped.
type state int

const (
	idle state = iota
	running
	stopped
)

func (s state) String() string {
	switch s {
	case idle:
		return "idle"
	case running:
		return "running"
	case stopped:
		return "stopped"
	}
	return "unknown"
}

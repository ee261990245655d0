package errors

// Sentinel is a package-level error value that also names its metrics class.
// Compare with errors.Is; identity is by pointer.
type Sentinel struct {
	class string
	msg   string
}

// NewSentinel creates a classed sentinel error.
func NewSentinel(class, msg string) *Sentinel {
	return &Sentinel{class: class, msg: msg}
}

func (s *Sentinel) Error() string { return s.msg }

// Class returns the metrics class of the sentinel.
func (s *Sentinel) Class() string { return s.class }

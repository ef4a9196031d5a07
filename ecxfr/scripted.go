package ecxfr

import "github.com/zultron/etherlabmaster/ecfr"

// Scripted is a Transfer test double that emits a fixed number of
// still-running ticks before settling on a scripted terminal outcome. It
// exists so the slave FSM's state progression (spec.md §4.1.1) can be
// exercised without a real mailbox protocol underneath.
type Scripted struct {
	RunningTicks int
	Outcome      bool

	ticksLeft int
	begun     bool
}

func (s *Scripted) Begin(slave SlaveInfo, request any) {
	s.ticksLeft = s.RunningTicks
	s.begun = true
}

func (s *Scripted) Exec(reply, out *ecfr.Datagram) bool {
	if !s.begun {
		panic("ecxfr: Exec called before Begin")
	}
	if s.ticksLeft > 0 {
		s.ticksLeft--
		out.Command = ecfr.NOP
		return true
	}
	return false
}

func (s *Scripted) Success() bool { return s.Outcome }

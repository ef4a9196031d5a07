package ecslave

import "fmt"

// ALState is a slave's application-layer state as read from register
// ecad.ALStatus, optionally ORed with the error-acknowledge bit the ESC
// sets when a requested transition is refused.
type ALState uint16

const (
	Init   ALState = 0x01
	PreOp  ALState = 0x02
	Boot   ALState = 0x03
	SafeOp ALState = 0x04
	Op     ALState = 0x08

	AckErr ALState = 0x10
)

// Base strips the error-acknowledge bit, leaving the underlying state.
func (s ALState) Base() ALState { return s &^ AckErr }

// HasAckErr reports whether the ESC refused the last requested transition.
func (s ALState) HasAckErr() bool { return s&AckErr != 0 }

func (s ALState) String() string {
	name := "UNKNOWN"
	switch s.Base() {
	case Init:
		name = "INIT"
	case PreOp:
		name = "PREOP"
	case Boot:
		name = "BOOT"
	case SafeOp:
		name = "SAFEOP"
	case Op:
		name = "OP"
	}
	if s.HasAckErr() {
		return fmt.Sprintf("%s+ACK_ERR", name)
	}
	return name
}

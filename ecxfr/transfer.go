// Package ecxfr defines the uniform capability the per-slave request FSM
// drives for every mailbox class (CoE/SDO, FoE, SoE): transfer/exec/success.
// The FSM never branches on a sub-FSM's internal state; it only calls these
// three methods (spec.md §4.2). The mailbox wire protocols themselves are
// treated as an external collaborator's concern — a Transfer prepares one
// datagram per Exec call and reports whether more cycles are needed.
package ecxfr

import "github.com/zultron/etherlabmaster/ecfr"

// SlaveInfo is the minimal view of a slave a Transfer needs to address its
// datagrams. It exists to keep this package independent of ecslave.
type SlaveInfo interface {
	StationAddress() uint16
	DeviceIndex() int
}

// Transfer drives a single multi-cycle mailbox exchange against one slave.
// Implementations are not required to be reusable across requests; the
// slave FSM discards a Transfer once it reports terminal.
type Transfer interface {
	// Begin binds the transfer to a new request. Called once, before the
	// first Exec, from the slave FSM's dispatch step.
	Begin(slave SlaveInfo, request any)

	// Exec advances the exchange by one cycle. reply is the previous
	// cycle's arrived datagram, nil on the very first call. If Exec
	// reports true, it has filled out with the next outgoing frame for
	// the caller to enqueue. Exec returns false once the exchange has
	// reached a terminal outcome; Success is then valid.
	Exec(reply, out *ecfr.Datagram) bool

	// Success reports the terminal outcome. Valid only after Exec has
	// returned false.
	Success() bool
}

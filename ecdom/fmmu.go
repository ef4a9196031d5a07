package ecdom

import "github.com/zultron/etherlabmaster/ecdir"

// FMMUConfig describes one slave's contribution to a domain's logical
// process image: a direction, a slave-local physical start address, and a
// byte count. SlaveConfig is an opaque, comparable identity used only to
// detect that two FMMUs in the same datagram belong to the same
// slave-config (so the datagram's expected working counter isn't
// double-counted for a slave contributing several FMMUs).
type FMMUConfig struct {
	Direction     ecdir.Direction
	SlaveConfig   any
	PhysicalStart uint16
	DataSize      int

	// LogicalStart is set by Domain.Finish; zero beforehand.
	LogicalStart uint32
}

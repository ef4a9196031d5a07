package ecfr

// AddressType classifies how a DatagramAddress selects its target: by ring
// position, by fixed station address, by logical (domain) address, or
// broadcast to every slave.
type AddressType uint8

const (
	Positional AddressType = iota
	Fixed
	Logical
	Broadcast
)

// DatagramAddress packs the addressing half of a datagram: either a
// (station-or-position, register offset) pair for physically addressed
// commands, or a flat 32-bit logical address for LRD/LWR/LRW. Which
// interpretation applies is carried alongside as the command that will
// use this address, since the 32-bit word means different things for
// different commands.
type DatagramAddress struct {
	cmd    CommandType
	addr32 uint32
}

// NewFixedAddress builds an address for FPRD/FPWR/FPRW/FRMW-style
// station-addressed access.
func NewFixedAddress(station uint16, offset uint16) DatagramAddress {
	return DatagramAddress{FPRD, uint32(station) | uint32(offset)<<16}
}

// NewLogicalAddress builds an address for LRD/LWR/LRW-style domain access.
func NewLogicalAddress(logical uint32) DatagramAddress {
	return DatagramAddress{LRD, logical}
}

// DatagramAddressFromCommand reinterprets a raw Addr32 (as seen on the wire
// for the given command) as a DatagramAddress, for classification.
func DatagramAddressFromCommand(addr32 uint32, cmd CommandType) DatagramAddress {
	return DatagramAddress{cmd, addr32}
}

func (a DatagramAddress) Addr32() uint32 { return a.addr32 }

// SetOffset rewrites the register offset, keeping the station/position
// address intact. It is a no-op's worth of allocation: callers commonly
// keep one DatagramAddress per slave and vary only the offset per access.
func (a *DatagramAddress) SetOffset(offset uint16) {
	a.addr32 = uint32(uint16(a.addr32)) | uint32(offset)<<16
}

func (a DatagramAddress) Offset() uint16 { return uint16(a.addr32 >> 16) }

// PositionOrAddress is the low 16 bits: a ring position for positional
// commands, a station address for fixed commands.
func (a DatagramAddress) PositionOrAddress() uint16 { return uint16(a.addr32) }

// IncrementSlaveAddr bumps the low 16 bits, the convention EtherCAT slaves
// use to auto-address themselves as a positionally-addressed datagram
// passes through the ring.
func (a *DatagramAddress) IncrementSlaveAddr() {
	lo := uint16(a.addr32) + 1
	a.addr32 = uint32(lo) | (a.addr32 &^ 0xffff)
}

func (a DatagramAddress) Type() AddressType {
	switch a.cmd {
	case BRD, BWR, BRW:
		return Broadcast
	case APRD, APWR, APRW, ARMW:
		return Positional
	case LRD, LWR, LRW:
		return Logical
	default:
		return Fixed
	}
}

func (a DatagramAddress) IsPhysical() bool {
	return a.Type() != Logical
}

package sim

import (
	"github.com/zultron/etherlabmaster/ecad"
	"github.com/zultron/etherlabmaster/ecdir"
	"github.com/zultron/etherlabmaster/ecfr"
)

const (
	regAreaLength = 0x1000
)

// LogicalMapping is a simulated FMMU entry: it maps a contiguous range of a
// domain's logical address space onto this slave's backing memory so that
// LRD/LWR/LRW datagrams exercise the same logical-addressing path a real
// slave's FMMU hardware would.
type LogicalMapping struct {
	LogicalStart  uint32
	PhysicalStart uint16
	Length        uint16
	Direction     ecdir.Direction
}

func (m LogicalMapping) contains(logicalAddr uint32) bool {
	return logicalAddr >= m.LogicalStart && logicalAddr < m.LogicalStart+uint32(m.Length)
}

type FrameProcessor interface {
	ProcessFrame(*ecfr.Frame) *ecfr.Frame
}

type L2Slave struct {
	BackingMemory [1 << 16]byte

	registerShadow          [regAreaLength]byte
	registerShadowWriteMask [regAreaLength]bool

	regMappings []MMapping
	logMappings []LogicalMapping

	ALStatusControl *ALStatusControl
	EEPROM          *L2EEPROM
}

// MapLogical registers a simulated FMMU entry for domain datagram tests.
func (s *L2Slave) MapLogical(m LogicalMapping) {
	s.logMappings = append(s.logMappings, m)
}

func NewL2Slave() *L2Slave {
	s := &L2Slave{}

	// ET1100 signature
	copy(s.BackingMemory[:0x10], []byte{0x11, 0x00, 0x02, 0x00, 0x08, 0x08, 0x08, 0x0b, 0xfc})

	s.ALStatusControl = NewALStatusControl()
	s.regMappings = append(s.regMappings, DevMapping{ecad.ALControl, 0x02, s.ALStatusControl.ControlReg()})
	s.regMappings = append(s.regMappings, DevMapping{ecad.ALStatus, 0x06, s.ALStatusControl.StatusReg()})

	s.EEPROM = NewL2EEPROM()
	s.regMappings = append(s.regMappings, DevMapping{ecad.ESIEEPROMInterface, 0x10, s.EEPROM.Reg()})

	return s
}

// returns true if interaction happened
func (s L2Slave) llread8p(addr uint16, dp *uint8) bool {
	if addr < regAreaLength {
		// register access
		m := s.addrToMapping(addr)
		if m != nil {
			return m.Device().Read(addr-m.Start(), dp)
		}
	}

	*dp = s.BackingMemory[addr]
	return true
}

// returns true if interaction happened.
func (s *L2Slave) llwrite8(addr uint16, d uint8) bool {
	if addr < regAreaLength {
		s.registerShadow[addr] = d
		s.registerShadowWriteMask[addr] = true

		// TODO: need to consult regs if writing is OK
		m := s.addrToMapping(addr)
		if m != nil {
			return m.Device().WriteInteract(addr - m.Start())
		}
	}

	// no support for sync managers so far
	s.BackingMemory[addr] = d
	return true
}

func (s *L2Slave) addrToMapping(addr uint16) MMapping {
	for _, m := range s.regMappings {
		if addr >= m.Start() && addr < (m.Start()+m.Length()) {
			return m
		}
	}

	return nil
}

func (s *L2Slave) ProcessFrame(infr *ecfr.Frame) (ofr *ecfr.Frame) {
	ofr = infr

	for _, dg := range infr.Datagrams {
		// TODO: should ecfr.Frame contain a DatagramAddress instead of Addr32?
		if s.isPhysicalAddr(dg.Command, dg.Addr32) {
			dga := ecfr.DatagramAddressFromCommand(dg.Addr32, dg.Command)
			physaddressed := s.isPhysicallyAdressed(dga)
			dga.IncrementSlaveAddr()
			dg.Addr32 = dga.Addr32()
			if !physaddressed {
				continue
			}

			readUnmasked := true
			if dg.Command.DoesRead() {
				physbase := dga.Offset()
				for i := uint16(0); i < dg.DataLength(); i++ {
					//di := dg.Data()[i]
					readUnmasked = s.llread8p(physbase+i, &(dg.Data()[i])) && readUnmasked
					//do := dg.Data()[i]
					//fmt.Printf("llread8p di %02x -> do %02x  @  %p\n", di, do, &(dg.Data()[i]))
				}
			}

			writeUnmasked := true
			if dg.Command.DoesWrite() {
				physbase := dga.Offset()
				for i := uint16(0); i < dg.DataLength(); i++ {
					writeUnmasked = s.llwrite8(physbase+i, dg.Data()[i]) && writeUnmasked
				}
			}

			// working counter update logic
			if dg.Command.DoesRead() && dg.Command.DoesWrite() {
				// TODO: RW/ARMW update logic
			} else if dg.Command.DoesRead() {
				if readUnmasked {
					dg.SetWorkingCounter(dg.WorkingCounter() + 1)
				}
			} else if dg.Command.DoesWrite() {
				if writeUnmasked {
					dg.SetWorkingCounter(dg.WorkingCounter() + 1)
				}
			}
		} else {
			s.processLogical(dg)
		}
	}

	// latch register shadow into registers
	s.latchRegs()
	// frame is processed

	return
}

func (s *L2Slave) latchRegs() {
	for _, m := range s.regMappings {
		start := m.Start()
		end := start + m.Length()
		m.Device().Latch(s.registerShadow[start:end],
			s.registerShadowWriteMask[start:end])
	}
}

// processLogical applies a logically-addressed (LRD/LWR/LRW) datagram
// against this slave's mapped FMMU regions, mirroring the hardware's
// logical-to-physical translation. The working counter is bumped by one if
// an input mapping was read and, if an output mapping was written, by one
// more (two under LRW), matching how a real FMMU-backed slave contributes
// to a domain datagram's expected count.
func (s *L2Slave) processLogical(dg *ecfr.Datagram) {
	dgStart := dg.LogicalAddr()
	dgEnd := dgStart + uint32(dg.DataLength())

	touchedInput := false
	touchedOutput := false

	for _, m := range s.logMappings {
		mEnd := m.LogicalStart + uint32(m.Length)
		lo := dgStart
		if m.LogicalStart > lo {
			lo = m.LogicalStart
		}
		hi := dgEnd
		if mEnd < hi {
			hi = mEnd
		}
		if lo >= hi {
			continue
		}

		for addr := lo; addr < hi; addr++ {
			di := addr - dgStart
			pi := m.PhysicalStart + uint16(addr-m.LogicalStart)

			switch m.Direction {
			case ecdir.Input:
				if dg.Command.DoesRead() {
					dg.Data()[di] = s.BackingMemory[pi]
					touchedInput = true
				}
			case ecdir.Output:
				if dg.Command.DoesWrite() {
					s.BackingMemory[pi] = dg.Data()[di]
					touchedOutput = true
				}
			}
		}
	}

	if touchedInput {
		dg.SetWorkingCounter(dg.WorkingCounter() + 1)
	}
	if touchedOutput {
		// a write under LRW counts twice, as in the domain's expected count
		inc := uint16(1)
		if dg.Command.DoesRead() {
			inc = 2
		}
		dg.SetWorkingCounter(dg.WorkingCounter() + inc)
	}
}

func (s *L2Slave) isPhysicalAddr(ct ecfr.CommandType, addr32 uint32) bool {
	dga := ecfr.DatagramAddressFromCommand(addr32, ct)
	return dga.IsPhysical()
}

func (s *L2Slave) isPhysicallyAdressed(addr ecfr.DatagramAddress) bool {
	if addr.Type() == ecfr.Broadcast {
		return true
	}

	if addr.Type() == ecfr.Positional {
		return addr.PositionOrAddress() == 0
	}

	if addr.Type() == ecfr.Fixed {
		// TODO: station address reg
		return false
	}

	return false
}

func NewALStatusControl() *ALStatusControl {
	return &ALStatusControl{Store: 0x0011}
}

type ALStatusControl struct {
	Store uint16
}

func (a *ALStatusControl) IsECATWritable() bool {
	return true
}

func (a *ALStatusControl) InError() bool {
	return (a.Store & 0x10) != 0
}

func (a *ALStatusControl) SetError(seterr bool) {
	if seterr {
		a.Store |= 0x10
	} else {
		a.Store &^= 0x10
	}
}

type ALControl struct{ *ALStatusControl }

func (sc *ALStatusControl) ControlReg() ALControl { return ALControl{sc} }

func (c ALControl) Read(offs uint16, dp *uint8) bool {
	switch offs {
	case 0:
		*dp = uint8(c.Store)
	case 1:
		*dp = uint8(c.Store >> 8)
	default:
		panic("invalid mapping for ALControl exceeds possible length")
	}

	return true
}

func (c ALControl) WriteInteract(offs uint16) bool {
	return c.IsECATWritable()
}

func (c ALControl) Latch(shadow []byte, shadowWriteMask []bool) {
	if shadowWriteMask[0] {
		if (c.InError() && (shadow[0]&0x10) != 0) || !c.InError() {
			c.Store &^= 0x1f
			c.Store |= uint16(shadow[0] & 0x0f)
		}
	}
}

type ALStatus struct{ *ALStatusControl }

func (sc *ALStatusControl) StatusReg() ALStatus { return ALStatus{sc} }

func (s ALStatus) Read(offs uint16, dp *uint8) bool {
	//fmt.Printf("AL Status Read offs %d, dp %p\n", offs, dp)
	switch offs {
	case 0:
		*dp = uint8(s.Store)
		//fmt.Printf("read 0, *dp %#02x\n", *dp)
	case 1:
		*dp = uint8(s.Store >> 8)
		//fmt.Printf("read 1, AL Store %04x\n", s.Store)
	default:
		*dp = 0x00
	}
	return true
}

func (s ALStatus) WriteInteract(offs uint16) bool {
	return false
}

func (s ALStatus) Latch(shadow []byte, shadowWriteMask []bool) {}

package ecfr

import (
	"fmt"
)

const (
	datagramHeaderByteLen = 10
	datagramWCByteLen     = 2

	// DatagramOverheadLength is the number of bytes a datagram needs beyond
	// its data payload: the 10 byte header plus the trailing 2 byte working
	// counter.
	DatagramOverheadLength = datagramHeaderByteLen + datagramWCByteLen

	roundtripBit     = 14
	lastIndicatorBit = 15
	datagramLenMask  = (1 << 11) - 1
)

// Datagram is a single EtherCAT datagram: header, data payload and trailing
// working counter, overlaid onto (or committed into) a byte slice that is
// itself a window into a Frame's buffer.
type Datagram struct {
	Command   CommandType
	Index     uint8
	Addr32    uint32
	Interrupt uint16

	moreFollows bool
	roundtrip   bool

	dataSize       int
	workingCounter uint16

	buffer []byte
	data   []byte
}

// PointDatagramTo carves a new, zeroed datagram out of a raw buffer. The
// buffer must have room for at least DatagramOverheadLength bytes; call
// SetDataLen to fix the final size before use.
func PointDatagramTo(b []byte) (dg Datagram, err error) {
	if len(b) < DatagramOverheadLength {
		err = fmt.Errorf("ecfr: buffer too small for a datagram, need %d bytes, have %d",
			DatagramOverheadLength, len(b))
		return
	}

	dg.buffer = b
	dg.moreFollows = true // not last until SetLast(true) or finalized by the frame
	return
}

// SetDataLen fixes the size of the datagram's data payload and, with it,
// the portion of the carrier buffer this datagram occupies.
func (dg *Datagram) SetDataLen(n int) error {
	total := DatagramOverheadLength + n
	if total > cap(dg.buffer) {
		return fmt.Errorf("ecfr: datagram data length %d exceeds available buffer", n)
	}

	dg.buffer = dg.buffer[:total]
	dg.dataSize = n
	dg.data = dg.buffer[datagramHeaderByteLen : datagramHeaderByteLen+n]
	return nil
}

// Data returns the datagram's payload view. It is valid after SetDataLen or
// after Overlay.
func (dg *Datagram) Data() []byte {
	return dg.data
}

// DataLength is the number of payload bytes, as encoded on the wire.
func (dg *Datagram) DataLength() uint16 {
	return uint16(dg.dataSize)
}

// ByteLen is the total wire size of this datagram: header + data + WC.
func (dg *Datagram) ByteLen() int {
	return DatagramOverheadLength + dg.dataSize
}

// Last reports whether this is the last datagram in its frame.
func (dg *Datagram) Last() bool {
	return !dg.moreFollows
}

// SetLast marks whether more datagrams follow this one in the frame.
func (dg *Datagram) SetLast(last bool) {
	dg.moreFollows = !last
}

func (dg *Datagram) Roundtrip() bool { return dg.roundtrip }

func (dg *Datagram) WorkingCounter() uint16 { return dg.workingCounter }

func (dg *Datagram) SetWorkingCounter(wc uint16) { dg.workingCounter = wc }

// SlaveAddr is the low 16 bits of Addr32: a station address or ring
// position, depending on Command.
func (dg *Datagram) SlaveAddr() uint16 {
	return uint16(dg.Addr32)
}

// OffsetAddr is the high 16 bits of Addr32: a slave-local register offset.
func (dg *Datagram) OffsetAddr() uint16 {
	return uint16(dg.Addr32 >> 16)
}

// LogicalAddr reinterprets Addr32 as a flat 32-bit logical address, valid
// for LRD/LWR/LRW commands.
func (dg *Datagram) LogicalAddr() uint32 {
	return dg.Addr32
}

// Overlay decodes a datagram (header, payload, working counter) from the
// front of d, returning the remaining bytes.
func (dg *Datagram) Overlay(d []byte) (b []byte, err error) {
	if len(d) < datagramHeaderByteLen {
		err = fmt.Errorf("ecfr: need %d bytes for datagram header, have %d", datagramHeaderByteLen, len(d))
		return
	}

	b = d

	var c8 uint8
	c8, b = getUint8(b)
	dg.Command = CommandType(c8)
	dg.Index, b = getUint8(b)
	dg.Addr32, b = getUint32(b)

	var lenWord uint16
	lenWord, b = getUint16(b)
	dg.dataSize = int(lenWord & datagramLenMask)
	dg.moreFollows = lenWord&(1<<lastIndicatorBit) != 0
	dg.roundtrip = lenWord&(1<<roundtripBit) != 0

	dg.Interrupt, b = getUint16(b)

	if len(b) < dg.dataSize+datagramWCByteLen {
		err = fmt.Errorf("ecfr: overlaying datagram: need %d bytes of data and working counter, have %d",
			dg.dataSize+datagramWCByteLen, len(b))
		return
	}

	dg.data = b[:dg.dataSize]
	b = b[dg.dataSize:]

	dg.workingCounter, b = getUint16(b)

	dg.buffer = d[:dg.ByteLen()]
	return
}

// Commit encodes the datagram's current header fields, payload and working
// counter into its carrier buffer and returns the bytes it occupies.
func (dg *Datagram) Commit() (d []byte, err error) {
	if len(dg.buffer) < dg.ByteLen() {
		err = fmt.Errorf("ecfr: datagram buffer too small to commit, need %d bytes, have %d",
			dg.ByteLen(), len(dg.buffer))
		return
	}

	b := dg.buffer

	b = putUint8(b, uint8(dg.Command))
	b = putUint8(b, dg.Index)
	b = putUint32(b, dg.Addr32)

	lenWord := uint16(dg.dataSize) & datagramLenMask
	if dg.moreFollows {
		lenWord |= 1 << lastIndicatorBit
	}
	if dg.roundtrip {
		lenWord |= 1 << roundtripBit
	}
	b = putUint16(b, lenWord)
	b = putUint16(b, dg.Interrupt)

	copy(b, dg.data)
	b = b[dg.dataSize:]

	putUint16(b, dg.workingCounter)

	d = dg.buffer[:dg.ByteLen()]
	return
}

type CommandType uint8

func (ct CommandType) String() string {
	if cts, ok := commandTypeName[ct]; ok {
		return cts
	}
	return fmt.Sprintf("CommandType(%d)", uint(ct))
}

// DoesRead reports whether a slave executing this command writes its local
// data into the datagram (the master reads it back).
func (ct CommandType) DoesRead() bool {
	switch ct {
	case APRD, FPRD, BRD, APRW, FPRW, BRW, LRD, LRW, ARMW, FRMW:
		return true
	}
	return false
}

// DoesWrite reports whether a slave executing this command copies the
// datagram's data into its local memory.
func (ct CommandType) DoesWrite() bool {
	switch ct {
	case APWR, FPWR, BWR, APRW, FPRW, BRW, LWR, LRW:
		return true
	}
	return false
}

const (
	NOP  CommandType = 0
	APRD CommandType = 1
	APWR CommandType = 2
	APRW CommandType = 3
	FPRD CommandType = 4
	FPWR CommandType = 5
	FPRW CommandType = 6
	BRD  CommandType = 7
	BWR  CommandType = 8
	BRW  CommandType = 9
	LRD  CommandType = 10
	LWR  CommandType = 11
	LRW  CommandType = 12
	ARMW CommandType = 13
	FRMW CommandType = 14
)

var commandTypeName = map[CommandType]string{
	NOP:  "NOP",
	APRD: "APRD",
	APWR: "APWR",
	APRW: "APRW",
	FPRD: "FPRD",
	FPWR: "FPWR",
	FPRW: "FPRW",
	BRD:  "BRD",
	BWR:  "BWR",
	BRW:  "BRW",
	LRD:  "LRD",
	LWR:  "LWR",
	LRW:  "LRW",
	ARMW: "ARMW",
	FRMW: "FRMW",
}

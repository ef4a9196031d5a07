package ecxfr

import "github.com/zultron/etherlabmaster/ecfr"

// Mailbox protocol type field values (ETG.1000.6).
const (
	mbxTypeCoE uint8 = 3
	mbxTypeFoE uint8 = 4
	mbxTypeSoE uint8 = 5
)

// Real slaves advertise their mailbox-out/in physical addresses in SII
// category 0x0018; resolving that is a slave-config concern outside this
// package's scope. These are the addresses most single-mailbox slaves are
// configured with and stand in until a real config layer supplies its own.
const (
	defaultMailboxOutAddress uint16 = 0x1000
	defaultMailboxInAddress  uint16 = 0x1400
)

// mailboxHeader is the 6 byte header prefixing every mailbox datagram
// payload: length of the following service data, station address of the
// originator, channel/priority, protocol type, and a 3 bit counter used to
// detect duplicates.
type mailboxHeader struct {
	length  uint16
	address uint16
	typ     uint8
	counter uint8
}

func (h mailboxHeader) put(b []byte) {
	b[0] = uint8(h.length)
	b[1] = uint8(h.length >> 8)
	b[2] = uint8(h.address)
	b[3] = uint8(h.address >> 8)
	b[4] = 0
	b[5] = (h.counter&0x07)<<4 | (h.typ & 0x0f)
}

func getMailboxHeader(b []byte) mailboxHeader {
	return mailboxHeader{
		length:  uint16(b[0]) | uint16(b[1])<<8,
		address: uint16(b[2]) | uint16(b[3])<<8,
		typ:     b[5] & 0x0f,
		counter: (b[5] >> 4) & 0x07,
	}
}

const mailboxHeaderLen = 6

// MaxDatagramLen is the buffer size the slave FSM preallocates for each
// mailbox-class datagram; individual Exec calls shrink it to the exact
// service length via SetDataLen.
const MaxDatagramLen = mailboxHeaderLen + 64

// sendMailbox writes a mailbox datagram (header plus service data) as a
// physical write to the slave's mailbox-out address.
func sendMailbox(dg *ecfr.Datagram, slave SlaveInfo, typ uint8, counter uint8, service []byte) error {
	if err := dg.SetDataLen(mailboxHeaderLen + len(service)); err != nil {
		return err
	}
	h := mailboxHeader{length: uint16(len(service)), address: 0, typ: typ, counter: counter}
	buf := dg.Data()
	h.put(buf)
	copy(buf[mailboxHeaderLen:], service)

	dg.Command = ecfr.FPWR
	addr := ecfr.NewFixedAddress(slave.StationAddress(), defaultMailboxOutAddress)
	dg.Addr32 = addr.Addr32()
	return nil
}

// recvMailbox prepares a physical read of the slave's mailbox-in address so
// the reply lands in dg on the following cycle.
func recvMailbox(dg *ecfr.Datagram, slave SlaveInfo, replyLen int) error {
	if err := dg.SetDataLen(mailboxHeaderLen + replyLen); err != nil {
		return err
	}
	dg.Command = ecfr.FPRD
	addr := ecfr.NewFixedAddress(slave.StationAddress(), defaultMailboxInAddress)
	dg.Addr32 = addr.Addr32()
	return nil
}

package ecxfr

import (
	"github.com/zultron/etherlabmaster/ecfr"
	"github.com/zultron/etherlabmaster/ecreq"
)

// CoE SDO expedited service specifiers (ETG.1000.6 §5.6.2).
const (
	sdoCcsDownloadInitiate uint8 = 1
	sdoCcsUploadInitiate   uint8 = 2
	sdoScsUploadInitiate   uint8 = 2
	sdoAbortTransfer       uint8 = 4
)

// CoE drives a single expedited SDO upload or download. It does not
// implement segmented or block transfer; those are additional mailbox
// service specifiers layered on the same header shape and are left as a
// collaborator concern, matching the opaque-transfer-FSM boundary these
// mailbox classes are specified behind.
type CoE struct {
	slave   SlaveInfo
	request *ecreq.SDORequest
	counter uint8
	phase   int
	success bool
}

func (c *CoE) Begin(slave SlaveInfo, request any) {
	c.slave = slave
	c.request = request.(*ecreq.SDORequest)
	c.phase = 0
	c.counter = 1
}

func (c *CoE) Exec(reply, out *ecfr.Datagram) bool {
	switch c.phase {
	case 0:
		service := c.buildInitiateRequest()
		sendMailbox(out, c.slave, mbxTypeCoE, c.counter, service)
		c.phase = 1
		return true
	case 1:
		// previous write's outcome is visible only via WC, checked by the
		// caller; proceed to poll for the reply regardless.
		recvMailbox(out, c.slave, 10)
		c.phase = 2
		return true
	default:
		c.parseInitiateResponse(reply)
		return false
	}
}

func (c *CoE) Success() bool { return c.success }

func (c *CoE) buildInitiateRequest() []byte {
	b := make([]byte, 10)
	// CoE header: number/reserved = 0, service = SDO request (2).
	b[0], b[1] = 0, uint8(2)<<4

	if c.request.Direction == ecreq.Download {
		size := uint32(len(c.request.Data))
		ccs := sdoCcsDownloadInitiate
		flags := ccs<<5 | 1<<1 // expedited, size indicated
		if size < 4 {
			flags |= uint8((4 - size)) << 2 // n: unused bytes in payload
		}
		b[2] = flags
		b[3], b[4] = uint8(c.request.Index), uint8(c.request.Index>>8)
		b[5] = c.request.Subindex
		copy(b[6:10], c.request.Data)
	} else {
		b[2] = sdoCcsUploadInitiate << 5
		b[3], b[4] = uint8(c.request.Index), uint8(c.request.Index>>8)
		b[5] = c.request.Subindex
	}
	return b
}

func (c *CoE) parseInitiateResponse(dg *ecfr.Datagram) {
	if dg == nil || dg.WorkingCounter() != 1 {
		c.success = false
		return
	}
	buf := dg.Data()
	if len(buf) < mailboxHeaderLen+10 {
		c.success = false
		return
	}
	sdo := buf[mailboxHeaderLen:]
	scs := sdo[2] >> 5

	if scs == sdoAbortTransfer {
		c.request.AbortCode = uint32(sdo[6]) | uint32(sdo[7])<<8 | uint32(sdo[8])<<16 | uint32(sdo[9])<<24
		c.success = false
		return
	}

	if c.request.Direction == ecreq.Upload && scs == sdoScsUploadInitiate {
		n := 4
		if sdo[2]&(1<<1) != 0 { // size indicated, expedited
			n = 4 - int((sdo[2]>>2)&0x3)
		}
		if n > len(c.request.Data) {
			n = len(c.request.Data)
		}
		copy(c.request.Data, sdo[6:6+n])
	}
	c.success = true
}

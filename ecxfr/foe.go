package ecxfr

import (
	"github.com/zultron/etherlabmaster/ecfr"
	"github.com/zultron/etherlabmaster/ecreq"
)

// FoE opcodes (ETG.1000.6 §5.7.1).
const (
	foeOpRRQ uint8 = 1
	foeOpWRQ uint8 = 2
	foeOpAck uint8 = 4
	foeOpErr uint8 = 5
)

// FoE drives one FoE block: a read or write request followed by the
// server's ACK. Segmenting a multi-kilobyte payload across further DATA/ACK
// exchanges is additional cycling on the same shape and is left to the
// collaborator this interface abstracts over; this transfer completes the
// handshake for a single block. A write ends successfully on the server's
// ACK to the write request; the request's Data is not sent.
type FoE struct {
	slave   SlaveInfo
	request *ecreq.FoERequest
	upload  bool
	counter uint8
	phase   int
	success bool
}

func (f *FoE) Begin(slave SlaveInfo, request any) {
	f.slave = slave
	f.request = request.(*ecreq.FoERequest)
	f.upload = f.request.Direction == ecreq.FoERead
	f.phase = 0
	f.counter = 1
}

func (f *FoE) Exec(reply, out *ecfr.Datagram) bool {
	switch f.phase {
	case 0:
		op := foeOpWRQ
		if f.upload {
			op = foeOpRRQ
		}
		b := make([]byte, 6+len(f.request.FileName))
		b[0] = op
		b[4], b[5], b[2], b[3] = uint8(f.request.Password), uint8(f.request.Password>>8), uint8(f.request.Password>>16), uint8(f.request.Password>>24)
		copy(b[6:], f.request.FileName)
		sendMailbox(out, f.slave, mbxTypeFoE, f.counter, b)
		f.phase = 1
		return true
	case 1:
		recvMailbox(out, f.slave, 6+len(f.request.Data))
		f.phase = 2
		return true
	default:
		f.parseReply(reply)
		return false
	}
}

func (f *FoE) Success() bool { return f.success }

func (f *FoE) parseReply(dg *ecfr.Datagram) {
	if dg == nil || dg.WorkingCounter() != 1 {
		f.success = false
		return
	}
	buf := dg.Data()
	if len(buf) < mailboxHeaderLen+6 {
		f.success = false
		return
	}
	svc := buf[mailboxHeaderLen:]
	switch svc[0] {
	case foeOpAck:
		f.success = true
	case foeOpErr:
		f.success = false
	default:
		if f.upload {
			n := len(svc) - 6
			if n > len(f.request.Data) {
				n = len(f.request.Data)
			}
			copy(f.request.Data, svc[6:6+n])
			f.success = true
		} else {
			f.success = false
		}
	}
}

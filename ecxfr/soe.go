package ecxfr

import (
	"github.com/zultron/etherlabmaster/ecfr"
	"github.com/zultron/etherlabmaster/ecreq"
)

// SoE opcodes (ETG.1000.6 §5.8.2, IDN data element only).
const (
	soeOpReadReq  uint8 = 1
	soeOpReadRsp  uint8 = 2
	soeOpWriteReq uint8 = 3
	soeOpWriteRsp uint8 = 4
)

// SoE drives one IDN read or write against a drive.
type SoE struct {
	slave   SlaveInfo
	request *ecreq.SoERequest
	write   bool
	counter uint8
	phase   int
	success bool
}

func (s *SoE) Begin(slave SlaveInfo, request any) {
	s.slave = slave
	s.request = request.(*ecreq.SoERequest)
	s.write = len(s.request.Data) > 0
	s.phase = 0
	s.counter = 1
}

func (s *SoE) Exec(reply, out *ecfr.Datagram) bool {
	switch s.phase {
	case 0:
		op := soeOpReadReq
		if s.write {
			op = soeOpWriteReq
		}
		payload := s.request.Data
		if !s.write {
			payload = nil
		}
		b := make([]byte, 4+len(payload))
		b[0] = op | (s.request.DriveNo&0x07)<<5
		b[1] = 1 << 3 // element bit for "data state" value
		b[2], b[3] = uint8(s.request.IDN), uint8(s.request.IDN>>8)
		copy(b[4:], payload)
		sendMailbox(out, s.slave, mbxTypeSoE, s.counter, b)
		s.phase = 1
		return true
	case 1:
		recvMailbox(out, s.slave, 4+len(s.request.Data))
		s.phase = 2
		return true
	default:
		s.parseReply(reply)
		return false
	}
}

func (s *SoE) Success() bool { return s.success }

func (s *SoE) parseReply(dg *ecfr.Datagram) {
	if dg == nil || dg.WorkingCounter() != 1 {
		s.success = false
		return
	}
	buf := dg.Data()
	if len(buf) < mailboxHeaderLen+4 {
		s.success = false
		return
	}
	svc := buf[mailboxHeaderLen:]
	op := svc[0] & 0x07
	errBit := svc[0]&(1<<4) != 0
	if errBit {
		s.success = false
		return
	}
	if op == soeOpReadRsp && !s.write {
		n := len(svc) - 4
		if n > len(s.request.Data) {
			n = len(s.request.Data)
		}
		copy(s.request.Data, svc[4:4+n])
	}
	s.success = (op == soeOpReadRsp && !s.write) || (op == soeOpWriteRsp && s.write)
}

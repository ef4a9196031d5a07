package ecxfr

import (
	"reflect"
	"testing"

	"github.com/zultron/etherlabmaster/ecfr"
	"github.com/zultron/etherlabmaster/ecreq"
)

func buildReplyDatagram(t *testing.T, service []byte, wc uint16) *ecfr.Datagram {
	t.Helper()
	total := mailboxHeaderLen + len(service)
	buf := make([]byte, ecfr.DatagramOverheadLength+total)
	dg, err := ecfr.PointDatagramTo(buf)
	if err != nil {
		t.Fatal(err)
	}
	if err := dg.SetDataLen(total); err != nil {
		t.Fatal(err)
	}
	h := mailboxHeader{length: uint16(len(service)), typ: mbxTypeCoE, counter: 1}
	h.put(dg.Data())
	copy(dg.Data()[mailboxHeaderLen:], service)
	dg.SetWorkingCounter(wc)
	return &dg
}

func TestCoEUploadExpeditedSuccess(t *testing.T) {
	slave := fakeSlaveInfo{station: 0x1001}
	buf := make([]byte, 4)
	req := ecreq.NewSDOUpload(0x6000, 0x01, buf)

	c := &CoE{}
	c.Begin(slave, req)

	out := newOutDatagram(t)
	if running := c.Exec(nil, out); !running {
		t.Fatal("phase 0 Exec returned false")
	}
	if out.Command != ecfr.FPWR {
		t.Fatalf("phase 0 command = %v, want FPWR", out.Command)
	}

	out = newOutDatagram(t)
	if running := c.Exec(nil, out); !running {
		t.Fatal("phase 1 Exec returned false")
	}
	if out.Command != ecfr.FPRD {
		t.Fatalf("phase 1 command = %v, want FPRD", out.Command)
	}

	// expedited upload response: scs=2, expedited+size-indicated, all 4
	// bytes used, data = DE AD BE EF
	sdo := []byte{0, 0, 0x42, 0x00, 0x60, 0x01, 0xde, 0xad, 0xbe, 0xef}
	reply := buildReplyDatagram(t, sdo, 1)

	if running := c.Exec(reply, newOutDatagram(t)); running {
		t.Fatal("final Exec returned true, want false (terminal)")
	}
	if !c.Success() {
		t.Fatal("Success() = false, want true")
	}

	want := []byte{0xde, 0xad, 0xbe, 0xef}
	if !reflect.DeepEqual(buf, want) {
		t.Fatalf("uploaded data = % x, want % x", buf, want)
	}
}

func TestCoEUploadAbort(t *testing.T) {
	slave := fakeSlaveInfo{station: 0x1001}
	req := ecreq.NewSDOUpload(0x6000, 0x01, make([]byte, 4))

	c := &CoE{}
	c.Begin(slave, req)
	c.Exec(nil, newOutDatagram(t))
	c.Exec(nil, newOutDatagram(t))

	// abort response: scs/ccs field = sdoAbortTransfer (4<<5), abort code
	// 0x06020000 (object does not exist)
	sdo := []byte{0, 0, sdoAbortTransfer << 5, 0x00, 0x60, 0x01, 0x00, 0x00, 0x02, 0x06}
	reply := buildReplyDatagram(t, sdo, 1)

	c.Exec(reply, newOutDatagram(t))

	if c.Success() {
		t.Fatal("Success() = true, want false on abort")
	}
	if req.AbortCode != 0x06020000 {
		t.Fatalf("AbortCode = %#x, want 0x06020000", req.AbortCode)
	}
}

func TestCoEReplyMissingFailsClosed(t *testing.T) {
	slave := fakeSlaveInfo{station: 0x1001}
	req := ecreq.NewSDOUpload(0x6000, 0x01, make([]byte, 4))

	c := &CoE{}
	c.Begin(slave, req)
	c.Exec(nil, newOutDatagram(t))
	c.Exec(nil, newOutDatagram(t))
	c.Exec(nil, newOutDatagram(t))

	if c.Success() {
		t.Fatal("Success() = true, want false when reply is nil")
	}
}

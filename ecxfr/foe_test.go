package ecxfr

import (
	"reflect"
	"testing"

	"github.com/zultron/etherlabmaster/ecfr"
	"github.com/zultron/etherlabmaster/ecreq"
)

func buildFoEReply(t *testing.T, svc []byte) *ecfr.Datagram {
	t.Helper()
	total := mailboxHeaderLen + len(svc)
	buf := make([]byte, ecfr.DatagramOverheadLength+total)
	dg, err := ecfr.PointDatagramTo(buf)
	if err != nil {
		t.Fatal(err)
	}
	if err := dg.SetDataLen(total); err != nil {
		t.Fatal(err)
	}
	h := mailboxHeader{length: uint16(len(svc)), typ: mbxTypeFoE, counter: 1}
	h.put(dg.Data())
	copy(dg.Data()[mailboxHeaderLen:], svc)
	dg.SetWorkingCounter(1)
	return &dg
}

func TestFoEWriteAck(t *testing.T) {
	req := ecreq.NewFoEWrite("firmware.bin", 0, []byte{0x01, 0x02})
	f := &FoE{}
	f.Begin(fakeSlaveInfo{station: 0x1001}, req)

	f.Exec(nil, newOutDatagram(t))
	f.Exec(nil, newOutDatagram(t))

	reply := buildFoEReply(t, []byte{foeOpAck, 0, 0, 0, 0, 0})
	f.Exec(reply, newOutDatagram(t))

	if !f.Success() {
		t.Fatal("Success() = false, want true on ACK")
	}
}

func TestFoEWriteErr(t *testing.T) {
	req := ecreq.NewFoEWrite("firmware.bin", 0, []byte{0x01, 0x02})
	f := &FoE{}
	f.Begin(fakeSlaveInfo{station: 0x1001}, req)

	f.Exec(nil, newOutDatagram(t))
	f.Exec(nil, newOutDatagram(t))

	reply := buildFoEReply(t, []byte{foeOpErr, 0, 0, 0, 0, 0})
	f.Exec(reply, newOutDatagram(t))

	if f.Success() {
		t.Fatal("Success() = true, want false on ERR")
	}
}

func TestFoEReadDeliversData(t *testing.T) {
	buf := make([]byte, 2)
	req := ecreq.NewFoERead("firmware.bin", 0, buf)

	f := &FoE{}
	f.Begin(fakeSlaveInfo{station: 0x1001}, req)

	f.Exec(nil, newOutDatagram(t))
	f.Exec(nil, newOutDatagram(t))

	// a DATA block carries opcode 3 (not ACK/ERR), a reserved byte, a 4
	// byte packet number and then the file bytes.
	svc := append([]byte{3, 0, 1, 0, 0, 0, 0xaa, 0xbb}, nil...)
	reply := buildFoEReply(t, svc)
	f.Exec(reply, newOutDatagram(t))

	if !f.Success() {
		t.Fatal("Success() = false, want true on data block")
	}
	if !reflect.DeepEqual(buf, []byte{0xaa, 0xbb}) {
		t.Fatalf("data = % x, want aa bb", buf)
	}
}

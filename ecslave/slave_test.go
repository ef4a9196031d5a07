package ecslave

import (
	"testing"

	"github.com/zultron/etherlabmaster/ecdir"
	"github.com/zultron/etherlabmaster/ecfr"
	"github.com/zultron/etherlabmaster/ecmd"
	"github.com/zultron/etherlabmaster/ecreq"
)

// fakeCommander hands out a fresh datagram on every New call and never
// advances on its own; tests drive arrival by hand.
type fakeCommander struct {
	lastDatalen int
}

func (c *fakeCommander) New(datalen int) (*ecmd.ExecutingCommand, error) {
	c.lastDatalen = datalen
	buf := make([]byte, ecfr.DatagramOverheadLength+datalen)
	dg, err := ecfr.PointDatagramTo(buf)
	if err != nil {
		return nil, err
	}
	if err := dg.SetDataLen(datalen); err != nil {
		return nil, err
	}
	return &ecmd.ExecutingCommand{DatagramOut: &dg}, nil
}

func (c *fakeCommander) Cycle() error { return nil }
func (c *fakeCommander) Close() error { return nil }

func replyDatagram(data []byte, wc uint16) *ecfr.Datagram {
	buf := make([]byte, ecfr.DatagramOverheadLength+len(data))
	dg, err := ecfr.PointDatagramTo(buf)
	if err != nil {
		panic(err)
	}
	if err := dg.SetDataLen(len(data)); err != nil {
		panic(err)
	}
	copy(dg.Data(), data)
	dg.SetWorkingCounter(wc)
	return &dg
}

func TestSlaveReadyTransition(t *testing.T) {
	s := New(0x1001, 0, 2, 0x044c2c52, &fakeCommander{}, nil)

	if got := s.State(); got != Idle {
		t.Fatalf("new slave state = %v, want Idle", got)
	}

	s.Tick() // IDLE tick is a no-op
	if got := s.State(); got != Idle {
		t.Fatalf("state after Tick in Idle = %v, want Idle", got)
	}

	s.Ready()
	if got := s.State(); got != Ready {
		t.Fatalf("state after Ready() = %v, want Ready", got)
	}

	// Ready() is a no-op once past Idle.
	s.Ready()
	if got := s.State(); got != Ready {
		t.Fatalf("state after second Ready() = %v, want Ready", got)
	}
}

func TestSlaveRegisterRequestRoundTrip(t *testing.T) {
	cmd := &fakeCommander{}
	s := New(0x1001, 0, 2, 0x044c2c52, cmd, nil)
	s.Ready()

	buf := make([]byte, 2)
	req := ecreq.NewRegisterRequest(0x0130, ecdir.Input, buf)
	s.SubmitRegister(req)

	s.Tick()
	if got := s.State(); got != RegRequestState {
		t.Fatalf("state after dispatch = %v, want RegRequestState", got)
	}
	if req.State() != ecreq.Busy {
		t.Fatalf("request state after dispatch = %v, want Busy", req.State())
	}

	out := s.current.DatagramOut
	if out.Command != ecfr.FPRD {
		t.Fatalf("outgoing command = %v, want FPRD", out.Command)
	}

	// simulate a round trip: no further Tick progress until Arrived.
	s.Tick()
	if got := s.State(); got != RegRequestState {
		t.Fatalf("state advanced without Arrived: %v", got)
	}

	s.current.DatagramIn = replyDatagram([]byte{0x11, 0x22}, 1)
	s.current.Arrived = true

	s.Tick()
	if got := s.State(); got != Ready {
		t.Fatalf("state after completion = %v, want Ready", got)
	}
	if req.State() != ecreq.Success {
		t.Fatalf("request state after completion = %v, want Success", req.State())
	}
	if buf[0] != 0x11 || buf[1] != 0x22 {
		t.Fatalf("register data = % x, want 11 22", buf)
	}
}

func TestSlaveRegisterRequestWrongWorkingCounter(t *testing.T) {
	cmd := &fakeCommander{}
	s := New(0x1001, 0, 2, 0x044c2c52, cmd, nil)
	s.Ready()

	req := ecreq.NewRegisterRequest(0x0130, ecdir.Input, make([]byte, 2))
	s.SubmitRegister(req)
	s.Tick()

	s.current.DatagramIn = replyDatagram([]byte{0, 0}, 0)
	s.current.Arrived = true
	s.Tick()

	if req.State() != ecreq.Failure {
		t.Fatalf("request state = %v, want Failure on wrong working counter", req.State())
	}
	if got := s.State(); got != Ready {
		t.Fatalf("state after failed register request = %v, want Ready", got)
	}
}

// TestSlaveSDOAbortTargetsIdle verifies the SDO/SoE abort asymmetry: an
// ACK_ERR AL state aborts straight to IDLE, not READY.
func TestSlaveSDOAbortTargetsIdle(t *testing.T) {
	s := New(0x1001, 0, 2, 0x044c2c52, &fakeCommander{}, nil)
	s.Ready()
	s.SetALState(AckErr)

	req := ecreq.NewSDOUpload(0x6000, 0x01, make([]byte, 4))
	s.SubmitSDO(req)
	s.Tick()

	if got := s.State(); got != Idle {
		t.Fatalf("state after SDO abort under ACK_ERR = %v, want Idle", got)
	}
	if req.State() != ecreq.Failure {
		t.Fatalf("request state = %v, want Failure", req.State())
	}
}

// TestSlaveFoEAbortTargetsReady verifies the REG/FOE abort asymmetry: an
// ACK_ERR AL state aborts to READY, not IDLE.
func TestSlaveFoEAbortTargetsReady(t *testing.T) {
	s := New(0x1001, 0, 2, 0x044c2c52, &fakeCommander{}, nil)
	s.Ready()
	s.SetALState(AckErr)

	req := ecreq.NewFoERead("firmware.bin", 0, make([]byte, 4))
	s.SubmitFoE(req)
	s.Tick()

	if got := s.State(); got != Ready {
		t.Fatalf("state after FoE abort under ACK_ERR = %v, want Ready", got)
	}
	if req.State() != ecreq.Failure {
		t.Fatalf("request state = %v, want Failure", req.State())
	}
}

// TestSlaveReadyRotationPicksSDOFirst verifies the fixed SDO->REG->FOE->SOE
// priority (spec.md §4.1 "READY rotation" / §8 scenario 3): with one
// request of every class pending simultaneously, the first tick in READY
// must dispatch the SDO request and leave the other three queued.
func TestSlaveReadyRotationPicksSDOFirst(t *testing.T) {
	s := New(0x1001, 0, 2, 0x044c2c52, &fakeCommander{}, nil)
	s.Ready()

	sdoReq := ecreq.NewSDOUpload(0x6000, 0x01, make([]byte, 4))
	regReq := ecreq.NewRegisterRequest(0x0130, ecdir.Input, make([]byte, 2))
	foeReq := ecreq.NewFoERead("firmware.bin", 0, make([]byte, 4))
	soeReq := ecreq.NewSoERequest(0, 1, make([]byte, 2))

	s.SubmitSDO(sdoReq)
	s.SubmitRegister(regReq)
	s.SubmitFoE(foeReq)
	s.SubmitSoE(soeReq)

	s.Tick()

	if got := s.State(); got != SDORequestState {
		t.Fatalf("state after rotation tick = %v, want SDORequestState", got)
	}
	if sdoReq.State() != ecreq.Busy {
		t.Fatalf("SDO request state = %v, want Busy", sdoReq.State())
	}
	if regReq.State() != ecreq.Queued {
		t.Fatalf("register request state = %v, want still Queued", regReq.State())
	}
	if foeReq.State() != ecreq.Queued {
		t.Fatalf("FoE request state = %v, want still Queued", foeReq.State())
	}
	if soeReq.State() != ecreq.Queued {
		t.Fatalf("SoE request state = %v, want still Queued", soeReq.State())
	}
	if s.regQueue.Len() != 1 || s.foeQueue.Len() != 1 || s.soeQueue.Len() != 1 {
		t.Fatalf("non-SDO queues should remain untouched by the winning class")
	}
}

func TestSlaveSDOAbortsWhenSlaveInInit(t *testing.T) {
	s := New(0x1001, 0, 2, 0x044c2c52, &fakeCommander{}, nil)
	s.Ready()
	s.SetALState(Init)

	req := ecreq.NewSDOUpload(0x6000, 0x01, make([]byte, 4))
	s.SubmitSDO(req)
	s.Tick()

	if got := s.State(); got != Idle {
		t.Fatalf("state after SDO dispatch while slave in Init = %v, want Idle", got)
	}
	if req.State() != ecreq.Failure {
		t.Fatalf("request state = %v, want Failure", req.State())
	}
}

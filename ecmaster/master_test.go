package ecmaster

import (
	"testing"

	"github.com/zultron/etherlabmaster/ecdir"
	"github.com/zultron/etherlabmaster/ecdom"
	"github.com/zultron/etherlabmaster/ecfr"
	"github.com/zultron/etherlabmaster/ecreq"
)

// ackFramer is a loopback ecmd.Framer: every datagram it carries comes back
// with its working counter bumped by one, as if a single well-behaved slave
// answered every command. It exists to drive Master.Cycle() end to end
// without a real link or the full bus simulator.
type ackFramer struct {
	frames []*ecfr.Frame
}

func (f *ackFramer) New(maxdatalen int) (*ecfr.Frame, error) {
	buf := make([]byte, maxdatalen+ecfr.FrameOverheadLen)
	fr, err := ecfr.PointFrameTo(buf)
	if err != nil {
		return nil, err
	}
	f.frames = append(f.frames, &fr)
	return &fr, nil
}

func (f *ackFramer) Cycle() ([]*ecfr.Frame, error) {
	out := f.frames
	f.frames = nil
	for _, fr := range out {
		for _, dg := range fr.Datagrams {
			dg.SetWorkingCounter(dg.WorkingCounter() + 1)
		}
	}
	return out, nil
}

func (f *ackFramer) Close() error { return nil }

func TestMasterAddSlaveAndCycleDrivesRegisterRequest(t *testing.T) {
	m, err := New(&ackFramer{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	slave, err := m.AddSlave(0x1001, 0, 2, 0x044c2c52, nil)
	if err != nil {
		t.Fatal(err)
	}
	slave.Ready()

	buf := make([]byte, 2)
	req := ecreq.NewRegisterRequest(0x0130, ecdir.Input, buf)
	slave.SubmitRegister(req)

	// dispatch.
	if err := m.Cycle(); err != nil {
		t.Fatal(err)
	}
	if req.State() != ecreq.Busy {
		t.Fatalf("request state after one cycle = %v, want Busy", req.State())
	}

	// the ack arrives and is consumed on the following cycle.
	if err := m.Cycle(); err != nil {
		t.Fatal(err)
	}
	if req.State() != ecreq.Success {
		t.Fatalf("request state after second cycle = %v, want Success", req.State())
	}
}

func TestMasterAddDomainWithoutBackupFallsBackToMain(t *testing.T) {
	m, err := New(&ackFramer{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	dom, err := m.AddDomain(0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dom.AddFMMUConfig(ecdom.FMMUConfig{
		Direction:   ecdir.Input,
		SlaveConfig: "slaveA",
		DataSize:    2,
	}); err != nil {
		t.Fatal(err)
	}
	if err := dom.Finish(0); err != nil {
		t.Fatal(err)
	}

	if err := m.Cycle(); err != nil {
		t.Fatal(err)
	}
}

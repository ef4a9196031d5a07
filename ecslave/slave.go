// Package ecslave implements the per-slave cooperative request FSM: the
// state machine that multiplexes SDO, register, FoE and SoE requests onto
// one shared datagram per master cycle for a single slave.
package ecslave

import (
	"github.com/sirupsen/logrus"

	"github.com/zultron/etherlabmaster/ecdir"
	"github.com/zultron/etherlabmaster/ecfr"
	"github.com/zultron/etherlabmaster/ecmd"
	"github.com/zultron/etherlabmaster/ecreq"
	"github.com/zultron/etherlabmaster/ecxfr"
)

// Slave holds one bus position's identity, AL state, per-class request
// queues and the request FSM's own bookkeeping. Slave does no locking of
// its own: Tick and the Submit* methods are not safe to call concurrently
// with each other, so callers serialize them.
type Slave struct {
	station     uint16
	deviceIndex int
	vendorID    uint32
	productID   uint32

	cmd    ecmd.Commander
	config Config

	alState ALState

	sdoQueue ecreq.Queue[*ecreq.SDORequest]
	regQueue ecreq.Queue[*ecreq.RegisterRequest]
	foeQueue ecreq.Queue[*ecreq.FoERequest]
	soeQueue ecreq.Queue[*ecreq.SoERequest]

	state    State
	current  *ecmd.ExecutingCommand
	transfer ecxfr.Transfer

	curSDO         *ecreq.SDORequest
	curReg         *ecreq.RegisterRequest
	curRegInternal bool
	curFoE         *ecreq.FoERequest
	curSoE         *ecreq.SoERequest
}

// New builds a slave FSM in state IDLE. cmd is the shared per-master-cycle
// datagram commander; config may be nil if the slave has no owning
// slave-config (no internal register requests will ever be found).
func New(station uint16, deviceIndex int, vendorID, productID uint32, cmd ecmd.Commander, config Config) *Slave {
	return &Slave{
		station:     station,
		deviceIndex: deviceIndex,
		vendorID:    vendorID,
		productID:   productID,
		cmd:         cmd,
		config:      config,
		state:       Idle,
	}
}

func (s *Slave) StationAddress() uint16 { return s.station }
func (s *Slave) DeviceIndex() int       { return s.deviceIndex }
func (s *Slave) VendorID() uint32       { return s.vendorID }
func (s *Slave) ProductID() uint32      { return s.productID }
func (s *Slave) State() State           { return s.state }
func (s *Slave) ALState() ALState       { return s.alState }

// SetALState updates the slave's known AL state, normally derived by the
// master configuration FSM from a periodic ecad.ALStatus read. This is the
// only input the request FSM needs from that (out of scope) layer.
func (s *Slave) SetALState(st ALState) { s.alState = st }

// Ready is the sole external transition: IDLE -> READY, once the slave is
// known reachable.
func (s *Slave) Ready() {
	if s.state == Idle {
		s.state = Ready
	}
}

func (s *Slave) SubmitSDO(req *ecreq.SDORequest)      { s.sdoQueue.Push(req) }
func (s *Slave) SubmitRegister(req *ecreq.RegisterRequest) { s.regQueue.Push(req) }
func (s *Slave) SubmitFoE(req *ecreq.FoERequest)      { s.foeQueue.Push(req) }
func (s *Slave) SubmitSoE(req *ecreq.SoERequest)      { s.soeQueue.Push(req) }

// Tick advances the FSM by one master cycle. It must be called exactly once
// per cycle from the single cyclic context.
func (s *Slave) Tick() {
	if s.current != nil && !s.current.Arrived {
		// suspension rule: the previous cycle's datagram hasn't round-tripped
		return
	}

	switch s.state {
	case Idle:
		return
	case Ready:
		s.tickReady()
	case SDORequestState:
		s.tickTransfer(s.curSDO)
	case RegRequestState:
		s.tickReg()
	case FoERequestState:
		s.tickTransfer(s.curFoE)
	case SoERequestState:
		s.tickTransfer(s.curSoE)
	}
}

func (s *Slave) tickReady() {
	if req, ok := s.sdoQueue.Pop(); ok {
		s.dispatchSDO(req)
		return
	}
	if req, internal, ok := s.popRegisterRequest(); ok {
		s.dispatchRegister(req, internal)
		return
	}
	if req, ok := s.foeQueue.Pop(); ok {
		s.dispatchFoE(req)
		return
	}
	if req, ok := s.soeQueue.Pop(); ok {
		s.dispatchSoE(req)
		return
	}
}

func (s *Slave) popRegisterRequest() (req *ecreq.RegisterRequest, internal bool, ok bool) {
	if s.config != nil {
		for _, r := range s.config.RegisterRequests() {
			if r.State() == ecreq.Queued {
				return r, true, true
			}
		}
	}
	if r, popped := s.regQueue.Pop(); popped {
		return r, false, true
	}
	return nil, false, false
}

func (s *Slave) dispatchSDO(req *ecreq.SDORequest) {
	if s.abortIfUnreachable(req, true) {
		return
	}
	req.MarkBusy()
	s.curSDO = req
	s.beginTransfer(&ecxfr.CoE{}, req, SDORequestState)
}

func (s *Slave) dispatchFoE(req *ecreq.FoERequest) {
	if s.abortIfAckErr(req, Ready) {
		return
	}
	req.MarkBusy()
	s.curFoE = req
	s.beginTransfer(&ecxfr.FoE{}, req, FoERequestState)
}

func (s *Slave) dispatchSoE(req *ecreq.SoERequest) {
	if s.abortIfUnreachable(req, true) {
		return
	}
	req.MarkBusy()
	s.curSoE = req
	s.beginTransfer(&ecxfr.SoE{}, req, SoERequestState)
}

// abortIfUnreachable applies the SDO/SoE abort checks (ACK_ERR, then INIT),
// both targeting IDLE (the asymmetry noted in DESIGN.md).
func (s *Slave) abortIfUnreachable(req ecreq.Request, checkInit bool) bool {
	if s.alState.HasAckErr() {
		req.Complete(ecreq.Failure)
		s.state = Idle
		return true
	}
	if checkInit && s.alState.Base() == Init {
		req.Complete(ecreq.Failure)
		s.state = Idle
		return true
	}
	return false
}

// abortIfAckErr applies the REG/FOE ACK_ERR check, which targets READY
// rather than IDLE.
func (s *Slave) abortIfAckErr(req ecreq.Request, target State) bool {
	if s.alState.HasAckErr() {
		req.Complete(ecreq.Failure)
		s.state = target
		return true
	}
	return false
}

func (s *Slave) beginTransfer(xfr ecxfr.Transfer, req ecreq.Request, next State) {
	xfr.Begin(s, req)
	cmd, err := s.cmd.New(ecxfr.MaxDatagramLen)
	if err != nil {
		logrus.WithError(err).Warn("ecslave: failed to allocate mailbox datagram")
		req.Complete(ecreq.Failure)
		s.state = Ready
		return
	}
	running := xfr.Exec(nil, cmd.DatagramOut)
	if !running {
		req.Complete(outcome(xfr.Success()))
		s.state = Ready
		return
	}
	s.transfer = xfr
	s.current = cmd
	s.state = next
}

func (s *Slave) tickTransfer(req ecreq.Request) {
	reply := s.current.DatagramIn
	cmd, err := s.cmd.New(ecxfr.MaxDatagramLen)
	if err != nil {
		logrus.WithError(err).Warn("ecslave: failed to allocate mailbox datagram")
		req.Complete(ecreq.Failure)
		s.finishTransfer()
		return
	}
	running := s.transfer.Exec(reply, cmd.DatagramOut)
	if running {
		s.current = cmd
		return
	}
	req.Complete(outcome(s.transfer.Success()))
	s.finishTransfer()
}

func (s *Slave) finishTransfer() {
	s.transfer = nil
	s.current = nil
	s.curSDO = nil
	s.curFoE = nil
	s.curSoE = nil
	s.state = Ready
}

func outcome(success bool) ecreq.State {
	if success {
		return ecreq.Success
	}
	return ecreq.Failure
}

func (s *Slave) dispatchRegister(req *ecreq.RegisterRequest, internal bool) {
	if s.abortIfAckErr(req, Ready) {
		return
	}
	req.MarkBusy()
	s.curReg = req
	s.curRegInternal = internal

	ct := ecfr.FPRD
	if req.Direction == ecdir.Output {
		ct = ecfr.FPWR
	}

	cmd, err := s.cmd.New(req.TransferSize)
	if err != nil {
		logrus.WithError(err).Warn("ecslave: failed to allocate register datagram")
		req.Complete(ecreq.Failure)
		s.state = Ready
		return
	}

	dg := cmd.DatagramOut
	dg.Command = ct
	addr := ecfr.NewFixedAddress(s.station, req.Address)
	dg.Addr32 = addr.Addr32()
	if req.Direction == ecdir.Output {
		copy(dg.Data(), req.Data)
	}

	s.current = cmd
	s.state = RegRequestState
}

func (s *Slave) tickReg() {
	// cleanup contract: config torn down between dispatch and completion.
	if s.curRegInternal && s.config == nil {
		s.current = nil
		s.curReg = nil
		s.state = Ready
		return
	}

	req := s.curReg
	cmd := s.current

	if cmd.Error != nil || cmd.DatagramIn == nil {
		logrus.Warn("ecslave: register request datagram not received")
		req.Complete(ecreq.Failure)
	} else if wc := cmd.DatagramIn.WorkingCounter(); wc == 1 {
		if req.Direction == ecdir.Input {
			copy(req.Data, cmd.DatagramIn.Data())
		}
		req.Complete(ecreq.Success)
	} else {
		logrus.WithField("wc", cmd.DatagramIn.WorkingCounter()).
			Warn("ecslave: register request unexpected working counter")
		req.Complete(ecreq.Failure)
	}

	s.current = nil
	s.curReg = nil
	s.state = Ready
}

package ecreq

import "github.com/zultron/etherlabmaster/ecdir"

// RegisterRequest is a raw ESC register access: read (Input) or write
// (Output) `TransferSize` bytes at a slave-local address.
//
// Two queues can hold register requests (spec.md §4.1.2): the per-slave
// external queue, FIFO-dequeued like every other request class, and the
// slave-config's internal queue, whose entries are long-lived and are only
// flagged BUSY in place rather than dequeued, so the owning config can keep
// re-inspecting the same slot cycle after cycle.
type RegisterRequest struct {
	Base

	Address      uint16
	Direction    ecdir.Direction
	TransferSize int
	Data         []byte
}

func NewRegisterRequest(addr uint16, dir ecdir.Direction, data []byte) *RegisterRequest {
	return &RegisterRequest{
		Base:         newBase(),
		Address:      addr,
		Direction:    dir,
		TransferSize: len(data),
		Data:         data,
	}
}

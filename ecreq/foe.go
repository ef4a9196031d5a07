package ecreq

// FoEDirection distinguishes a file read from a file write, the way
// SDODirection does for CoE.
type FoEDirection uint8

const (
	FoERead FoEDirection = iota
	FoEWrite
)

// FoERequest is a file-over-mailbox transfer: a possibly multi-kilobyte,
// multi-cycle file read or write identified by name. For a read, Data must
// be preallocated to the expected reply size; for a write, Data holds the
// outgoing file content, which the single-block ecxfr.FoE transfer does not
// send (it completes on the server's ACK to the write request).
type FoERequest struct {
	Base

	FileName  string
	Password  uint32
	Direction FoEDirection
	Data      []byte
}

// NewFoERead builds a QUEUED request to read a file from the slave. buf is
// where the received bytes are copied on SUCCESS.
func NewFoERead(filename string, password uint32, buf []byte) *FoERequest {
	return &FoERequest{Base: newBase(), FileName: filename, Password: password, Direction: FoERead, Data: buf}
}

// NewFoEWrite builds a QUEUED request to write a file to the slave.
func NewFoEWrite(filename string, password uint32, data []byte) *FoERequest {
	return &FoERequest{Base: newBase(), FileName: filename, Password: password, Direction: FoEWrite, Data: data}
}

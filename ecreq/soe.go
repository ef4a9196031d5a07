package ecreq

// SoERequest is a servo-over-mailbox parameter access: an IDN on a given
// drive number within a (possibly multi-axis) slave.
type SoERequest struct {
	Base

	DriveNo uint8
	IDN     uint16
	Data    []byte
}

func NewSoERequest(driveNo uint8, idn uint16, data []byte) *SoERequest {
	return &SoERequest{Base: newBase(), DriveNo: driveNo, IDN: idn, Data: data}
}

package ecdom

import (
	"github.com/zultron/etherlabmaster/ecfr"
	"github.com/zultron/etherlabmaster/ecmd"
)

// datagramPair is one contiguous slice of a domain's logical address space,
// addressed identically on the main and backup links.
type datagramPair struct {
	offset         int
	size           int
	logicalAddress uint32
	command        ecfr.CommandType
	expectedWC     uint16

	sendBuffer []byte
	prevMain   []byte

	mainExec   *ecmd.ExecutingCommand
	backupExec *ecmd.ExecutingCommand
}

func (p *datagramPair) contains(logicalAddr uint32) bool {
	return logicalAddr >= p.logicalAddress && logicalAddr < p.logicalAddress+uint32(p.size)
}

func (p *datagramPair) label() string {
	switch p.command {
	case ecfr.LRW:
		return "LRW"
	case ecfr.LWR:
		return "LWR"
	case ecfr.LRD:
		return "LRD"
	default:
		return p.command.String()
	}
}

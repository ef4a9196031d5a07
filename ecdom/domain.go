// Package ecdom packs many slaves' FMMU configurations into one contiguous
// logical process-data address space, splits that space across one or more
// datagram pairs bounded by a maximum datagram size, queues and processes
// those pairs each cycle, and performs byte-range redundancy fallback
// between a main and a backup link.
package ecdom

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zultron/etherlabmaster/ecdir"
	"github.com/zultron/etherlabmaster/ecfr"
	"github.com/zultron/etherlabmaster/ecmd"
)

// MaxDataSize bounds a single datagram's payload, mirroring the link MTU
// budget after EtherCAT and Ethernet headers are accounted for.
const MaxDataSize = 1486

// WCState is the domain's coarse-grained health summary.
type WCState int

const (
	WCZero WCState = iota
	WCIncomplete
	WCComplete
)

func (s WCState) String() string {
	switch s {
	case WCZero:
		return "ZERO"
	case WCIncomplete:
		return "INCOMPLETE"
	case WCComplete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// Domain owns a contiguous process-data buffer and the datagram pairs that
// carry it over the wire.
type Domain struct {
	index int

	mainCmd   ecmd.Commander
	backupCmd ecmd.Commander

	fmmus    []*FMMUConfig
	dataSize int
	finished bool

	baseAddress uint32
	data        []byte
	external    bool

	pairs      []*datagramPair
	expectedWC uint16

	workingCounter uint16
	wcChanges      int
	lastLogTime    time.Time
}

// New builds an empty, unfinished domain. mainCmd and backupCmd are the
// per-link datagram commanders that Queue and Process drive.
func New(index int, mainCmd, backupCmd ecmd.Commander) *Domain {
	return &Domain{index: index, mainCmd: mainCmd, backupCmd: backupCmd}
}

// Size returns the domain's total process-data byte count.
func (d *Domain) Size() int { return d.dataSize }

// Data returns the current view of process data. Before Finish it is nil
// unless external memory was supplied with SetExternalMemory.
func (d *Domain) Data() []byte { return d.data }

// ExpectedWorkingCounter is the configuration-time computed health target.
func (d *Domain) ExpectedWorkingCounter() uint16 { return d.expectedWC }

// SetExternalMemory substitutes the domain's internally allocated buffer
// with application-owned memory. Must be called before Finish.
func (d *Domain) SetExternalMemory(buf []byte) error {
	if d.finished {
		return errors.New("ecdom: cannot set external memory after Finish")
	}
	d.data = buf
	d.external = true
	return nil
}

// AddFMMUConfig appends an FMMU descriptor and extends the domain's total
// data size. Illegal after Finish.
func (d *Domain) AddFMMUConfig(fc FMMUConfig) (*FMMUConfig, error) {
	if d.finished {
		return nil, errors.New("ecdom: cannot add an FMMU after Finish")
	}
	stored := fc
	d.fmmus = append(d.fmmus, &stored)
	d.dataSize += fc.DataSize
	return &stored, nil
}

// Finish is one-shot: it fixes the logical base address, allocates the data
// buffer if none was externally supplied, and builds the datagram-pair
// layout that tiles [base, base+Size()) with no gap and no overlap.
func (d *Domain) Finish(baseAddress uint32) error {
	if d.finished {
		return errors.New("ecdom: Finish called twice")
	}
	d.baseAddress = baseAddress

	if d.dataSize > 0 && !d.external {
		d.data = make([]byte, d.dataSize)
	}
	if len(d.data) < d.dataSize {
		return fmt.Errorf("ecdom: external memory too small, need %d bytes, have %d", d.dataSize, len(d.data))
	}

	offset := 0
	size := 0
	var used [2]int
	counted := map[[2]any]bool{}

	seal := func() error {
		if size == 0 {
			return nil
		}
		p, err := d.sealPair(offset, size, used)
		if err != nil {
			return err
		}
		d.pairs = append(d.pairs, p)
		offset += size
		return nil
	}

	for _, fmmu := range d.fmmus {
		fmmu.LogicalStart = baseAddress + uint32(offset) + uint32(size)

		if size+fmmu.DataSize > MaxDataSize {
			if err := seal(); err != nil {
				return err
			}
			size = 0
			used = [2]int{}
			counted = map[[2]any]bool{}
			fmmu.LogicalStart = baseAddress + uint32(offset)
		}

		key := [2]any{fmmu.SlaveConfig, fmmu.Direction}
		if !counted[key] {
			counted[key] = true
			used[fmmu.Direction]++
		}
		size += fmmu.DataSize
	}
	if err := seal(); err != nil {
		return err
	}

	d.finished = true
	logrus.WithFields(logrus.Fields{
		"domain":                  d.index,
		"logicalAddress":          fmt.Sprintf("%#08x", baseAddress),
		"bytes":                   d.dataSize,
		"expected_working_counter": d.expectedWC,
	}).Info("ecdom: domain finished")
	for _, p := range d.pairs {
		logrus.WithFields(logrus.Fields{
			"domain":         d.index,
			"logicalOffset":  fmt.Sprintf("%#08x", p.logicalAddress),
			"bytes":          p.size,
			"type":           p.label(),
		}).Info("ecdom: datagram pair")
	}
	return nil
}

func (d *Domain) sealPair(offset, size int, used [2]int) (*datagramPair, error) {
	p := &datagramPair{
		offset:         offset,
		size:           size,
		logicalAddress: d.baseAddress + uint32(offset),
	}

	out, in := used[ecdir.Output], used[ecdir.Input]
	switch {
	case out > 0 && in > 0:
		p.command = ecfr.LRW
		p.expectedWC = uint16(2*out + in)
	case out > 0:
		p.command = ecfr.LWR
		p.expectedWC = uint16(out)
	case in > 0:
		p.command = ecfr.LRD
		p.expectedWC = uint16(in)
	default:
		return nil, errors.New("ecdom: sealed a datagram pair with no direction usage")
	}

	d.expectedWC += p.expectedWC
	return p, nil
}

// Queue snapshots the domain's current output bytes into each pair's send
// buffer and enqueues that pair's datagram on both the main and backup
// links, in FMMU insertion order, so logical addresses stay contiguous and
// increasing on the wire.
func (d *Domain) Queue() error {
	for _, p := range d.pairs {
		out := d.data[p.offset : p.offset+p.size]
		p.sendBuffer = append(p.sendBuffer[:0], out...)

		mc, err := d.mainCmd.New(p.size)
		if err != nil {
			return err
		}
		fillPairDatagram(mc.DatagramOut, p)

		bc, err := d.backupCmd.New(p.size)
		if err != nil {
			return err
		}
		fillPairDatagram(bc.DatagramOut, p)

		p.mainExec = mc
		p.backupExec = bc
	}
	return nil
}

func fillPairDatagram(dg *ecfr.Datagram, p *datagramPair) {
	dg.Command = p.command
	addr := ecfr.NewLogicalAddress(p.logicalAddress)
	dg.Addr32 = addr.Addr32()
	copy(dg.Data(), p.sendBuffer)
}

// Process imports inputs from the previous cycle's arrived datagrams,
// applying the redundancy fallback rule per input FMMU, and updates the
// domain's aggregate working counter.
func (d *Domain) Process() {
	var observedWC uint16
	for _, p := range d.pairs {
		observedWC += pairWorkingCounter(p)
	}

	for _, fmmu := range d.fmmus {
		if fmmu.Direction != ecdir.Input {
			continue
		}
		p := d.pairForLogicalAddress(fmmu.LogicalStart)
		if p == nil {
			continue
		}
		d.applyFallback(p, fmmu)
	}

	if observedWC != d.workingCounter {
		d.wcChanges++
		d.workingCounter = observedWC
	}
	d.logWCChanges()
}

func pairWorkingCounter(p *datagramPair) uint16 {
	var wc uint16
	if p.mainExec != nil && p.mainExec.Arrived && p.mainExec.DatagramIn != nil {
		wc += p.mainExec.DatagramIn.WorkingCounter()
	}
	if p.backupExec != nil && p.backupExec.Arrived && p.backupExec.DatagramIn != nil {
		wc += p.backupExec.DatagramIn.WorkingCounter()
	}
	return wc
}

func (d *Domain) pairForLogicalAddress(addr uint32) *datagramPair {
	for _, p := range d.pairs {
		if p.contains(addr) {
			return p
		}
	}
	return nil
}

func (d *Domain) applyFallback(p *datagramPair, fmmu *FMMUConfig) {
	off := int(fmmu.LogicalStart) - int(p.logicalAddress)
	n := fmmu.DataSize

	var mainBuf, backupBuf []byte
	if p.mainExec != nil && p.mainExec.Arrived && p.mainExec.DatagramIn != nil {
		mainBuf = p.mainExec.DatagramIn.Data()
	}
	if p.backupExec != nil && p.backupExec.Arrived && p.backupExec.DatagramIn != nil {
		backupBuf = p.backupExec.DatagramIn.Data()
	}
	if mainBuf == nil || off+n > len(mainBuf) {
		return
	}

	target := d.data[p.offset+off : p.offset+off+n]
	mainRange := mainBuf[off : off+n]
	prevRange := d.prevMainRange(p, off, n)

	mainChanged := !bytesEqual(mainRange, prevRange)
	if mainChanged {
		copy(target, mainRange)
	} else if backupBuf != nil && off+n <= len(backupBuf) {
		backupRange := backupBuf[off : off+n]
		backupChanged := !bytesEqual(backupRange, prevRange)
		wc := pairWorkingCounter(p)
		if backupChanged || wc == p.expectedWC {
			copy(target, backupRange)
		}
	}

	if p.prevMain == nil {
		p.prevMain = make([]byte, p.size)
	}
	copy(p.prevMain[off:off+n], mainRange)
}

func (d *Domain) prevMainRange(p *datagramPair, off, n int) []byte {
	if p.prevMain == nil {
		return nil
	}
	return p.prevMain[off : off+n]
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (d *Domain) logWCChanges() {
	if d.wcChanges == 0 {
		return
	}
	if time.Since(d.lastLogTime) < time.Second {
		return
	}
	d.lastLogTime = time.Now()
	if d.wcChanges == 1 {
		logrus.WithFields(logrus.Fields{
			"domain": d.index,
			"wc":     d.workingCounter,
			"expect": d.expectedWC,
		}).Infof("ecdom: working counter changed to %d/%d", d.workingCounter, d.expectedWC)
	} else {
		logrus.WithFields(logrus.Fields{
			"domain":  d.index,
			"changes": d.wcChanges,
			"wc":      d.workingCounter,
			"expect":  d.expectedWC,
		}).Infof("ecdom: %d working counter changes, now %d/%d", d.wcChanges, d.workingCounter, d.expectedWC)
	}
	d.wcChanges = 0
}

// State derives the coarse working-counter health summary.
func (d *Domain) State() (workingCounter uint16, state WCState) {
	switch {
	case d.workingCounter == 0:
		state = WCZero
	case d.workingCounter < d.expectedWC:
		state = WCIncomplete
	default:
		state = WCComplete
	}
	return d.workingCounter, state
}

// RegisterEntry is one entry of a RegisterPDOEntryList call: an index/
// subindex identifying a PDO entry and the domain-relative byte offset it
// is mapped to, which RegisterPDOEntryList fills in. A zero Index
// terminates a list.
type RegisterEntry struct {
	Index    uint16
	Subindex uint8
	Offset   int
}

// SlaveConfigResolver maps a PDO entry to the slave-config that owns it, so
// RegisterPDOEntryList can build the matching FMMU configuration without
// this package needing to know about slave configuration itself.
type SlaveConfigResolver interface {
	ResolvePDOEntry(index uint16, subindex uint8) (slaveConfig any, dir ecdir.Direction, physicalStart uint16, size int, err error)
}

// RegisterPDOEntryList bulk-configures a domain from a list of PDO entry to
// domain-offset mappings, terminated by an entry with Index == 0.
func (d *Domain) RegisterPDOEntryList(entries []RegisterEntry, resolver SlaveConfigResolver) error {
	for i, e := range entries {
		if e.Index == 0 {
			break
		}
		sc, dir, physStart, size, err := resolver.ResolvePDOEntry(e.Index, e.Subindex)
		if err != nil {
			return err
		}
		entries[i].Offset = d.dataSize
		if _, err := d.AddFMMUConfig(FMMUConfig{
			Direction:     dir,
			SlaveConfig:   sc,
			PhysicalStart: physStart,
			DataSize:      size,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Package ecmaster ties the per-slave request FSMs and domain engines to
// the cyclic driver loop: one goroutine, one Cycle call per master tick,
// single-threaded with respect to the core state (spec.md §5).
package ecmaster

import (
	"sync"

	"github.com/zultron/etherlabmaster/ecdom"
	"github.com/zultron/etherlabmaster/ecmd"
	"github.com/zultron/etherlabmaster/ecslave"
)

// Master owns the main and (optional) backup link multiplexers, every
// slave's request FSM, and every domain. mu guards only the slave, domain
// and channel lists: AddSlave and AddDomain hold it while appending, and
// Cycle holds it just long enough to snapshot them. Request submission
// through a Slave's Submit* methods does not go through mu.
type Master struct {
	mu sync.Mutex

	mainMux   *ecmd.Multiplexer
	backupMux *ecmd.Multiplexer

	// muxChans holds one entry per channel opened on a multiplexer (one
	// per slave, two per domain). A mux-wide Cycle() only runs once every
	// channel with open commands has called its own Cycle(), so Master
	// must drive every channel's Cycle() each master cycle, not just the
	// multiplexer's.
	muxChans []ecmd.Commander

	slaves  []*ecslave.Slave
	domains []*ecdom.Domain
}

// New wires a master to its main-link framer and, if redundancy is in use,
// its backup-link framer. backupFramer may be nil.
func New(mainFramer, backupFramer ecmd.Framer) (*Master, error) {
	mainCF := ecmd.NewCommandFramer(mainFramer)
	mainMux, err := ecmd.NewMultiplexer(mainCF)
	if err != nil {
		return nil, err
	}

	m := &Master{mainMux: mainMux}

	if backupFramer != nil {
		backupCF := ecmd.NewCommandFramer(backupFramer)
		backupMux, err := ecmd.NewMultiplexer(backupCF)
		if err != nil {
			mainMux.Close()
			return nil, err
		}
		m.backupMux = backupMux
	}

	return m, nil
}

// AddSlave registers a new slave FSM, backed by its own channel on the main
// link multiplexer.
func (m *Master) AddSlave(station uint16, deviceIndex int, vendorID, productID uint32, config ecslave.Config) (*ecslave.Slave, error) {
	cmd, err := m.mainMux.OpenCommander()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	slave := ecslave.New(station, deviceIndex, vendorID, productID, cmd, config)
	m.slaves = append(m.slaves, slave)
	m.muxChans = append(m.muxChans, cmd)
	return slave, nil
}

// AddDomain registers a new domain, backed by its own channel on each
// available link multiplexer. If no backup link was configured, the
// domain's backup datagrams go through a second channel opened on the main
// link's multiplexer, so they travel the same bus as the main datagrams.
func (m *Master) AddDomain(index int) (*ecdom.Domain, error) {
	mainCmd, err := m.mainMux.OpenCommander()
	if err != nil {
		return nil, err
	}

	backupMux := m.backupMux
	if backupMux == nil {
		backupMux = m.mainMux
	}
	backupCmd, err := backupMux.OpenCommander()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	domain := ecdom.New(index, mainCmd, backupCmd)
	m.domains = append(m.domains, domain)
	m.muxChans = append(m.muxChans, mainCmd, backupCmd)
	return domain, nil
}

// Cycle runs exactly one master cycle: import the previous cycle's
// results, tick every slave FSM, queue outputs, then drive one round-trip
// per link. It must be called from a single context.
func (m *Master) Cycle() error {
	m.mu.Lock()
	slaves := append([]*ecslave.Slave(nil), m.slaves...)
	domains := append([]*ecdom.Domain(nil), m.domains...)
	chans := append([]ecmd.Commander(nil), m.muxChans...)
	m.mu.Unlock()

	for _, d := range domains {
		d.Process()
	}
	for _, s := range slaves {
		s.Tick()
	}
	for _, d := range domains {
		if err := d.Queue(); err != nil {
			return err
		}
	}

	// Every mux channel signals readiness by calling its own Cycle(); the
	// multiplexer's own Cycle() is the one that actually waits for every
	// channel with open commands to be cycling and then round-trips the
	// underlying link. Both must run concurrently: a channel with open
	// commands blocks until the multiplexer decides to fire, and the
	// multiplexer call blocks until those channels have cycled. A channel
	// with nothing queued returns from its Cycle() at once.
	runners := make([]func() error, 0, len(chans)+2)
	for _, c := range chans {
		c := c
		runners = append(runners, c.Cycle)
	}
	runners = append(runners, m.mainMux.Cycle)
	if m.backupMux != nil {
		runners = append(runners, m.backupMux.Cycle)
	}

	errs := make([]error, len(runners))
	var wg sync.WaitGroup
	wg.Add(len(runners))
	for i, run := range runners {
		go func(i int, run func() error) {
			defer wg.Done()
			errs[i] = run()
		}(i, run)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Close shuts down both link multiplexers.
func (m *Master) Close() error {
	err := m.mainMux.Close()
	if m.backupMux != nil {
		if berr := m.backupMux.Close(); berr != nil && err == nil {
			err = berr
		}
	}
	return err
}

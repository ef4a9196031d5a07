// Command ecatmasterd runs a cyclic EtherCAT master against a static
// topology file, exercising the request FSM and domain engine over either
// a real network interface or the in-process bus simulator.
package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"github.com/zultron/etherlabmaster/ecconfig"
	"github.com/zultron/etherlabmaster/ecdom"
	"github.com/zultron/etherlabmaster/ecmaster"
	"github.com/zultron/etherlabmaster/ecmd"
	"github.com/zultron/etherlabmaster/ecslave"
	"github.com/zultron/etherlabmaster/ll/udp"
	"github.com/zultron/etherlabmaster/sim"
)

type options struct {
	Config    string        `long:"config" required:"true" description:"Path to the bus topology ini file"`
	Iface     string        `long:"iface" description:"Main link network interface (omit to run against the in-process simulator)"`
	Group     string        `long:"group" default:"239.192.0.1" description:"Main link multicast group address"`
	CycleTime time.Duration `long:"cycle" default:"1ms" description:"Master cycle period"`
	Verbose   bool          `long:"verbose" description:"Enable debug logging"`
}

func main() {
	opts := options{}
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.Parse(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if opts.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if err := run(opts); err != nil {
		logrus.WithError(err).Fatal("ecatmasterd: fatal error")
	}
}

func run(opts options) error {
	topo, err := ecconfig.Load(opts.Config)
	if err != nil {
		return fmt.Errorf("loading topology: %w", err)
	}

	mainFramer, err := openMainFramer(opts)
	if err != nil {
		return fmt.Errorf("opening main link: %w", err)
	}

	m, err := ecmaster.New(mainFramer, nil)
	if err != nil {
		return fmt.Errorf("creating master: %w", err)
	}
	defer m.Close()

	slaves := make([]*ecslave.Slave, len(topo.Slaves))
	for i, sc := range topo.Slaves {
		slave, err := m.AddSlave(sc.StationAddr, sc.Index, sc.VendorID, sc.ProductID, nil)
		if err != nil {
			return fmt.Errorf("adding slave %d: %w", sc.Index, err)
		}
		slave.Ready()
		slaves[i] = slave
	}

	domains := make([]*ecdom.Domain, len(topo.Domains))
	for i, dc := range topo.Domains {
		domain, err := m.AddDomain(dc.Index)
		if err != nil {
			return fmt.Errorf("adding domain %d: %w", dc.Index, err)
		}
		for j, fc := range dc.FMMUs {
			if fc.SlaveIndex < 0 || fc.SlaveIndex >= len(topo.Slaves) {
				return fmt.Errorf("domain %d fmmu references unknown slave %d", dc.Index, fc.SlaveIndex)
			}
			_, err := domain.AddFMMUConfig(ecdom.FMMUConfig{
				Direction:     fc.Direction,
				SlaveConfig:   fc.SlaveIndex,
				PhysicalStart: fc.PhysicalStart,
				DataSize:      fc.Size,
			})
			if err != nil {
				return fmt.Errorf("domain %d fmmu %d: %w", dc.Index, j, err)
			}
		}
		if err := domain.Finish(0); err != nil {
			return fmt.Errorf("finishing domain %d layout: %w", dc.Index, err)
		}
		domains[i] = domain
	}

	logrus.WithFields(logrus.Fields{
		"slaves":  len(slaves),
		"domains": len(domains),
		"cycle":   opts.CycleTime,
	}).Info("ecatmasterd: starting cyclic loop")

	ticker := time.NewTicker(opts.CycleTime)
	defer ticker.Stop()

	for range ticker.C {
		if err := m.Cycle(); err != nil {
			return fmt.Errorf("cycle: %w", err)
		}
	}

	return nil
}

func openMainFramer(opts options) (ecmd.Framer, error) {
	if opts.Iface == "" {
		logrus.Info("ecatmasterd: no --iface given, running against the in-process bus simulator")
		return &sim.L2Bus{}, nil
	}

	iface, err := net.InterfaceByName(opts.Iface)
	if err != nil {
		return nil, err
	}

	group := net.ParseIP(opts.Group)
	if group == nil {
		return nil, fmt.Errorf("invalid multicast group %q", opts.Group)
	}

	return udp.NewUDPFramer(iface, group, opts.CycleTime)
}

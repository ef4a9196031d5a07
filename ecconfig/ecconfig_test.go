package ecconfig

import (
	"testing"

	"github.com/zultron/etherlabmaster/ecdir"
)

const sampleTopology = `
[bus]
main = eth0
backup = eth1

[slave 0]
alias = drive1
vendor = 0x00000002
product = 0x044c2c52
station = 0x1001

[slave 1]
alias = io1
vendor = 0x00000002
product = 0x0a123456
station = 0x1002

[domain 0 fmmu 0]
slave = 0
direction = output
physical_start = 0x1600
size = 4

[domain 0 fmmu 1]
slave = 1
direction = input
physical_start = 0x1a00
size = 2
`

func TestLoadParsesBusSlavesAndDomains(t *testing.T) {
	topo, err := Load([]byte(sampleTopology))
	if err != nil {
		t.Fatal(err)
	}

	if topo.MainLink != "eth0" {
		t.Errorf("MainLink = %q, want eth0", topo.MainLink)
	}
	if topo.BackupLink != "eth1" {
		t.Errorf("BackupLink = %q, want eth1", topo.BackupLink)
	}

	if len(topo.Slaves) != 2 {
		t.Fatalf("len(Slaves) = %d, want 2", len(topo.Slaves))
	}

	var drive1 *SlaveConfig
	for i := range topo.Slaves {
		if topo.Slaves[i].Alias == "drive1" {
			drive1 = &topo.Slaves[i]
		}
	}
	if drive1 == nil {
		t.Fatal("slave 'drive1' not found")
	}
	if drive1.VendorID != 2 {
		t.Errorf("VendorID = %#x, want 0x2", drive1.VendorID)
	}
	if drive1.ProductID != 0x044c2c52 {
		t.Errorf("ProductID = %#x, want 0x044c2c52", drive1.ProductID)
	}
	if drive1.StationAddr != 0x1001 {
		t.Errorf("StationAddr = %#x, want 0x1001", drive1.StationAddr)
	}

	if len(topo.Domains) != 1 {
		t.Fatalf("len(Domains) = %d, want 1", len(topo.Domains))
	}
	dom := topo.Domains[0]
	if len(dom.FMMUs) != 2 {
		t.Fatalf("len(FMMUs) = %d, want 2", len(dom.FMMUs))
	}

	byDirection := map[ecdir.Direction]FMMUConfig{}
	for _, fc := range dom.FMMUs {
		byDirection[fc.Direction] = fc
	}

	out, ok := byDirection[ecdir.Output]
	if !ok {
		t.Fatal("no output FMMU parsed")
	}
	if out.SlaveIndex != 0 || out.PhysicalStart != 0x1600 || out.Size != 4 {
		t.Errorf("output FMMU = %+v, want slave=0 physical_start=0x1600 size=4", out)
	}

	in, ok := byDirection[ecdir.Input]
	if !ok {
		t.Fatal("no input FMMU parsed")
	}
	if in.SlaveIndex != 1 || in.PhysicalStart != 0x1a00 || in.Size != 2 {
		t.Errorf("input FMMU = %+v, want slave=1 physical_start=0x1a00 size=2", in)
	}
}

func TestLoadRejectsFMMUWithoutSlaveKey(t *testing.T) {
	const bad = `
[domain 0 fmmu 0]
direction = input
physical_start = 0x1000
size = 2
`
	if _, err := Load([]byte(bad)); err == nil {
		t.Fatal("expected an error for a fmmu section missing its slave key")
	}
}

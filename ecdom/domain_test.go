package ecdom

import (
	"testing"

	"github.com/zultron/etherlabmaster/ecdir"
	"github.com/zultron/etherlabmaster/ecfr"
	"github.com/zultron/etherlabmaster/ecmd"
)

// fakeCommander hands out a fresh datagram on every New call; tests drive
// the following cycle's arrival by hand, matching how ecmd.Multiplexer's
// real channels behave between Queue() and the next Process().
type fakeCommander struct {
	cmds []*ecmd.ExecutingCommand
}

func (c *fakeCommander) New(datalen int) (*ecmd.ExecutingCommand, error) {
	buf := make([]byte, ecfr.DatagramOverheadLength+datalen)
	dg, err := ecfr.PointDatagramTo(buf)
	if err != nil {
		return nil, err
	}
	if err := dg.SetDataLen(datalen); err != nil {
		return nil, err
	}
	ec := &ecmd.ExecutingCommand{DatagramOut: &dg}
	c.cmds = append(c.cmds, ec)
	return ec, nil
}

func (c *fakeCommander) Cycle() error { return nil }
func (c *fakeCommander) Close() error { return nil }

func arrive(ec *ecmd.ExecutingCommand, data []byte, wc uint16) {
	buf := make([]byte, ecfr.DatagramOverheadLength+len(data))
	dg, err := ecfr.PointDatagramTo(buf)
	if err != nil {
		panic(err)
	}
	if err := dg.SetDataLen(len(data)); err != nil {
		panic(err)
	}
	copy(dg.Data(), data)
	dg.SetWorkingCounter(wc)
	ec.DatagramIn = &dg
	ec.Arrived = true
}

func TestDomainSinglePairIsLRWWithCombinedExpectedWC(t *testing.T) {
	d := New(0, &fakeCommander{}, &fakeCommander{})

	if _, err := d.AddFMMUConfig(FMMUConfig{Direction: ecdir.Output, SlaveConfig: "slaveA", DataSize: 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.AddFMMUConfig(FMMUConfig{Direction: ecdir.Input, SlaveConfig: "slaveB", DataSize: 2}); err != nil {
		t.Fatal(err)
	}

	if err := d.Finish(0); err != nil {
		t.Fatal(err)
	}

	if got := d.Size(); got != 4 {
		t.Fatalf("Size() = %d, want 4", got)
	}
	if len(d.pairs) != 1 {
		t.Fatalf("len(pairs) = %d, want 1", len(d.pairs))
	}
	if d.pairs[0].command != ecfr.LRW {
		t.Fatalf("pair command = %v, want LRW", d.pairs[0].command)
	}
	// one output contributor (counts double) + one input contributor.
	if got := d.ExpectedWorkingCounter(); got != 3 {
		t.Fatalf("ExpectedWorkingCounter() = %d, want 3", got)
	}
}

func TestDomainSameSlaveConfigCountsOnceForDirection(t *testing.T) {
	d := New(0, &fakeCommander{}, &fakeCommander{})

	// two FMMUs from the same slave-config, same direction: one
	// contributor, not two.
	if _, err := d.AddFMMUConfig(FMMUConfig{Direction: ecdir.Output, SlaveConfig: "slaveA", DataSize: 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.AddFMMUConfig(FMMUConfig{Direction: ecdir.Output, SlaveConfig: "slaveA", DataSize: 2}); err != nil {
		t.Fatal(err)
	}

	if err := d.Finish(0); err != nil {
		t.Fatal(err)
	}

	if got := d.ExpectedWorkingCounter(); got != 1 {
		t.Fatalf("ExpectedWorkingCounter() = %d, want 1 (single slave-config counted once)", got)
	}
}

func TestDomainSplitsWhenExceedingMaxDataSize(t *testing.T) {
	d := New(0, &fakeCommander{}, &fakeCommander{})

	sizes := []int{700, 700, 700, 100}
	for i, sz := range sizes {
		if _, err := d.AddFMMUConfig(FMMUConfig{
			Direction:   ecdir.Output,
			SlaveConfig: i,
			DataSize:    sz,
		}); err != nil {
			t.Fatal(err)
		}
	}

	if err := d.Finish(0); err != nil {
		t.Fatal(err)
	}

	if len(d.pairs) != 2 {
		t.Fatalf("len(pairs) = %d, want 2", len(d.pairs))
	}
	if d.pairs[0].size != 1400 {
		t.Fatalf("pairs[0].size = %d, want 1400", d.pairs[0].size)
	}
	if d.pairs[1].size != 800 {
		t.Fatalf("pairs[1].size = %d, want 800", d.pairs[1].size)
	}
	// 2 distinct output contributors in pair 0, 2 in pair 1: 2 + 2 = 4
	if got := d.ExpectedWorkingCounter(); got != 4 {
		t.Fatalf("ExpectedWorkingCounter() = %d, want 4", got)
	}
}

func TestDomainQueueProcessRoundTrip(t *testing.T) {
	mainCmd := &fakeCommander{}
	backupCmd := &fakeCommander{}
	d := New(0, mainCmd, backupCmd)

	if _, err := d.AddFMMUConfig(FMMUConfig{Direction: ecdir.Input, SlaveConfig: "slaveA", DataSize: 2}); err != nil {
		t.Fatal(err)
	}
	if err := d.Finish(0); err != nil {
		t.Fatal(err)
	}

	if err := d.Queue(); err != nil {
		t.Fatal(err)
	}
	if len(mainCmd.cmds) != 1 || len(backupCmd.cmds) != 1 {
		t.Fatalf("expected one New() per link, got main=%d backup=%d", len(mainCmd.cmds), len(backupCmd.cmds))
	}

	arrive(mainCmd.cmds[0], []byte{0xaa, 0xbb}, 1)
	arrive(backupCmd.cmds[0], []byte{0xaa, 0xbb}, 0)

	d.Process()

	if got := d.Data(); got[0] != 0xaa || got[1] != 0xbb {
		t.Fatalf("Data() = % x, want aa bb", got)
	}

	wc, state := d.State()
	if wc != 1 {
		t.Fatalf("State() wc = %d, want 1", wc)
	}
	if state != WCComplete {
		t.Fatalf("State() = %v, want WCComplete", state)
	}
}

func TestDomainFallbackPrefersChangedMain(t *testing.T) {
	mainCmd := &fakeCommander{}
	backupCmd := &fakeCommander{}
	d := New(0, mainCmd, backupCmd)

	if _, err := d.AddFMMUConfig(FMMUConfig{Direction: ecdir.Input, SlaveConfig: "slaveA", DataSize: 2}); err != nil {
		t.Fatal(err)
	}
	if err := d.Finish(0); err != nil {
		t.Fatal(err)
	}

	// first cycle establishes prevMain.
	d.Queue()
	arrive(mainCmd.cmds[0], []byte{0x01, 0x02}, 1)
	arrive(backupCmd.cmds[0], []byte{0x01, 0x02}, 1)
	d.Process()

	// second cycle: main changed, backup did not. Main wins even though
	// the main link's own working counter is fine either way.
	mainCmd.cmds = nil
	backupCmd.cmds = nil
	d.Queue()
	arrive(mainCmd.cmds[0], []byte{0x99, 0x99}, 1)
	arrive(backupCmd.cmds[0], []byte{0x01, 0x02}, 1)
	d.Process()

	if got := d.Data(); got[0] != 0x99 || got[1] != 0x99 {
		t.Fatalf("Data() = % x, want 99 99 (main change wins)", got)
	}
}

func TestDomainFallbackUsesBackupWhenMainUnchangedAndBackupChanged(t *testing.T) {
	mainCmd := &fakeCommander{}
	backupCmd := &fakeCommander{}
	d := New(0, mainCmd, backupCmd)

	if _, err := d.AddFMMUConfig(FMMUConfig{Direction: ecdir.Input, SlaveConfig: "slaveA", DataSize: 2}); err != nil {
		t.Fatal(err)
	}
	if err := d.Finish(0); err != nil {
		t.Fatal(err)
	}

	d.Queue()
	arrive(mainCmd.cmds[0], []byte{0x01, 0x02}, 1)
	arrive(backupCmd.cmds[0], []byte{0x01, 0x02}, 1)
	d.Process()

	mainCmd.cmds = nil
	backupCmd.cmds = nil
	d.Queue()
	arrive(mainCmd.cmds[0], []byte{0x01, 0x02}, 1) // unchanged
	arrive(backupCmd.cmds[0], []byte{0x77, 0x77}, 1) // changed
	d.Process()

	if got := d.Data(); got[0] != 0x77 || got[1] != 0x77 {
		t.Fatalf("Data() = % x, want 77 77 (backup change wins when main unchanged)", got)
	}
}

func TestDomainFallbackKeepsOldDataWhenNeitherChangedAndWCIncomplete(t *testing.T) {
	mainCmd := &fakeCommander{}
	backupCmd := &fakeCommander{}
	d := New(0, mainCmd, backupCmd)

	if _, err := d.AddFMMUConfig(FMMUConfig{Direction: ecdir.Input, SlaveConfig: "slaveA", DataSize: 2}); err != nil {
		t.Fatal(err)
	}
	if err := d.Finish(0); err != nil {
		t.Fatal(err)
	}

	d.Queue()
	arrive(mainCmd.cmds[0], []byte{0x01, 0x02}, 1)
	arrive(backupCmd.cmds[0], []byte{0x01, 0x02}, 0)
	d.Process()

	// corrupt the process image to make "left untouched" observable
	// independently of the incoming (unchanged) wire bytes.
	d.Data()[0], d.Data()[1] = 0xff, 0xff

	mainCmd.cmds = nil
	backupCmd.cmds = nil
	d.Queue()
	// neither link's bytes changed relative to the last cycle, and the
	// combined working counter (zero) falls short of expected: old data must be
	// preserved, not overwritten with stale bytes from either link.
	arrive(mainCmd.cmds[0], []byte{0x01, 0x02}, 0)
	arrive(backupCmd.cmds[0], []byte{0x01, 0x02}, 0)
	d.Process()

	if got := d.Data(); got[0] != 0xff || got[1] != 0xff {
		t.Fatalf("Data() = % x, want ff ff (left untouched)", got)
	}

	_, state := d.State()
	if state != WCZero {
		t.Fatalf("State() = %v, want WCZero", state)
	}
}

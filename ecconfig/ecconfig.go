// Package ecconfig loads a bus topology (link interfaces, slaves and
// domains) from an ini-format file, the way an EtherCAT master daemon's
// static configuration is normally expressed before any bus scan happens.
package ecconfig

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/zultron/etherlabmaster/ecdir"
)

// SlaveConfig is one [slave N] section: identity used to match a
// configured slave against what's found on the bus. It carries no register
// requests.
type SlaveConfig struct {
	Index       int
	Alias       string
	VendorID    uint32
	ProductID   uint32
	StationAddr uint16
}

// FMMUConfig is one [domain N fmmu M] section: a slave's contribution to a
// domain's logical process image.
type FMMUConfig struct {
	SlaveIndex    int
	Direction     ecdir.Direction
	PhysicalStart uint16
	Size          int
}

// DomainConfig is one [domain N] section together with its FMMU entries.
type DomainConfig struct {
	Index int
	FMMUs []FMMUConfig
}

// Topology is the whole parsed configuration.
type Topology struct {
	MainLink   string
	BackupLink string

	Slaves  []SlaveConfig
	Domains []DomainConfig
}

var (
	slaveSectionRE  = regexp.MustCompile(`^slave\s+(\d+)$`)
	domainSectionRE = regexp.MustCompile(`^domain\s+(\d+)$`)
	fmmuSectionRE   = regexp.MustCompile(`^domain\s+(\d+)\s+fmmu\s+(\d+)$`)
)

// Load parses a topology file. source is anything gopkg.in/ini.v1 accepts:
// a path, []byte, or io.Reader.
func Load(source any) (*Topology, error) {
	f, err := ini.Load(source)
	if err != nil {
		return nil, err
	}

	topo := &Topology{}

	if bus, err := f.GetSection("bus"); err == nil {
		topo.MainLink = bus.Key("main").String()
		topo.BackupLink = bus.Key("backup").String()
	}

	domainsByIndex := map[int]*DomainConfig{}

	for _, section := range f.Sections() {
		name := section.Name()

		if m := slaveSectionRE.FindStringSubmatch(name); m != nil {
			idx, _ := strconv.Atoi(m[1])
			sc, err := parseSlaveSection(idx, section)
			if err != nil {
				return nil, err
			}
			topo.Slaves = append(topo.Slaves, sc)
			continue
		}

		if m := domainSectionRE.FindStringSubmatch(name); m != nil {
			idx, _ := strconv.Atoi(m[1])
			domainsByIndex[idx] = &DomainConfig{Index: idx}
			continue
		}
	}

	for _, section := range f.Sections() {
		m := fmmuSectionRE.FindStringSubmatch(section.Name())
		if m == nil {
			continue
		}

		domIdx, _ := strconv.Atoi(m[1])
		dom, ok := domainsByIndex[domIdx]
		if !ok {
			dom = &DomainConfig{Index: domIdx}
			domainsByIndex[domIdx] = dom
		}

		fc, err := parseFMMUSection(section)
		if err != nil {
			return nil, fmt.Errorf("ecconfig: %s: %w", section.Name(), err)
		}
		dom.FMMUs = append(dom.FMMUs, fc)
	}

	for _, dom := range domainsByIndex {
		topo.Domains = append(topo.Domains, *dom)
	}

	return topo, nil
}

func parseSlaveSection(idx int, section *ini.Section) (SlaveConfig, error) {
	sc := SlaveConfig{Index: idx, Alias: section.Key("alias").String()}

	if v, err := parseHexOrDec(section.Key("vendor").String()); err == nil {
		sc.VendorID = uint32(v)
	}
	if v, err := parseHexOrDec(section.Key("product").String()); err == nil {
		sc.ProductID = uint32(v)
	}
	if v, err := parseHexOrDec(section.Key("station").String()); err == nil {
		sc.StationAddr = uint16(v)
	}

	return sc, nil
}

func parseFMMUSection(section *ini.Section) (FMMUConfig, error) {
	var fc FMMUConfig

	slaveIdx, err := section.Key("slave").Int()
	if err != nil {
		return fc, fmt.Errorf("missing or invalid slave key: %w", err)
	}
	fc.SlaveIndex = slaveIdx

	switch strings.ToLower(section.Key("direction").String()) {
	case "output":
		fc.Direction = ecdir.Output
	case "input", "":
		fc.Direction = ecdir.Input
	default:
		return fc, fmt.Errorf("invalid direction %q", section.Key("direction").String())
	}

	start, err := parseHexOrDec(section.Key("physical_start").String())
	if err != nil {
		return fc, fmt.Errorf("invalid physical_start: %w", err)
	}
	fc.PhysicalStart = uint16(start)

	size, err := section.Key("size").Int()
	if err != nil {
		return fc, fmt.Errorf("missing or invalid size key: %w", err)
	}
	fc.Size = size

	return fc, nil
}

func parseHexOrDec(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

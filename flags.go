// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gocoresight

import (
	"flag"
	"fmt"
	"strings"

	"github.com/google/gousb"
)

// PlatformFlags collects the board description shared by the command line
// tools: per cluster base addresses of every block plus topology and trace
// unit quiescing.
type PlatformFlags struct {
	DebugBases      string
	CTIBases        string
	ETMBases        string
	ETBBases        string
	CoresPerCluster int
	Quiesce         string
	PollRetries     int
}

func (p *PlatformFlags) Register(fs *flag.FlagSet) {
	fs.StringVar(&p.DebugBases, "DebugBase", "", "external debug base per cluster <addr0>[,<addr1>]")
	fs.StringVar(&p.CTIBases, "CTIBase", "", "cross trigger base per cluster <addr0>[,<addr1>]")
	fs.StringVar(&p.ETMBases, "ETMBase", "", "trace unit base per cluster <addr0>[,<addr1>]")
	fs.StringVar(&p.ETBBases, "ETBBase", "", "trace buffer base per cluster <addr0>[,<addr1>]")
	fs.IntVar(&p.CoresPerCluster, "CoresPerCluster", 4, "number of cores in every cluster")
	fs.StringVar(&p.Quiesce, "Quiesce", "program-control", "trace unit quiescing [program-control, os-lock]")
	fs.IntVar(&p.PollRetries, "PollRetries", DefaultPollRetries, "reads per hardware poll before giving up")
}

func (p *PlatformFlags) Discovery() (StaticDiscovery, error) {
	discovery := StaticDiscovery{}

	lists := []struct {
		block Block
		value string
	}{
		{BlockDebug, p.DebugBases},
		{BlockCTI, p.CTIBases},
		{BlockETM, p.ETMBases},
		{BlockETB, p.ETBBases},
	}

	for _, list := range lists {
		table, err := ParseBaseTable(list.value)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", list.block, err)
		}

		// unresolved blocks are left out and reported by Resolve
		if table.populated() {
			discovery[list.block] = table
		}
	}

	return discovery, nil
}

func (p *PlatformFlags) Config() (Config, error) {
	config := DefaultConfig()

	if p.CoresPerCluster <= 0 || p.CoresPerCluster > MaxCores {
		return config, fmt.Errorf("invalid number of cores per cluster %d", p.CoresPerCluster)
	}

	config.Topology = ClusterTopology{CoresPerCluster: p.CoresPerCluster}

	switch strings.ToLower(p.Quiesce) {
	case "", "program-control":
		config.Quiesce = QuiesceProgramControl
	case "os-lock":
		config.Quiesce = QuiesceOSLock
	default:
		return config, fmt.Errorf("unknown quiesce strategy '%s'", p.Quiesce)
	}

	if p.PollRetries > 0 {
		config.PollRetries = p.PollRetries
	}

	return config, nil
}

// ProbeFlags selects and configures the ST-Link used to reach the target.
type ProbeFlags struct {
	Interface         string
	Speed             uint
	Serial            string
	AccessPort        uint
	ConnectUnderReset bool
}

func (p *ProbeFlags) Register(fs *flag.FlagSet) {
	fs.StringVar(&p.Interface, "if", "SWD", "interface connecting to target [SWD, JTAG]")
	fs.UintVar(&p.Speed, "Speed", 4000, "interface speed to target device in kHz")
	fs.StringVar(&p.Serial, "Serial", "", "serial number of the ST-Link to use")
	fs.UintVar(&p.AccessPort, "AP", 1, "memory access port the debug blocks are reached through")
	fs.BoolVar(&p.ConnectUnderReset, "ConnectUnderReset", false, "assert reset while connecting")
}

func (p *ProbeFlags) Mode() (StLinkMode, error) {
	switch strings.ToUpper(p.Interface) {
	case "SWD":
		return StLinkModeDebugSwd, nil
	case "JTAG":
		return StLinkModeDebugJtag, nil
	default:
		return StLinkModeUnknown, fmt.Errorf("unsupported interface '%s'", p.Interface)
	}
}

func (p *ProbeFlags) StLinkConfig() (*StLinkInterfaceConfig, error) {
	mode, err := p.Mode()
	if err != nil {
		return nil, err
	}

	if p.AccessPort > debugAccessPortSelectionMaximum {
		return nil, fmt.Errorf("access port %d out of range", p.AccessPort)
	}

	return NewStLinkConfig(gousb.ID(AllSupportedVIds), gousb.ID(AllSupportedPIds), mode, p.Serial,
		uint32(p.Speed), p.ConnectUnderReset), nil
}

// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gocoresight

import (
	"testing"
)

func TestClusterTopologyLocate(t *testing.T) {
	tests := []struct {
		perCluster  int
		core        int
		wantCluster int
		wantCPU     int
	}{
		{4, 0, 0, 0},
		{4, 3, 0, 3},
		{4, 4, 1, 0},
		{4, 7, 1, 3},
		{2, 5, 2, 1},
		{0, 3, 3, 0},
	}

	for _, tt := range tests {
		cluster, cpu := ClusterTopology{CoresPerCluster: tt.perCluster}.Locate(tt.core)

		if cluster != tt.wantCluster || cpu != tt.wantCPU {
			t.Errorf("Locate(%d) with %d per cluster = (%d, %d), want (%d, %d)",
				tt.core, tt.perCluster, cluster, cpu, tt.wantCluster, tt.wantCPU)
		}
	}
}

func TestUnitAddress(t *testing.T) {
	topology := ClusterTopology{CoresPerCluster: 4}
	table := BaseTable{0x80810000, 0x80910000}

	tests := []struct {
		name   string
		kind   unitKind
		core   int
		want   uint64
		wantOK bool
	}{
		{"debug first core", unitDebug, 0, 0x80810000, true},
		{"debug stride", unitDebug, 3, 0x80816000, true},
		{"debug second cluster", unitDebug, 5, 0x80912000, true},
		{"cti stride", unitCTI, 2, 0x80812000, true},
		{"etm stride", unitETM, 6, 0x80912000, true},
		{"etb stride", unitETB, 1, 0x80811000, true},
		{"beyond clusters", unitDebug, 8, 0, false},
		{"negative core", unitCTI, -1, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := unitAddress(topology, &table, tt.kind, tt.core)

			if got != tt.want || ok != tt.wantOK {
				t.Errorf("unitAddress() = (0x%x, %v), want (0x%x, %v)", got, ok, tt.want, tt.wantOK)
			}

			again, _ := unitAddress(topology, &table, tt.kind, tt.core)
			if again != got {
				t.Errorf("unitAddress() not deterministic: 0x%x then 0x%x", got, again)
			}
		})
	}
}

func TestUnitAddressAbsentCluster(t *testing.T) {
	topology := ClusterTopology{CoresPerCluster: 2}
	table := BaseTable{0x40000000, 0}

	for core := 2; core < 4; core++ {
		if addr, ok := unitAddress(topology, &table, unitDebug, core); ok {
			t.Errorf("core %d resolved to 0x%x on an absent cluster", core, addr)
		}
	}

	if addr, ok := unitAddress(topology, &table, unitDebug, 1); !ok || addr != 0x40002000 {
		t.Errorf("core 1 = (0x%x, %v), want (0x40002000, true)", addr, ok)
	}
}

func TestPollBits(t *testing.T) {
	tests := []struct {
		name      string
		setAfter  int // reads before the bit shows, -1 for never
		set       bool
		retries   int
		wantPolls int
		wantOK    bool
	}{
		{"set at once", 0, true, 10, 1, true},
		{"set late", 4, true, 10, 5, true},
		{"set on last read", 9, true, 10, 10, true},
		{"never set", -1, true, 10, 10, false},
		{"never set default budget", -1, true, DefaultPollRetries, DefaultPollRetries, false},
		{"clear at once", -1, false, 10, 1, true},
		{"never clear", 0, false, 25, 25, false},
	}

	const addr = 0x1000 + regEDPRSR

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := newSimBus()
			bus.readHook[addr] = func(uint32) uint32 {
				if tt.setAfter >= 0 && bus.reads[addr] > tt.setAfter {
					return edprsrHalted | 0x3
				}
				return 0x3
			}

			polls, ok := pollBits(bus, addr, edprsrHalted, tt.set, tt.retries)

			if polls != tt.wantPolls || ok != tt.wantOK {
				t.Errorf("pollBits() = (%d, %v), want (%d, %v)", polls, ok, tt.wantPolls, tt.wantOK)
			}

			if bus.reads[addr] != tt.wantPolls {
				t.Errorf("reads = %d, want %d", bus.reads[addr], tt.wantPolls)
			}
		})
	}
}

func TestStaticDiscovery(t *testing.T) {
	discovery := StaticDiscovery{
		BlockDebug: {0x80810000, 0},
		BlockCTI:   {},
	}

	table, err := discovery.Resolve(BlockDebug)
	if err != nil || table != (BaseTable{0x80810000, 0}) {
		t.Errorf("Resolve(debug) = (%s, %v)", table, err)
	}

	for _, block := range []Block{BlockCTI, BlockETM} {
		if _, err := discovery.Resolve(block); !IsDebugError(err, ErrorNotResolved) {
			t.Errorf("Resolve(%s) error = %v, want not resolved", block, err)
		}
	}
}

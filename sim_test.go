// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gocoresight

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// Base addresses of the simulated SoC.
var (
	simDebugBases = BaseTable{0x40000000, 0x50000000}
	simCTIBases   = BaseTable{0x40100000, 0x50100000}
	simETMBases   = BaseTable{0x40200000, 0x50200000}
	simETBBases   = BaseTable{0x40300000, 0x50300000}
)

type busWrite struct {
	addr    uint64
	value   uint32
	relaxed bool
}

// simBus is a register file with per address hooks standing in for the
// hardware state machines.
type simBus struct {
	regs      map[uint64]uint32
	reads     map[uint64]int
	readCount int
	writes    []busWrite
	barriers  []BarrierKind

	readHook  map[uint64]func(value uint32) uint32
	writeHook map[uint64]func(value uint32)
}

func newSimBus() *simBus {
	return &simBus{
		regs:      make(map[uint64]uint32),
		reads:     make(map[uint64]int),
		readHook:  make(map[uint64]func(uint32) uint32),
		writeHook: make(map[uint64]func(uint32)),
	}
}

func (b *simBus) Read32(addr uint64) uint32 {
	b.reads[addr]++
	b.readCount++

	value := b.regs[addr]
	if hook, ok := b.readHook[addr]; ok {
		value = hook(value)
	}

	return value
}

func (b *simBus) write(addr uint64, value uint32, relaxed bool) {
	b.writes = append(b.writes, busWrite{addr, value, relaxed})
	b.regs[addr] = value

	if hook, ok := b.writeHook[addr]; ok {
		hook(value)
	}
}

func (b *simBus) Write32(addr uint64, value uint32) {
	b.write(addr, value, false)
}

func (b *simBus) WriteRelaxed32(addr uint64, value uint32) {
	b.write(addr, value, true)
}

func (b *simBus) Barrier(kind BarrierKind) {
	b.barriers = append(b.barriers, kind)
}

func (b *simBus) accessCount() int {
	return b.readCount + len(b.writes) + len(b.barriers)
}

func (b *simBus) resetTrace() {
	b.reads = make(map[uint64]int)
	b.readCount = 0
	b.writes = nil
	b.barriers = nil
}

// writesTo returns the values written to addr in order.
func (b *simBus) writesTo(addr uint64) []uint32 {
	var values []uint32
	for _, w := range b.writes {
		if w.addr == addr {
			values = append(values, w.value)
		}
	}
	return values
}

// writeIndex returns the position of the first write of value to addr at or
// after from, -1 if there is none.
func (b *simBus) writeIndex(from int, addr uint64, value uint32) int {
	for i := from; i < len(b.writes); i++ {
		if b.writes[i].addr == addr && b.writes[i].value == value {
			return i
		}
	}
	return -1
}

// touchedBelow reports whether any access went to an address below limit.
func (b *simBus) touchedBelow(limit uint64) bool {
	for addr := range b.reads {
		if addr < limit {
			return true
		}
	}
	for _, w := range b.writes {
		if w.addr < limit {
			return true
		}
	}
	return false
}

type simCore struct {
	halted  bool
	pending int  // EDPRSR reads until a requested transition shows
	target  bool // halted state after the pending transition
}

// simPlatform wires hooks for every core of a cluster layout.
type simPlatform struct {
	bus       *simBus
	topology  ClusterTopology
	discovery StaticDiscovery
	cores     []*simCore

	haltLatency  int
	unresponsive bool
	faulting     bool
}

func newSimPlatform(coresPerCluster int, clusters int) *simPlatform {
	p := &simPlatform{
		bus:       newSimBus(),
		topology:  ClusterTopology{CoresPerCluster: coresPerCluster},
		discovery: StaticDiscovery{},
	}

	tables := map[Block]BaseTable{
		BlockDebug: simDebugBases,
		BlockCTI:   simCTIBases,
		BlockETM:   simETMBases,
		BlockETB:   simETBBases,
	}

	for block, table := range tables {
		for cluster := clusters; cluster < MaxClusters; cluster++ {
			table[cluster] = 0
		}
		p.discovery[block] = table
	}

	for core := 0; core < coresPerCluster*clusters; core++ {
		p.wireCore(core)
	}

	return p
}

func (p *simPlatform) base(kind unitKind, core int) uint64 {
	tables := map[unitKind]BaseTable{
		unitDebug: p.discovery[BlockDebug],
		unitCTI:   p.discovery[BlockCTI],
		unitETM:   p.discovery[BlockETM],
		unitETB:   p.discovery[BlockETB],
	}

	table := tables[kind]
	addr, _ := unitAddress(p.topology, &table, kind, core)
	return addr
}

func (p *simPlatform) wireCore(core int) {
	state := &simCore{}
	p.cores = append(p.cores, state)

	debugBase := p.base(unitDebug, core)
	ctiBase := p.base(unitCTI, core)
	etmBase := p.base(unitETM, core)

	p.bus.writeHook[ctiBase+regCTIAppPulse] = func(value uint32) {
		if p.unresponsive {
			return
		}

		if value&ctiChannelHalt != 0 && p.bus.regs[ctiBase+regCTIControl]&ctiGlobalEnable != 0 {
			state.pending = p.haltLatency
			state.target = true
		}

		if value&ctiChannelRestart != 0 {
			state.pending = p.haltLatency
			state.target = false
		}
	}

	p.bus.readHook[debugBase+regEDPRSR] = func(value uint32) uint32 {
		if state.pending > 0 {
			state.pending--
		} else {
			state.halted = state.target
		}

		if state.halted {
			return value | edprsrHalted
		}
		return value &^ edprsrHalted
	}

	p.bus.writeHook[debugBase+regEDITR] = func(value uint32) {
		status := p.bus.regs[debugBase+regEDSCR] | edscrITE
		if p.faulting {
			status |= edscrErr
		}
		p.bus.regs[debugBase+regEDSCR] = status
	}

	p.bus.regs[etmBase+regTRCSTATR] = trcStatIdle | trcStatPMStable
}

func (p *simPlatform) debugger(config Config) *Debugger {
	config.Topology = p.topology
	return NewDebugger(config, p.bus, p.discovery)
}

// powerLoss clears every trace register of core like a power collapse would.
func (p *simPlatform) powerLoss(core int) {
	etmBase := p.base(unitETM, core)
	etbBase := p.base(unitETB, core)

	p.bus.regs[etmBase+regTRCPRGCTLR] = 0
	for _, reg := range etmSavedRegisters {
		p.bus.regs[etmBase+reg.offset] = 0
	}

	p.bus.regs[etbBase+regETBMode] = 0
	p.bus.regs[etbBase+regETBFlushCtl] = 0
	p.bus.regs[etbBase+regETBCtl] = 0
}

// etmRegisters reads back the saved register set of core from the register
// file without going through the bus.
func (p *simPlatform) etmRegisters(core int) ETMState {
	var state ETMState

	etmBase := p.base(unitETM, core)
	state.PrgCtl = p.bus.regs[etmBase+regTRCPRGCTLR]
	for _, reg := range etmSavedRegisters {
		*reg.field(&state) = p.bus.regs[etmBase+reg.offset]
	}

	return state
}

func captureLog(t *testing.T) *test.Hook {
	testLogger, hook := test.NewNullLogger()
	testLogger.SetLevel(logrus.TraceLevel)

	previous := logger
	SetLogger(testLogger)
	t.Cleanup(func() { SetLogger(previous) })

	return hook
}

func countEntries(hook *test.Hook, level logrus.Level) int {
	count := 0
	for _, entry := range hook.AllEntries() {
		if entry.Level == level {
			count++
		}
	}
	return count
}

func testConfig() Config {
	config := DefaultConfig()
	config.SampleInterval = 0
	return config
}

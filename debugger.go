// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gocoresight

import (
	"time"
)

// QuiesceStrategy selects how a trace unit is stopped before its state is
// captured or rewritten.
type QuiesceStrategy int

const (
	// QuiesceProgramControl writes zero to TRCPRGCTLR. Default, the OS lock
	// path is unreliable on the validated silicon.
	QuiesceProgramControl QuiesceStrategy = 0

	// QuiesceOSLock sets the trace OS lock and additionally preserves
	// TRCPRGCTLR across the power cycle.
	QuiesceOSLock QuiesceStrategy = 1
)

func (q QuiesceStrategy) String() string {
	if q == QuiesceOSLock {
		return "os-lock"
	}
	return "program-control"
}

type Config struct {
	Topology Topology
	Quiesce  QuiesceStrategy

	// read budget of every hardware poll
	PollRetries int

	PCSamples      int
	SampleInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Topology:       ClusterTopology{CoresPerCluster: 4},
		Quiesce:        QuiesceProgramControl,
		PollRetries:    DefaultPollRetries,
		PCSamples:      DefaultPCSamples,
		SampleInterval: 10 * time.Microsecond,
	}
}

// Debugger drives the external debug, cross trigger and trace blocks of a
// multi cluster SoC through a register bus.
//
// Base address tables are resolved once (Init, EnableTrace) and only read
// afterwards. Calls targeting the same core must not overlap; there is no
// locking inside.
type Debugger struct {
	config    Config
	bus       Bus
	discovery Discovery

	debugBases  BaseTable
	ctiBases    BaseTable
	initialized bool

	trace *traceState
}

func NewDebugger(config Config, bus Bus, discovery Discovery) *Debugger {
	defaults := DefaultConfig()

	if config.Topology == nil {
		config.Topology = defaults.Topology
	}

	if config.PollRetries <= 0 {
		config.PollRetries = defaults.PollRetries
	}

	if config.PCSamples <= 0 {
		config.PCSamples = defaults.PCSamples
	}

	return &Debugger{
		config:    config,
		bus:       bus,
		discovery: discovery,
	}
}

// Init resolves the external debug and CTI base tables. A block that cannot
// be located is logged and reported, whatever did resolve stays usable.
// Calls on cores whose tables are missing fail with ErrorNotMapped. Init
// can be repeated until both blocks resolved.
func (d *Debugger) Init() error {
	if d.initialized {
		logger.Debug("debug subsystem already initialized")
		return nil
	}

	var firstErr error

	debugBases, err := d.discovery.Resolve(BlockDebug)
	if err != nil {
		logger.Errorf("could not resolve external debug base addresses: %v", err)
		firstErr = err
	} else {
		d.debugBases = debugBases
	}

	ctiBases, err := d.discovery.Resolve(BlockCTI)
	if err != nil {
		logger.Errorf("could not resolve cti base addresses: %v", err)
		if firstErr == nil {
			firstErr = err
		}
	} else {
		d.ctiBases = ctiBases
	}

	if firstErr != nil {
		return firstErr
	}

	d.initialized = true

	logger.Debugf("debug subsystem up: debug %s cti %s", d.debugBases, d.ctiBases)
	return nil
}

func (d *Debugger) Config() Config {
	return d.config
}

func (d *Debugger) unitBase(kind unitKind, table *BaseTable, core int) (uint64, error) {
	if core < 0 || core >= MaxCores {
		return 0, newDebugError(ErrorInvalidCore, "core %d out of range", core)
	}

	addr, ok := unitAddress(d.config.Topology, table, kind, core)
	if !ok {
		return 0, newDebugError(ErrorNotMapped, "%s unit of core %d is not mapped", kind, core)
	}

	return addr, nil
}

func (d *Debugger) debugBase(core int) (uint64, error) {
	return d.unitBase(unitDebug, &d.debugBases, core)
}

func (d *Debugger) ctiBase(core int) (uint64, error) {
	return d.unitBase(unitCTI, &d.ctiBases, core)
}

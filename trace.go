// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gocoresight

import (
	"github.com/boljen/go-bitmap"
)

// traceState exists once EnableTrace ran. The tables and the core set are
// fixed from then on, the saved records are owned by their core for one
// save/restore cycle.
type traceState struct {
	etmBases BaseTable
	etbBases BaseTable

	mask  uint32
	cores bitmap.Bitmap

	etm [MaxCores]ETMState
	etb [MaxCores]ETBState
}

// EnableTrace resolves the trace blocks and programs the baseline trace unit
// and trace buffer configuration into every core of mask. It may only run
// once. Cores in mask that have no trace blocks mapped are skipped and do
// not take part in save/restore.
func (d *Debugger) EnableTrace(mask uint32) error {
	if d.trace != nil {
		return newDebugError(ErrorAlreadyEnabled, "trace already enabled for mask 0x%x", d.trace.mask)
	}

	etmBases, err := d.discovery.Resolve(BlockETM)
	if err != nil {
		logger.Errorf("could not resolve etm base addresses, trace stays disabled: %v", err)
		return err
	}

	etbBases, err := d.discovery.Resolve(BlockETB)
	if err != nil {
		logger.Errorf("could not resolve etb base addresses, trace stays disabled: %v", err)
		return err
	}

	d.trace = &traceState{
		etmBases: etmBases,
		etbBases: etbBases,
		mask:     mask,
		cores:    bitmap.New(MaxCores),
	}

	for core := 0; core < MaxCores; core++ {
		if mask&(1<<uint(core)) == 0 {
			continue
		}

		etmBase, err := d.etmBase(core)
		if err != nil {
			logger.Warnf("trace not enabled on core %d: %v", core, err)
			continue
		}

		etbBase, err := d.etbBase(core)
		if err != nil {
			logger.Warnf("trace not enabled on core %d: %v", core, err)
			continue
		}

		d.etmEnable(core, etmBase)
		d.etbInit(core, etbBase)

		d.trace.cores.Set(core, true)
	}

	logger.Infof("trace enabled for core mask 0x%x (etm %s, etb %s)", mask, etmBases, etbBases)
	return nil
}

// TraceEnabled reports whether save/restore does any work for core.
func (d *Debugger) TraceEnabled(core int) bool {
	if d.trace == nil || d.trace.mask == 0 {
		return false
	}

	if core < 0 || core >= MaxCores {
		return false
	}

	return d.trace.cores.Get(core)
}

// StopTrace stops the local trace buffer of core. Used when tracing is torn
// down for good, not on every power collapse.
func (d *Debugger) StopTrace(core int) error {
	if d.trace == nil {
		return newDebugError(ErrorNotResolved, "trace was never enabled")
	}

	etbBase, err := d.etbBase(core)
	if err != nil {
		return err
	}

	d.etbStop(core, etbBase)
	return nil
}

// SaveCoreDebugState captures trace unit then trace buffer state of core
// ahead of a power collapse. Without trace enabled for core it does not
// touch the bus.
func (d *Debugger) SaveCoreDebugState(core int) {
	if !d.TraceEnabled(core) {
		return
	}

	etmBase, _ := d.etmBase(core)
	etbBase, _ := d.etbBase(core)

	d.etmSave(core, etmBase, &d.trace.etm[core])
	d.etbSave(etbBase, &d.trace.etb[core])

	coreLogger(core).Trace("debug state saved")
}

// RestoreCoreDebugState replays what SaveCoreDebugState captured, trace unit
// first. It must pair with a save in the same power cycle, otherwise stale
// state is written.
func (d *Debugger) RestoreCoreDebugState(core int) {
	if !d.TraceEnabled(core) {
		return
	}

	etmBase, _ := d.etmBase(core)
	etbBase, _ := d.etbBase(core)

	d.etmRestore(core, etmBase, &d.trace.etm[core])
	d.etbRestore(core, etbBase, &d.trace.etb[core])

	coreLogger(core).Trace("debug state restored")
}

// SavedState returns the records of the last save on core.
func (d *Debugger) SavedState(core int) (ETMState, ETBState, bool) {
	if !d.TraceEnabled(core) {
		return ETMState{}, ETBState{}, false
	}

	return d.trace.etm[core], d.trace.etb[core], true
}

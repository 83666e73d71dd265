// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gocoresight

// ETBState is the local trace buffer configuration carried across a power
// collapse, saved and restored separately from the trace unit.
type ETBState struct {
	Mode     uint32
	FlushCtl uint32
	Ctl      uint32
}

func DefaultETBState() ETBState {
	return ETBState{
		Mode:     etbModeCircular,
		FlushCtl: etbFlushOnStop,
		Ctl:      etbCaptureOn,
	}
}

func (d *Debugger) etbBase(core int) (uint64, error) {
	return d.unitBase(unitETB, &d.trace.etbBases, core)
}

func (d *Debugger) etbInit(core int, base uint64) {
	defaults := DefaultETBState()

	unlockUnit(d.bus, base)

	d.bus.Write32(base+regETBMode, defaults.Mode)
	d.bus.Write32(base+regETBFlushCtl, defaults.FlushCtl)
	d.bus.Write32(base+regETBCtl, defaults.Ctl)

	lockUnit(d.bus, base)

	coreLogger(core).Debugf("etb at 0x%x capturing", base)
}

// etbStop disables capture and waits until the buffer has really stopped.
func (d *Debugger) etbStop(core int, base uint64) {
	unlockUnit(d.bus, base)
	d.bus.Write32(base+regETBCtl, etbCaptureOff)
	lockUnit(d.bus, base)

	d.bus.Barrier(BarrierData)

	coreLogger(core).Debugf("etb at 0x%x stopped", base)
}

func (d *Debugger) etbSave(base uint64, state *ETBState) {
	d.bus.Write32(base+regETBAccessCtl, etbAccessOn)

	state.Mode = d.bus.Read32(base + regETBMode)
	state.FlushCtl = d.bus.Read32(base + regETBFlushCtl)
	state.Ctl = d.bus.Read32(base + regETBCtl)

	d.bus.Write32(base+regETBAccessCtl, etbAccessOff)
}

// etbRestore writes a saved state back, but only into a buffer that is not
// capturing. Capture is enabled last. It reports whether the state was
// written.
func (d *Debugger) etbRestore(core int, base uint64, state *ETBState) bool {
	d.bus.Write32(base+regETBAccessCtl, etbAccessOn)
	defer d.bus.Write32(base+regETBAccessCtl, etbAccessOff)

	if ctl := d.bus.Read32(base + regETBCtl); ctl != etbCaptureOff {
		coreLogger(core).Warnf("etb at 0x%x still capturing (ctl 0x%x), state not restored", base, ctl)
		return false
	}

	d.bus.Write32(base+regETBMode, state.Mode)
	d.bus.Write32(base+regETBFlushCtl, state.FlushCtl)
	d.bus.Write32(base+regETBCtl, state.Ctl)

	return true
}

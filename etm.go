// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gocoresight

// ETMState is the trace unit configuration carried across a power
// collapse. It is only meaningful between a save and the matching restore
// on the same core.
type ETMState struct {
	PrgCtl     uint32 // only kept under QuiesceOSLock
	Config     uint32
	EventCtl0  uint32
	EventCtl1  uint32
	StallCtl   uint32
	TSCtl      uint32
	SyncPeriod uint32
	BBCtl      uint32
	TraceID    uint32
	VICtl      uint32
	VIIECtl    uint32
	VISSCtl    uint32
}

// etmRegister ties a saved field to its register, in capture order.
type etmRegister struct {
	offset uint64
	field  func(s *ETMState) *uint32
}

var etmSavedRegisters = [...]etmRegister{
	{regTRCCONFIGR, func(s *ETMState) *uint32 { return &s.Config }},
	{regTRCEVENTCTL0R, func(s *ETMState) *uint32 { return &s.EventCtl0 }},
	{regTRCEVENTCTL1R, func(s *ETMState) *uint32 { return &s.EventCtl1 }},
	{regTRCSTALLCTLR, func(s *ETMState) *uint32 { return &s.StallCtl }},
	{regTRCTSCTLR, func(s *ETMState) *uint32 { return &s.TSCtl }},
	{regTRCSYNCPR, func(s *ETMState) *uint32 { return &s.SyncPeriod }},
	{regTRCBBCTLR, func(s *ETMState) *uint32 { return &s.BBCtl }},
	{regTRCTRACEIDR, func(s *ETMState) *uint32 { return &s.TraceID }},
	{regTRCVICTLR, func(s *ETMState) *uint32 { return &s.VICtl }},
	{regTRCVIIECTLR, func(s *ETMState) *uint32 { return &s.VIIECtl }},
	{regTRCVISSCTLR, func(s *ETMState) *uint32 { return &s.VISSCtl }},
}

// DefaultETMState is the baseline programmed by EnableTrace: context id and
// vmid tracing, branch broadcast everywhere, no stalls, no events, no
// timestamps, a sync packet every 256 bytes and view-instruction tracing
// everything without address filters or start/stop points.
func DefaultETMState(core int) ETMState {
	return ETMState{
		PrgCtl:     trcPrgEnable,
		Config:     configBB | configCID | configVMID,
		EventCtl0:  0,
		EventCtl1:  0,
		StallCtl:   0,
		TSCtl:      0,
		SyncPeriod: syncPeriod256,
		BBCtl:      0,
		TraceID:    uint32(traceIDBase + core),
		VICtl:      viCtlAlwaysTrue | viCtlSSStarted,
		VIIECtl:    0,
		VISSCtl:    0,
	}
}

func (d *Debugger) etmBase(core int) (uint64, error) {
	return d.unitBase(unitETM, &d.trace.etmBases, core)
}

func (d *Debugger) etmWaitStatus(core int, base uint64, bit uint32, what string) {
	polls, ok := pollBits(d.bus, base+regTRCSTATR, bit, true, d.config.PollRetries)
	if !ok {
		coreLogger(core).Warnf("etm not %s after %d polls, continuing", what, polls)
	}
}

func (d *Debugger) etmWriteBack(base uint64, state *ETMState) {
	for _, reg := range etmSavedRegisters {
		d.bus.WriteRelaxed32(base+reg.offset, *reg.field(state))
	}
}

// etmEnable programs the baseline configuration into the trace unit of core.
func (d *Debugger) etmEnable(core int, base uint64) {
	unlockUnit(d.bus, base)

	d.bus.Write32(base+regTRCPRGCTLR, 0)
	d.etmWaitStatus(core, base, trcStatPMStable, "stable")

	defaults := DefaultETMState(core)
	d.etmWriteBack(base, &defaults)

	d.bus.Write32(base+regTRCPRGCTLR, trcPrgEnable)
	lockUnit(d.bus, base)

	coreLogger(core).Debugf("etm at 0x%x enabled with trace id 0x%x", base, defaults.TraceID)
}

func (d *Debugger) etmQuiesce(base uint64) {
	if d.config.Quiesce == QuiesceOSLock {
		d.bus.Write32(base+regTRCOSLAR, trcOSLock)
	} else {
		d.bus.Write32(base+regTRCPRGCTLR, 0)
	}
}

// etmSave captures the trace unit state of core before it loses power.
func (d *Debugger) etmSave(core int, base uint64, state *ETMState) {
	unlockUnit(d.bus, base)

	d.etmQuiesce(base)
	d.etmWaitStatus(core, base, trcStatPMStable, "stable")

	if d.config.Quiesce == QuiesceOSLock {
		state.PrgCtl = d.bus.Read32(base + regTRCPRGCTLR)
	}

	for _, reg := range etmSavedRegisters {
		*reg.field(state) = d.bus.Read32(base + reg.offset)
	}

	d.etmWaitStatus(core, base, trcStatIdle, "idle")
	lockUnit(d.bus, base)
}

// etmRestore replays a saved state after power up and makes it visible to
// the code resuming on core.
func (d *Debugger) etmRestore(core int, base uint64, state *ETMState) {
	unlockUnit(d.bus, base)

	d.etmQuiesce(base)
	d.etmWriteBack(base, state)

	if d.config.Quiesce == QuiesceOSLock {
		d.bus.Write32(base+regTRCPRGCTLR, state.PrgCtl)
	} else {
		d.bus.Write32(base+regTRCPRGCTLR, trcPrgEnable)
	}

	d.bus.Write32(base+regTRCOSLAR, trcOSUnlock)
	lockUnit(d.bus, base)

	d.bus.Barrier(BarrierData)
	d.bus.Barrier(BarrierInstruction)
}

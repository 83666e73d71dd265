// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gocoresight

import (
	"time"
)

// NopInstruction is the A64 NOP encoding, a harmless default for
// InjectNop.
const NopInstruction = 0xD503201F

// EnableDebugAccess unlocks the external debug unit of core.
func (d *Debugger) EnableDebugAccess(core int) error {
	debugBase, err := d.debugBase(core)
	if err != nil {
		return err
	}

	unlockDebug(d.bus, debugBase)

	coreLogger(core).Tracef("external debug unlocked at 0x%x", debugBase)
	return nil
}

// DumpProgramCounterSample logs the sampled program counter of core a few
// times in a row and returns the samples.
func (d *Debugger) DumpProgramCounterSample(core int) ([]uint64, error) {
	debugBase, err := d.debugBase(core)
	if err != nil {
		return nil, err
	}

	samples := make([]uint64, 0, d.config.PCSamples)

	for i := 0; i < d.config.PCSamples; i++ {
		// reading the low half latches the high half
		lo := d.bus.Read32(debugBase + regEDPCSRlo)
		hi := d.bus.Read32(debugBase + regEDPCSRhi)

		sample := uint64(hi)<<32 | uint64(lo)
		samples = append(samples, sample)

		coreLogger(core).Errorf("pc sample %d: 0x%016x", i, sample)

		if d.config.SampleInterval > 0 && i < d.config.PCSamples-1 {
			time.Sleep(d.config.SampleInterval)
		}
	}

	return samples, nil
}

// HaltCore stops core through its debug request trigger. On a
// ErrorHaltTimeout error the run state of the core is whatever the hardware
// left, the core must not be used for further debug operations.
func (d *Debugger) HaltCore(core int) error {
	debugBase, err := d.debugBase(core)
	if err != nil {
		return err
	}

	ctiBase, err := d.ctiBase(core)
	if err != nil {
		return err
	}

	edscr := d.bus.Read32(debugBase + regEDSCR)
	d.bus.Write32(debugBase+regEDSCR, edscr|edscrHDE)

	unlockCTI(d.bus, ctiBase)
	d.bus.Write32(ctiBase+regCTIControl, ctiGlobalEnable)
	d.bus.Write32(ctiBase+regCTIOutEn(ctiTriggerDebugRequest), ctiChannelHalt)
	d.bus.Write32(ctiBase+regCTIAppPulse, ctiChannelHalt)

	polls, ok := pollBits(d.bus, debugBase+regEDPRSR, edprsrHalted, true, d.config.PollRetries)
	if !ok {
		coreLogger(core).Errorf("core did not halt after %d polls", polls)
		return newDebugError(ErrorHaltTimeout, "core %d did not halt", core)
	}

	coreLogger(core).Debugf("core halted after %d polls", polls)
	return nil
}

// ResumeCore restarts a halted core. A core that does not report running
// again is only logged; the returned error covers unmapped cores.
func (d *Debugger) ResumeCore(core int) error {
	debugBase, err := d.debugBase(core)
	if err != nil {
		return err
	}

	ctiBase, err := d.ctiBase(core)
	if err != nil {
		return err
	}

	edscr := d.bus.Read32(debugBase + regEDSCR)
	d.bus.Write32(debugBase+regEDSCR, edscr&^edscrHDE)

	unlockCTI(d.bus, ctiBase)
	d.bus.Write32(ctiBase+regCTIControl, ctiGlobalEnable)
	d.bus.Write32(ctiBase+regCTIIntAck, 1<<ctiTriggerDebugRequest)
	d.bus.Write32(ctiBase+regCTIOutEn(ctiTriggerRestart), ctiChannelRestart)
	d.bus.Write32(ctiBase+regCTIAppPulse, ctiChannelRestart)

	polls, ok := pollBits(d.bus, debugBase+regEDPRSR, edprsrHalted, false, d.config.PollRetries)
	if !ok {
		coreLogger(core).Errorf("core still halted after %d polls", polls)
		return nil
	}

	coreLogger(core).Debugf("core resumed after %d polls", polls)
	return nil
}

// InjectInstruction executes opcode once on a halted core. Calling it on a
// running core corrupts its execution. A fault raised by the instruction is
// logged and left to the caller to inspect.
func (d *Debugger) InjectInstruction(core int, opcode uint32) error {
	debugBase, err := d.debugBase(core)
	if err != nil {
		return err
	}

	d.bus.Barrier(BarrierData)
	d.bus.Write32(debugBase+regEDITR, opcode)

	polls, ok := pollBits(d.bus, debugBase+regEDSCR, edscrITE, true, d.config.PollRetries)
	if !ok {
		coreLogger(core).Errorf("instruction 0x%08x not consumed after %d polls", opcode, polls)
	}

	if d.bus.Read32(debugBase+regEDSCR)&edscrErr != 0 {
		coreLogger(core).Errorf("exception while executing instruction 0x%08x", opcode)
	}

	return nil
}

func (d *Debugger) InjectNop(core int) error {
	return d.InjectInstruction(core, NopInstruction)
}

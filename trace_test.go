// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gocoresight

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSaveRestoreWithoutTrace(t *testing.T) {
	tests := []struct {
		name   string
		enable bool
		mask   uint32
	}{
		{"never enabled", false, 0},
		{"empty mask", true, 0},
		{"core outside mask", true, 0x2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			captureLog(t)

			platform := newSimPlatform(2, 2)
			debugger := platform.debugger(testConfig())

			if tt.enable {
				if err := debugger.EnableTrace(tt.mask); err != nil {
					t.Fatalf("EnableTrace() error = %v", err)
				}
			}

			platform.bus.resetTrace()

			debugger.SaveCoreDebugState(0)
			debugger.RestoreCoreDebugState(0)

			if got := platform.bus.accessCount(); got != 0 {
				t.Errorf("bus accesses = %d, want 0", got)
			}

			if debugger.TraceEnabled(0) {
				t.Error("TraceEnabled(0) = true")
			}

			if _, _, ok := debugger.SavedState(0); ok {
				t.Error("SavedState(0) reported a record")
			}
		})
	}
}

func TestTracePowerCycle(t *testing.T) {
	captureLog(t)

	platform := newSimPlatform(2, 2)
	debugger := platform.debugger(testConfig())

	if err := debugger.EnableTrace(0x3); err != nil {
		t.Fatalf("EnableTrace() error = %v", err)
	}

	for core := 0; core < 2; core++ {
		if !debugger.TraceEnabled(core) {
			t.Errorf("TraceEnabled(%d) = false", core)
		}

		if diff := cmp.Diff(DefaultETMState(core), platform.etmRegisters(core)); diff != "" {
			t.Errorf("core %d baseline mismatch (-want +got):\n%s", core, diff)
		}
	}

	if debugger.TraceEnabled(2) {
		t.Error("TraceEnabled(2) = true outside the mask")
	}

	before := platform.etmRegisters(1)

	debugger.SaveCoreDebugState(1)
	platform.powerLoss(1)

	debugger.RestoreCoreDebugState(1)

	if diff := cmp.Diff(before, platform.etmRegisters(1)); diff != "" {
		t.Errorf("trace unit after power cycle mismatch (-want +got):\n%s", diff)
	}

	etbBase := platform.base(unitETB, 1)
	gotETB := ETBState{
		Mode:     platform.bus.regs[etbBase+regETBMode],
		FlushCtl: platform.bus.regs[etbBase+regETBFlushCtl],
		Ctl:      platform.bus.regs[etbBase+regETBCtl],
	}

	if diff := cmp.Diff(DefaultETBState(), gotETB); diff != "" {
		t.Errorf("trace buffer after power cycle mismatch (-want +got):\n%s", diff)
	}

	etm, etb, ok := debugger.SavedState(1)
	if !ok {
		t.Fatal("SavedState(1) reported no record")
	}

	wantETM := DefaultETMState(1)
	wantETM.PrgCtl = 0
	if diff := cmp.Diff(wantETM, etm); diff != "" {
		t.Errorf("saved trace unit record mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(DefaultETBState(), etb); diff != "" {
		t.Errorf("saved trace buffer record mismatch (-want +got):\n%s", diff)
	}
}

// registerFile copies the non zero registers, an absent register reads as
// zero on the simulated bus.
func registerFile(regs map[uint64]uint32) map[uint64]uint32 {
	file := make(map[uint64]uint32)
	for addr, value := range regs {
		if value != 0 {
			file[addr] = value
		}
	}
	return file
}

func TestSaveRestoreWithoutPowerLoss(t *testing.T) {
	for _, quiesce := range []QuiesceStrategy{QuiesceProgramControl, QuiesceOSLock} {
		t.Run(quiesce.String(), func(t *testing.T) {
			captureLog(t)

			config := testConfig()
			config.Quiesce = quiesce

			platform := newSimPlatform(2, 2)
			debugger := platform.debugger(config)

			if err := debugger.EnableTrace(0x3); err != nil {
				t.Fatalf("EnableTrace() error = %v", err)
			}

			before := registerFile(platform.bus.regs)

			debugger.SaveCoreDebugState(1)
			debugger.RestoreCoreDebugState(1)

			if diff := cmp.Diff(before, registerFile(platform.bus.regs)); diff != "" {
				t.Errorf("register file changed (-want +got):\n%s", diff)
			}

			// the buffer kept capturing, its restore is refused
			etbBase := platform.base(unitETB, 1)
			for _, reg := range []uint64{regETBMode, regETBFlushCtl, regETBCtl} {
				if writes := platform.bus.writesTo(etbBase + reg); len(writes) != 1 {
					t.Errorf("register 0x%03x written %d times, want only by EnableTrace", reg, len(writes))
				}
			}
		})
	}
}

func TestSaveTouchesOnlyItsCore(t *testing.T) {
	captureLog(t)

	platform := newSimPlatform(2, 2)
	debugger := platform.debugger(testConfig())

	if err := debugger.EnableTrace(0xF); err != nil {
		t.Fatalf("EnableTrace() error = %v", err)
	}

	platform.bus.resetTrace()
	debugger.SaveCoreDebugState(3)

	etmBase := platform.base(unitETM, 3)
	etbBase := platform.base(unitETB, 3)

	for _, w := range platform.bus.writes {
		inETM := w.addr >= etmBase && w.addr < etmBase+etmStride
		inETB := w.addr >= etbBase && w.addr < etbBase+etbStride

		if !inETM && !inETB {
			t.Errorf("write outside the blocks of core 3: 0x%x", w.addr)
		}
	}

	for addr := range platform.bus.reads {
		inETM := addr >= etmBase && addr < etmBase+etmStride
		inETB := addr >= etbBase && addr < etbBase+etbStride

		if !inETM && !inETB {
			t.Errorf("read outside the blocks of core 3: 0x%x", addr)
		}
	}
}

func TestEnableTraceTwice(t *testing.T) {
	captureLog(t)

	platform := newSimPlatform(2, 2)
	debugger := platform.debugger(testConfig())

	if err := debugger.EnableTrace(0x1); err != nil {
		t.Fatalf("EnableTrace() error = %v", err)
	}

	platform.bus.resetTrace()

	if err := debugger.EnableTrace(0x3); !IsDebugError(err, ErrorAlreadyEnabled) {
		t.Errorf("second EnableTrace() error = %v, want already enabled", err)
	}

	if got := platform.bus.accessCount(); got != 0 {
		t.Errorf("bus accesses = %d, want 0", got)
	}

	if debugger.TraceEnabled(1) {
		t.Error("second call widened the core set")
	}
}

func TestEnableTraceDiscoveryFailure(t *testing.T) {
	for _, block := range []Block{BlockETM, BlockETB} {
		t.Run(block.String(), func(t *testing.T) {
			captureLog(t)

			platform := newSimPlatform(2, 2)
			delete(platform.discovery, block)

			debugger := platform.debugger(testConfig())

			if err := debugger.EnableTrace(0x3); !IsDebugError(err, ErrorNotResolved) {
				t.Fatalf("EnableTrace() error = %v, want not resolved", err)
			}

			debugger.SaveCoreDebugState(0)
			debugger.RestoreCoreDebugState(0)

			if got := platform.bus.accessCount(); got != 0 {
				t.Errorf("bus accesses = %d, want 0", got)
			}

			if err := debugger.StopTrace(0); !IsDebugError(err, ErrorNotResolved) {
				t.Errorf("StopTrace() error = %v, want not resolved", err)
			}
		})
	}
}

func TestSingleClusterPlatform(t *testing.T) {
	captureLog(t)

	platform := newSimPlatform(2, 1)
	debugger := platform.debugger(testConfig())

	if err := debugger.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if err := debugger.EnableTrace(0xF); err != nil {
		t.Fatalf("EnableTrace() error = %v", err)
	}

	for core, want := range []bool{true, true, false, false} {
		if got := debugger.TraceEnabled(core); got != want {
			t.Errorf("TraceEnabled(%d) = %v, want %v", core, got, want)
		}
	}

	platform.bus.resetTrace()

	debugger.SaveCoreDebugState(2)
	debugger.RestoreCoreDebugState(3)

	if got := platform.bus.accessCount(); got != 0 {
		t.Errorf("bus accesses for unmapped cores = %d, want 0", got)
	}

	if err := debugger.HaltCore(1); err != nil {
		t.Errorf("HaltCore(1) error = %v", err)
	}

	if err := debugger.HaltCore(2); !IsDebugError(err, ErrorNotMapped) {
		t.Errorf("HaltCore(2) error = %v, want not mapped", err)
	}

	if platform.bus.touchedBelow(simDebugBases[0]) {
		t.Error("access below the first cluster window")
	}
}

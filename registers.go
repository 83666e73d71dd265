// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gocoresight

// Register windows of the CoreSight blocks driven by this package. Offsets
// follow the ARMv8 external debug, CTI, ETMv4 and TMC/ETB programmers'
// models.

const (
	MaxClusters = 2
	MaxCores    = 32

	DefaultPollRetries = 10000
	DefaultPCSamples   = 8

	coreSightUnlockKey = 0xC5ACCE55
	coreSightLockKey   = 0x00000000

	// all CoreSight components place the software lock at the same offset
	regLockAccess = 0xFB0
)

// per core strides inside a cluster window
const (
	debugStride = 0x2000
	ctiStride   = 0x1000
	etmStride   = 0x1000
	etbStride   = 0x1000
)

// external debug unit
const (
	regEDITR    = 0x084
	regEDSCR    = 0x088
	regEDPCSRlo = 0x0A0
	regEDPCSRhi = 0x0AC
	regEDPRSR   = 0x314

	edscrErr = 1 << 6  // cumulative error flag
	edscrHDE = 1 << 14 // halting debug mode enable
	edscrITE = 1 << 24 // instruction transfer register empty

	edprsrHalted = 1 << 4
)

// cross trigger interface
const (
	regCTIControl   = 0x000
	regCTIIntAck    = 0x010
	regCTIAppPulse  = 0x01C
	regCTIOutEnBase = 0x0A0

	ctiGlobalEnable = 1

	ctiTriggerDebugRequest = 0 // output trigger 0 requests halt
	ctiTriggerRestart      = 1 // output trigger 1 requests restart

	ctiChannelHalt    = 1 << 0
	ctiChannelRestart = 1 << 1
)

func regCTIOutEn(trigger int) uint64 {
	return regCTIOutEnBase + uint64(trigger)*4
}

// ETMv4 trace unit
const (
	regTRCPRGCTLR    = 0x004
	regTRCSTATR      = 0x00C
	regTRCCONFIGR    = 0x010
	regTRCEVENTCTL0R = 0x020
	regTRCEVENTCTL1R = 0x024
	regTRCSTALLCTLR  = 0x02C
	regTRCTSCTLR     = 0x030
	regTRCSYNCPR     = 0x034
	regTRCBBCTLR     = 0x03C
	regTRCTRACEIDR   = 0x040
	regTRCVICTLR     = 0x080
	regTRCVIIECTLR   = 0x084
	regTRCVISSCTLR   = 0x088
	regTRCOSLAR      = 0x300

	trcStatIdle     = 1 << 0
	trcStatPMStable = 1 << 1

	trcPrgEnable = 1

	trcOSLock   = 1
	trcOSUnlock = 0

	configBB   = 1 << 3 // branch broadcast
	configCID  = 1 << 6 // context id tracing
	configVMID = 1 << 7 // vmid tracing

	// 2^8 bytes between trace synchronisation packets
	syncPeriod256 = 8

	// resource selector 1 is the always true resource, SSSTATUS marks
	// the start/stop logic as started
	viCtlAlwaysTrue = 0x1
	viCtlSSStarted  = 1 << 9

	traceIDBase = 0x10
)

// embedded trace buffer
const (
	regETBCtl       = 0x020
	regETBMode      = 0x028
	regETBFlushCtl  = 0x304
	regETBAccessCtl = 0xFA0

	etbModeCircular = 0
	etbFlushOnStop  = 1
	etbCaptureOn    = 1
	etbCaptureOff   = 0

	// register access gate, distinct from the software lock key
	etbAccessOn  = 0x1
	etbAccessOff = 0x0
)

// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gocoresight

// Software lock handling. Every CoreSight block re-locks itself, so each
// access session starts with an unlock. A rejected unlock is not visible
// here, later polls on the block simply time out.

func unlockUnit(bus Bus, base uint64) {
	bus.Write32(base+regLockAccess, coreSightUnlockKey)
}

func lockUnit(bus Bus, base uint64) {
	bus.Write32(base+regLockAccess, coreSightLockKey)
}

func unlockDebug(bus Bus, debugBase uint64) {
	unlockUnit(bus, debugBase)
}

func unlockCTI(bus Bus, ctiBase uint64) {
	unlockUnit(bus, ctiBase)
}

// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gocoresight

// pollBits spins on a status register until every bit of mask reads as set
// (or all clear when set is false). There is no delay between reads, the
// hardware latencies waited for are far below a millisecond. It returns the
// number of reads issued and whether the condition was observed; on
// exhaustion exactly retries reads have been made. Severity of a timeout is
// left to the caller.
func pollBits(bus Bus, addr uint64, mask uint32, set bool, retries int) (int, bool) {
	for polls := 1; polls <= retries; polls++ {
		value := bus.Read32(addr) & mask

		if (set && value == mask) || (!set && value == 0) {
			return polls, true
		}
	}

	return retries, false
}

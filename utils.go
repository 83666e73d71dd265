// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gocoresight

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/gousb"
)

func idExists(slice []gousb.ID, item gousb.ID) bool {
	for _, element := range slice {
		if element == item {
			return true
		}
	}

	return false
}

// ParseBaseTable parses a comma separated list of per-cluster base
// addresses ("0x80810000,0x80910000"). Empty or "0" entries leave the
// cluster absent.
func ParseBaseTable(list string) (BaseTable, error) {
	var table BaseTable

	list = strings.TrimSpace(list)
	if list == "" {
		return table, nil
	}

	entries := strings.Split(list, ",")
	if len(entries) > MaxClusters {
		return table, fmt.Errorf("%d base addresses given, at most %d clusters supported", len(entries), MaxClusters)
	}

	for i, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		value, err := strconv.ParseUint(entry, 0, 64)
		if err != nil {
			return table, fmt.Errorf("invalid base address '%s' for cluster %d: %v", entry, i, err)
		}

		table[i] = value
	}

	return table, nil
}

// ParseCoreMask accepts a bit mask ("0x3") or a core list ("0,1,4").
func ParseCoreMask(value string) (uint32, error) {
	value = strings.TrimSpace(value)

	if value == "" {
		return 0, nil
	}

	if !strings.Contains(value, ",") && strings.HasPrefix(value, "0x") {
		mask, err := strconv.ParseUint(value, 0, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid core mask '%s': %v", value, err)
		}
		return uint32(mask), nil
	}

	var mask uint32
	for _, entry := range strings.Split(value, ",") {
		core, err := strconv.Atoi(strings.TrimSpace(entry))
		if err != nil || core < 0 || core >= MaxCores {
			return 0, fmt.Errorf("invalid core '%s'", entry)
		}
		mask |= 1 << uint(core)
	}

	return mask, nil
}

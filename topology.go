// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gocoresight

import "fmt"

// Topology splits a logical core index into its cluster and the position
// of the core inside that cluster.
type Topology interface {
	Locate(core int) (cluster int, cpu int)
}

// ClusterTopology is the usual affinity layout where every cluster holds
// the same number of cores.
type ClusterTopology struct {
	CoresPerCluster int
}

func (t ClusterTopology) Locate(core int) (int, int) {
	perCluster := t.CoresPerCluster
	if perCluster <= 0 {
		perCluster = 1
	}

	return core / perCluster, core % perCluster
}

// BaseTable holds one base address per cluster, zero marks a cluster the
// platform did not populate.
type BaseTable [MaxClusters]uint64

func (b BaseTable) String() string {
	return fmt.Sprintf("[0x%x 0x%x]", b[0], b[1])
}

func (b BaseTable) populated() bool {
	for _, base := range b {
		if base != 0 {
			return true
		}
	}
	return false
}

type unitKind int

const (
	unitDebug unitKind = iota
	unitCTI
	unitETM
	unitETB
)

var unitStrides = [...]uint64{
	unitDebug: debugStride,
	unitCTI:   ctiStride,
	unitETM:   etmStride,
	unitETB:   etbStride,
}

var unitNames = [...]string{
	unitDebug: "debug",
	unitCTI:   "cti",
	unitETM:   "etm",
	unitETB:   "etb",
}

func (k unitKind) String() string {
	return unitNames[k]
}

// unitAddress is pure address arithmetic: cluster base plus the per core
// stride of the unit. ok is false when the cluster has no base address,
// the result must not be dereferenced in that case.
func unitAddress(topology Topology, table *BaseTable, kind unitKind, core int) (addr uint64, ok bool) {
	cluster, cpu := topology.Locate(core)

	if cluster < 0 || cluster >= MaxClusters || cpu < 0 {
		return 0, false
	}

	base := table[cluster]
	if base == 0 {
		return 0, false
	}

	return base + uint64(cpu)*unitStrides[kind], true
}

package skills

import (
	"context"
	"fmt"
	"sort"
	"time"
)

const DefaultClusterThreshold = 0.92

// Cluster is a group of skills whose triggers embed almost identically.
type Cluster struct {
	Survivor   ClusterMember   `json:"survivor"`
	Duplicates []ClusterMember `json:"duplicates"`
	Size       int             `json:"size"`
}

type ClusterMember struct {
	Fingerprint string    `json:"fingerprint"`
	Trigger     string    `json:"trigger"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ClusterReport summarizes a near-duplicate scan.
type ClusterReport struct {
	Threshold  float64   `json:"threshold"`
	TotalItems int       `json:"total_items"`
	Clusters   []Cluster `json:"clusters"`
}

// FindClusters reports near-duplicate skills. Nothing is modified.
func FindClusters(ctx context.Context, store Scanner, threshold float64) (*ClusterReport, error) {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultClusterThreshold
	}
	all, err := store.ScanAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("find clusters: %w", err)
	}

	report := &ClusterReport{Threshold: threshold, TotalItems: len(all), Clusters: []Cluster{}}
	for _, group := range clusterSkills(all, threshold) {
		report.Clusters = append(report.Clusters, toCluster(group))
	}
	sort.Slice(report.Clusters, func(i, j int) bool {
		if report.Clusters[i].Size != report.Clusters[j].Size {
			return report.Clusters[i].Size > report.Clusters[j].Size
		}
		return report.Clusters[i].Survivor.Fingerprint < report.Clusters[j].Survivor.Fingerprint
	})
	return report, nil
}

// clusterSkills links every pair above threshold and returns the connected
// components with more than one member.
func clusterSkills(all []Skill, threshold float64) [][]Skill {
	parent := make([]int, len(all))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			sim, err := Cosine(all[i].Embedding, all[j].Embedding)
			if err != nil || sim < threshold {
				continue
			}
			if ri, rj := find(i), find(j); ri != rj {
				parent[rj] = ri
			}
		}
	}

	groups := make(map[int][]Skill)
	for i := range all {
		root := find(i)
		groups[root] = append(groups[root], all[i])
	}
	var out [][]Skill
	for _, g := range groups {
		if len(g) > 1 {
			out = append(out, g)
		}
	}
	return out
}

// toCluster picks the most recently updated skill as survivor.
func toCluster(group []Skill) Cluster {
	sort.Slice(group, func(i, j int) bool {
		if !group[i].UpdatedAt.Equal(group[j].UpdatedAt) {
			return group[i].UpdatedAt.After(group[j].UpdatedAt)
		}
		return group[i].Fingerprint < group[j].Fingerprint
	})
	c := Cluster{Survivor: member(group[0]), Size: len(group)}
	for _, sk := range group[1:] {
		c.Duplicates = append(c.Duplicates, member(sk))
	}
	return c
}

func member(sk Skill) ClusterMember {
	return ClusterMember{Fingerprint: sk.Fingerprint, Trigger: sk.Trigger, UpdatedAt: sk.UpdatedAt}
}

// Package dedupe groups duplicate videos (by perceptual hash or by
// normalized filename) and ranks each group to pick a keeper (spec
// §4.8, C8).
package dedupe

import (
	"math"
	"sort"

	"github.com/markperdomo/videosentinel/internal/config"
	"github.com/markperdomo/videosentinel/internal/phash"
	"github.com/markperdomo/videosentinel/internal/probe"
)

// durationOutlierToleranceSecs is the spec §4.8 filename-mode cross-check
// tolerance: a member whose duration differs from the group median by
// more than this is dropped from the group.
const durationOutlierToleranceSecs = 2.0

// Candidate is one file under consideration for duplicate grouping.
type Candidate struct {
	Path string
	Info *probe.MediaInfo
}

// Group is a set of candidates considered duplicates, with the
// highest-ranked member recorded as Keeper.
type Group struct {
	Members []Candidate
	Keeper  Candidate
}

// GroupPerceptual clusters candidates by perceptual-hash similarity
// (spec §4.8 Perceptual mode): greedy clustering, each not-yet-grouped
// candidate seeds a group that absorbs every other ungrouped candidate
// within cfg.DuplicateThreshold. Candidates missing from hashes (a prior
// HashFailed) are skipped. Groups of size 1 are discarded.
func GroupPerceptual(cfg *config.Config, candidates []Candidate, hashes map[string][]phash.FrameHash) []Group {
	grouped := make(map[string]bool, len(candidates))
	var groups []Group

	for _, c := range candidates {
		if grouped[c.Path] {
			continue
		}
		aHash, ok := hashes[c.Path]
		if !ok {
			continue
		}

		members := []Candidate{c}
		grouped[c.Path] = true

		for _, other := range candidates {
			if other.Path == c.Path || grouped[other.Path] {
				continue
			}
			bHash, ok := hashes[other.Path]
			if !ok {
				continue
			}
			if phash.Similarity(aHash, bHash) <= float64(cfg.DuplicateThreshold) {
				members = append(members, other)
				grouped[other.Path] = true
			}
		}

		if len(members) >= 2 {
			groups = append(groups, Group{Members: members, Keeper: rank(cfg, members)})
		}
	}
	return groups
}

// GroupByFilename buckets candidates by their normalized filename (spec
// §4.8 Filename mode), then cross-checks durations within each bucket and
// drops any member whose duration differs from the bucket's median by
// more than 2s. Buckets (after the duration cross-check) smaller than 2
// are discarded.
func GroupByFilename(cfg *config.Config, candidates []Candidate) []Group {
	buckets := make(map[string][]Candidate)
	for _, c := range candidates {
		key := NormalizeFilename(c.Path)
		buckets[key] = append(buckets[key], c)
	}

	var groups []Group
	for _, members := range buckets {
		if len(members) < 2 {
			continue
		}
		filtered := dropDurationOutliers(members)
		if len(filtered) < 2 {
			continue
		}
		groups = append(groups, Group{Members: filtered, Keeper: rank(cfg, filtered)})
	}
	return groups
}

func dropDurationOutliers(members []Candidate) []Candidate {
	durations := make([]float64, 0, len(members))
	for _, m := range members {
		durations = append(durations, m.Info.DurationSecs)
	}
	median := medianOf(durations)

	kept := make([]Candidate, 0, len(members))
	for _, m := range members {
		if math.Abs(m.Info.DurationSecs-median) <= durationOutlierToleranceSecs {
			kept = append(kept, m)
		}
	}
	return kept
}

func medianOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

package dedupe

import (
	"strings"

	"github.com/markperdomo/videosentinel/internal/config"
	"github.com/markperdomo/videosentinel/internal/policy"
	"github.com/markperdomo/videosentinel/internal/probe"
	"github.com/markperdomo/videosentinel/internal/util"
)

// codecModernity and codecEfficiency implement the spec §4.8 quality-
// ranking table, keyed by normalized (lower-case) codec name.
var codecModernity = map[string]int{
	"av1":   1000,
	"vp9":   900,
	"hevc":  800,
	"h264":  400,
	"mpeg4": 200,
	"xvid":  200,
	"mpeg2": 100,
	"wmv":   50,
}

var codecEfficiency = map[string]float64{
	"av1":   2.5,
	"hevc":  2.0,
	"vp9":   2.0,
	"h264":  1.0,
	"mpeg4": 0.6,
	"xvid":  0.6,
	"wmv":   0.5,
	"mpeg2": 0.4,
}

// Score computes the spec §4.8 quality-ranking score for a candidate: the
// suffix bonus, the preview-compatibility bonus, container/codec/
// resolution/bitrate contributions.
func Score(cfg *config.Config, path string, info *probe.MediaInfo) int {
	score := 0

	stem := strings.ToLower(util.GetFileStem(path))
	if strings.HasSuffix(stem, util.ReencodedSuffix) || strings.HasSuffix(stem, util.QuicklookSuffix) {
		score += config.SuffixBonus
	}

	// A compliant verdict means the file already passes preview
	// compatibility; the target codec passed here is irrelevant since
	// Classify never consults it for an already-compliant file.
	if policy.Classify(cfg, info, config.CodecHEVC).Kind == policy.Compliant {
		score += cfg.PreviewCompatibilityBonus
	}

	score += containerScore(info.Container)
	score += codecModernity[strings.ToLower(info.Codec)]
	score += int(info.Width) * int(info.Height) / 1000
	score += bitrateScore(info.Codec, info.BitrateBPS)

	return score
}

func containerScore(container string) int {
	switch strings.ToLower(container) {
	case "mp4", "m4v":
		return 300
	case "mkv", "webm":
		return 100
	default:
		return 0
	}
}

func bitrateScore(codec string, bitrateBPS uint64) int {
	mult, ok := codecEfficiency[strings.ToLower(codec)]
	if !ok {
		mult = 1.0
	}
	return int(float64(bitrateBPS) * mult / 10000)
}

// rank picks the highest-scoring member of a group, breaking ties by
// larger file size then lexicographically smaller path (spec §4.8).
func rank(cfg *config.Config, members []Candidate) Candidate {
	best := members[0]
	bestScore := Score(cfg, best.Path, best.Info)
	bestSize, _ := util.GetFileSize(best.Path)

	for _, c := range members[1:] {
		score := Score(cfg, c.Path, c.Info)
		size, _ := util.GetFileSize(c.Path)
		if betterCandidate(score, size, c.Path, bestScore, bestSize, best.Path) {
			best, bestScore, bestSize = c, score, size
		}
	}
	return best
}

func betterCandidate(scoreA int, sizeA uint64, pathA string, scoreB int, sizeB uint64, pathB string) bool {
	if scoreA != scoreB {
		return scoreA > scoreB
	}
	if sizeA != sizeB {
		return sizeA > sizeB
	}
	return pathA < pathB
}

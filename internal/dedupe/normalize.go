package dedupe

import (
	"regexp"
	"strings"

	"github.com/markperdomo/videosentinel/internal/util"
)

// knownSuffixes are trailing markers filename-mode grouping strips before
// comparing two stems (spec §4.8).
var knownSuffixes = []string{util.ReencodedSuffix, util.QuicklookSuffix, util.BackupSuffix, "_copy"}

// copyNumberPattern matches typical copy-numbering: " (1)", ".2".
var copyNumberPattern = regexp.MustCompile(`(\s\(\d+\)|\.\d+)$`)

// NormalizeFilename lower-cases path's stem and repeatedly strips any
// trailing known suffix or copy-numbering marker, in whatever order they
// appear, until none remain (spec §4.8: "strip trailing matches of
// _reencoded, _quicklook, _backup, and typical copy-numbering").
func NormalizeFilename(path string) string {
	stem := strings.ToLower(util.GetFileStem(path))

	for {
		changed := false

		if next := copyNumberPattern.ReplaceAllString(stem, ""); next != stem {
			stem = next
			changed = true
		}
		for _, suffix := range knownSuffixes {
			if strings.HasSuffix(stem, suffix) {
				stem = strings.TrimSuffix(stem, suffix)
				changed = true
			}
		}

		if !changed {
			break
		}
	}
	return stem
}

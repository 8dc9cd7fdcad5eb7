package dedupe

import (
	"os"
	"strings"

	"github.com/markperdomo/videosentinel/internal/util"
)

// Cleanup removes every non-keeper member of group, then, if the keeper's
// filename carries a _reencoded/_quicklook suffix and the un-suffixed
// name is free, renames it to that name (spec §4.8 Cleanup). Never
// overwrites an existing file.
func Cleanup(group Group) error {
	for _, m := range group.Members {
		if m.Path == group.Keeper.Path {
			continue
		}
		if err := os.Remove(m.Path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	stem := strings.ToLower(util.GetFileStem(group.Keeper.Path))
	if !strings.HasSuffix(stem, util.ReencodedSuffix) && !strings.HasSuffix(stem, util.QuicklookSuffix) {
		return nil
	}

	target := util.FinalPath(group.Keeper.Path)
	if util.FileExists(target) {
		return nil
	}
	return os.Rename(group.Keeper.Path, target)
}

package dedupe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/markperdomo/videosentinel/internal/config"
	"github.com/markperdomo/videosentinel/internal/phash"
	"github.com/markperdomo/videosentinel/internal/probe"
)

func testConfig() *config.Config {
	dir := os.TempDir()
	return config.NewConfig(dir, dir, dir)
}

func hashOf(bits ...bool) []phash.FrameHash {
	return []phash.FrameHash{phash.FrameHash(bits)}
}

func TestGroupPerceptual_ClustersWithinThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.DuplicateThreshold = 1

	a := Candidate{Path: "/a.mp4", Info: &probe.MediaInfo{}}
	b := Candidate{Path: "/b.mp4", Info: &probe.MediaInfo{}}
	c := Candidate{Path: "/c.mp4", Info: &probe.MediaInfo{}}

	hashes := map[string][]phash.FrameHash{
		"/a.mp4": hashOf(true, true, true, true),
		"/b.mp4": hashOf(true, true, true, false), // hamming 1 from a
		"/c.mp4": hashOf(false, false, false, false), // hamming 4 from a
	}

	groups := GroupPerceptual(cfg, []Candidate{a, b, c}, hashes)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if len(groups[0].Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(groups[0].Members))
	}
}

func TestGroupPerceptual_SkipsMissingHashAndSingletons(t *testing.T) {
	cfg := testConfig()
	a := Candidate{Path: "/a.mp4", Info: &probe.MediaInfo{}}
	b := Candidate{Path: "/b.mp4", Info: &probe.MediaInfo{}} // no hash: HashFailed

	hashes := map[string][]phash.FrameHash{
		"/a.mp4": hashOf(true, true),
	}

	groups := GroupPerceptual(cfg, []Candidate{a, b}, hashes)
	if len(groups) != 0 {
		t.Fatalf("expected no groups, got %d", len(groups))
	}
}

func TestGroupByFilename_NormalizesAndCrossChecksDuration(t *testing.T) {
	cfg := testConfig()
	a := Candidate{Path: "/x/movie.mp4", Info: &probe.MediaInfo{DurationSecs: 100}}
	b := Candidate{Path: "/x/movie_reencoded.mp4", Info: &probe.MediaInfo{DurationSecs: 100.5}}
	outlier := Candidate{Path: "/x/movie (2).mp4", Info: &probe.MediaInfo{DurationSecs: 9000}}

	groups := GroupByFilename(cfg, []Candidate{a, b, outlier})
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if len(groups[0].Members) != 2 {
		t.Fatalf("expected outlier dropped, got %d members", len(groups[0].Members))
	}
}

func TestGroupByFilename_DiscardsWhenOutlierDropLeavesFewerThanTwo(t *testing.T) {
	cfg := testConfig()
	a := Candidate{Path: "/x/movie.mp4", Info: &probe.MediaInfo{DurationSecs: 100}}
	outlier := Candidate{Path: "/x/movie_copy.mp4", Info: &probe.MediaInfo{DurationSecs: 9000}}

	groups := GroupByFilename(cfg, []Candidate{a, outlier})
	if len(groups) != 0 {
		t.Fatalf("expected 0 groups after outlier drop, got %d", len(groups))
	}
}

func TestScore_SuffixBonusDominatesLowerBitrate(t *testing.T) {
	cfg := testConfig()
	reencoded := &probe.MediaInfo{Codec: "hevc", Container: "mp4", Width: 1920, Height: 1080, BitrateBPS: 2_000_000}
	original := &probe.MediaInfo{Codec: "h264", Container: "mp4", Width: 1920, Height: 1080, BitrateBPS: 20_000_000}

	reencodedScore := Score(cfg, "/movie_reencoded.mp4", reencoded)
	originalScore := Score(cfg, "/movie.mp4", original)

	if reencodedScore <= originalScore {
		t.Fatalf("expected reencoded suffix to dominate: reencoded=%d original=%d", reencodedScore, originalScore)
	}
}

func TestRank_PicksHigherScore(t *testing.T) {
	cfg := testConfig()
	dir := t.TempDir()

	lowPath := filepath.Join(dir, "b.mp4")
	highPath := filepath.Join(dir, "a.mp4")
	if err := os.WriteFile(lowPath, []byte("xx"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(highPath, []byte("xx"), 0o644); err != nil {
		t.Fatal(err)
	}

	low := Candidate{Path: lowPath, Info: &probe.MediaInfo{Codec: "h264", Container: "avi"}}
	high := Candidate{Path: highPath, Info: &probe.MediaInfo{Codec: "av1", Container: "mp4"}}

	keeper := rank(cfg, []Candidate{low, high})
	if keeper.Path != highPath {
		t.Fatalf("expected %s to win on score, got %s", highPath, keeper.Path)
	}
}

func TestBetterCandidate_TieBreaksOnSizeThenPath(t *testing.T) {
	if !betterCandidate(10, 200, "/z.mp4", 10, 100, "/a.mp4") {
		t.Error("expected larger size to win at equal score")
	}
	if !betterCandidate(10, 100, "/a.mp4", 10, 100, "/z.mp4") {
		t.Error("expected lexicographically smaller path to win at equal score and size")
	}
}

func TestNormalizeFilename_StripsSuffixesRegardlessOfOrder(t *testing.T) {
	cases := map[string]string{
		"/x/movie.mp4":                     "movie",
		"/x/Movie_reencoded.mp4":           "movie",
		"/x/movie_reencoded (1).mp4":       "movie",
		"/x/movie (1)_reencoded.mp4":       "movie",
		"/x/movie_quicklook.mov":           "movie",
		"/x/movie.2.mp4":                   "movie",
		"/x/movie_copy.mp4":                "movie",
		"/x/movie_backup.mkv":              "movie",
	}
	for path, want := range cases {
		if got := NormalizeFilename(path); got != want {
			t.Errorf("NormalizeFilename(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestCleanup_RemovesNonKeepersAndRenamesKeeper(t *testing.T) {
	dir := t.TempDir()
	keeperPath := filepath.Join(dir, "movie_reencoded.mp4")
	loserPath := filepath.Join(dir, "movie.mp4")

	if err := os.WriteFile(keeperPath, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(loserPath, []byte("lose"), 0o644); err != nil {
		t.Fatal(err)
	}

	group := Group{
		Members: []Candidate{{Path: keeperPath}, {Path: loserPath}},
		Keeper:  Candidate{Path: keeperPath},
	}

	if err := Cleanup(group); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	if _, err := os.Stat(loserPath); !os.IsNotExist(err) {
		t.Error("expected non-keeper to be removed")
	}

	finalPath := filepath.Join(dir, "movie.mp4")
	if _, err := os.Stat(finalPath); err != nil {
		t.Errorf("expected keeper renamed to %s: %v", finalPath, err)
	}
	if _, err := os.Stat(keeperPath); !os.IsNotExist(err) {
		t.Error("expected suffixed keeper path to no longer exist after rename")
	}
}

func TestCleanup_NeverOverwritesExistingFinalName(t *testing.T) {
	dir := t.TempDir()
	keeperPath := filepath.Join(dir, "movie_reencoded.mp4")
	finalPath := filepath.Join(dir, "movie.mp4")

	if err := os.WriteFile(keeperPath, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(finalPath, []byte("existing"), 0o644); err != nil {
		t.Fatal(err)
	}

	group := Group{
		Members: []Candidate{{Path: keeperPath}},
		Keeper:  Candidate{Path: keeperPath},
	}

	if err := Cleanup(group); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	data, err := os.ReadFile(finalPath)
	if err != nil {
		t.Fatalf("expected existing final path untouched: %v", err)
	}
	if string(data) != "existing" {
		t.Error("expected Cleanup not to overwrite an existing final path")
	}
	if _, err := os.Stat(keeperPath); err != nil {
		t.Error("expected suffixed keeper to remain in place when final path is taken")
	}
}

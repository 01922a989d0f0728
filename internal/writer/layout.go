package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	runDirFormat   = "20060102_150405"
	hourFileFormat = "2006010215"
	infoFileName   = "info.json"
	tweetsDirName  = "tweets"
	mediaDirName   = "media"
)

// Layout is the per-run output directory tree.
type Layout struct {
	Root      string
	RunDir    string
	TweetsDir string
	MediaDir  string
	InfoFile  string
}

// NewLayout places the run directory under root, named by the startup time.
func NewLayout(root string, startedAt time.Time) Layout {
	run := filepath.Join(root, startedAt.Format(runDirFormat))
	return Layout{
		Root:      root,
		RunDir:    run,
		TweetsDir: filepath.Join(run, tweetsDirName),
		MediaDir:  filepath.Join(run, mediaDirName),
		InfoFile:  filepath.Join(run, infoFileName),
	}
}

// Create makes the run directory. Failing here means no output can be
// produced, so callers treat the error as fatal.
func (l Layout) Create() error {
	if err := os.MkdirAll(l.RunDir, 0o755); err != nil {
		return fmt.Errorf("create run dir %s: %w", l.RunDir, err)
	}
	return nil
}

// HourFile returns the output file for the wall-clock hour containing t.
func (l Layout) HourFile(t time.Time) string {
	return filepath.Join(l.TweetsDir, HourFileName(t))
}

// HourFileName names the hour file for t, e.g. stream-2024031514.json.
func HourFileName(t time.Time) string {
	return "stream-" + t.Format(hourFileFormat) + ".json"
}

// RunName is the base name of the run directory.
func (l Layout) RunName() string {
	return filepath.Base(l.RunDir)
}

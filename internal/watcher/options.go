package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

// DefaultSettleDelay is how long a file must stay unchanged before it is reported.
const DefaultSettleDelay = 500 * time.Millisecond

// Options configures the file watcher behavior.
type Options struct {
	// Suffix limits events to file names ending in it. Empty means all files.
	Suffix         string
	IgnorePatterns []string
	SettleDelay    time.Duration
	IgnoreHidden   bool
}

// setDefaults applies default values to unset options.
func (o *Options) setDefaults() {
	if o.SettleDelay == 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	if o.IgnorePatterns == nil {
		o.IgnorePatterns = []string{"*.tmp", "*.part", "*.swp", "*~"}
		o.IgnoreHidden = true
	}
}

// shouldIgnore reports whether path is hidden, matches an ignore pattern or
// lacks the wanted suffix. Directories are only checked for visibility.
func (o *Options) shouldIgnore(path string, dir bool) bool {
	base := filepath.Base(path)
	if o.IgnoreHidden && strings.HasPrefix(base, ".") && base != "." && base != ".." {
		return true
	}
	if dir {
		return false
	}
	for _, pattern := range o.IgnorePatterns {
		if matched, err := filepath.Match(pattern, base); err == nil && matched {
			return true
		}
	}
	return o.Suffix != "" && !strings.HasSuffix(base, o.Suffix)
}

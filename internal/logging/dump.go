package logging

import (
	"context"
	"log/slog"

	"github.com/davecgh/go-spew/spew"
)

// DumpConfig writes a full recursive dump of cfg at debug level, used at
// startup under --verbose so every effective field (including values
// defaulted rather than set explicitly) is visible without reprinting the
// config struct's fields by hand.
func DumpConfig(log *slog.Logger, label string, cfg any) {
	if !log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	log.Debug(label, "dump", spew.Sdump(cfg))
}

// Package flags holds the CLI flags shared by appctl commands and the
// logger setup built from them.
package flags

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/selfhostd/appctl/common"
)

var ConfigFlag = &cli.StringFlag{
	Name:  "config",
	Value: "",
	Usage: "path to the appctl TOML config (default: $APPCTL_CONFIG, then /etc/appctl/appctl.toml)",
}

var SkipStartFlag = &cli.BoolFlag{
	Name:  "skip-start",
	Value: false,
	Usage: "do not start the app afterwards",
}

var SkipStopFlag = &cli.BoolFlag{
	Name:  "skip-stop",
	Value: false,
	Usage: "do not stop the app first",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}

var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}

var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: "appctl",
	Usage: "add 'service' tag to logs",
}

// LogFlags is appended to every command's flag set.
var LogFlags = []cli.Flag{LogJsonFlag, LogDebugFlag, LogUidFlag, LogServiceFlag}

// SetupLogger builds the process logger from the CLI context.
func SetupLogger(cCtx *cli.Context) *slog.Logger {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool(LogDebugFlag.Name),
		JSON:    cCtx.Bool(LogJsonFlag.Name),
		Service: cCtx.String(LogServiceFlag.Name),
		Version: common.Version,
	})

	if cCtx.Bool(LogUidFlag.Name) {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

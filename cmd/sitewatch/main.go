package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"log/slog"
)

const envVarPrefix = "SITEWATCH"

var (
	rootfs       = flag.NewFlagSet("root", flag.ExitOnError)
	logLevelFlag = rootfs.String("loglevel", "INFO", "log level (DEBUG|INFO|WARN|ERROR|OFF)")
)

func main() {
	ctx := context.Background()

	runcmd := &ffcli.Command{
		Name:       "run",
		ShortUsage: "sitewatch <flags> run <run flags>",
		ShortHelp:  "execute a single monitoring pass over the configured sites",
		LongHelp: `The run subcommand loads the site list, diffs every site against the
persisted snapshot, sends a notification when anything changed and persists
the new snapshot. It is meant to be triggered by an external scheduler such
as cron; the exit code is 0 for a completed run (even with per-site fetch
failures) and non-zero only for fatal conditions.`,
		FlagSet: runfs,
		Exec:    newRunFunc(),
		Options: []ff.Option{ff.WithEnvVarPrefix(envVarPrefix)},
	}

	rootcmd := ffcli.Command{
		Name:        "sitewatch",
		ShortUsage:  "sitewatch <flags> cmd <cmd_flags>",
		ShortHelp:   "sitewatch is a tool for detecting changes on competitor websites",
		FlagSet:     rootfs,
		Subcommands: []*ffcli.Command{runcmd},
		Options:     []ff.Option{ff.WithEnvVarPrefix(envVarPrefix)},
	}

	if err := rootcmd.ParseAndRun(ctx, os.Args[1:]); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	os.Exit(0)
}

func createLogger(levelStr string) (*slog.Logger, error) {
	var lvl slog.Level

	switch levelStr {
	case slog.LevelDebug.String():
		lvl = slog.LevelDebug
	case slog.LevelInfo.String():
		lvl = slog.LevelInfo
	case slog.LevelWarn.String():
		lvl = slog.LevelWarn
	case slog.LevelError.String():
		lvl = slog.LevelError
	case "OFF":
		lvl = slog.Level(99)
	default:
		return nil, fmt.Errorf("log level %s not supported", *logLevelFlag)
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})), nil
}

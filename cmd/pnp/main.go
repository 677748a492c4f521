package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/gwillem/pickplace/internal/log"
)

type Options struct {
	LogLevel string `long:"log-level" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`
	LogFile  string `long:"log-file" description:"Write logs to this file instead of stderr"`

	Setup SetupCommand `command:"setup" description:"Find the servo bus and calibrate every joint"`
	Run   RunCommand   `command:"run" alias:"operate" description:"Operator control from the keyboard"`
	GoTo  GoToCommand  `command:"goto" description:"Move all joints to fixed targets and exit"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

// logOutput is where logs go; commands with a full-screen TUI discard them
// unless --log-file is set.
func logOutput(tui bool) (io.Writer, func(), error) {
	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return f, func() { f.Close() }, nil
	}
	if tui {
		return io.Discard, func() {}, nil
	}
	return os.Stderr, func() {}, nil
}

func main() {
	parser.LongDescription = "pnp - pick-and-place mechanism control (elevator, elbow, wrist, intake)"

	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		_, tui := cmd.(*RunCommand)
		w, closeLog, err := logOutput(tui)
		if err != nil {
			return err
		}
		defer closeLog()
		log.Init(opts.LogLevel, w)
		return cmd.Execute(args)
	}

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

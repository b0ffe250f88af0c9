package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mensylisir/xmspawn/common"
	"github.com/mensylisir/xmspawn/config"
	"github.com/mensylisir/xmspawn/file"
	"github.com/mensylisir/xmspawn/logger"
	"github.com/mensylisir/xmspawn/spawn"
	xmtime "github.com/mensylisir/xmspawn/time"
)

var (
	flagLogLevel string
	flagVerbose  bool
	flagLogDir   string

	flagTimeout    time.Duration
	flagMaxBuffer  int64
	flagKillSignal string
	flagCwd        string
	flagEnv        []string
	flagInput      string
	flagInputFile  string
	flagDetached   bool

	flagStdoutFile string
	flagStderrFile string
)

func main() {
	root := &cobra.Command{
		Use:           common.AppName,
		Short:         "Synchronous child-process runner with captured output",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(flagLogLevel)
			if err != nil {
				return errors.Wrapf(err, "invalid log level '%s'", flagLogLevel)
			}
			return logger.InitGlobalLogger(flagLogDir, flagVerbose, level)
		},
	}
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose (debug) logging")
	root.PersistentFlags().StringVar(&flagLogDir, "log-dir", "", "Directory for rotated log files (default: console)")

	root.AddCommand(newRunCmd(), newJobCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", common.AppName, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] -- <file> [args...]",
		Short: "Run one command and print its captured output",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRun,
	}
	cmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "Kill the child after this duration (0 disables)")
	cmd.Flags().Int64Var(&flagMaxBuffer, "max-buffer", 0, "Cap total captured output bytes (0 is unbounded)")
	cmd.Flags().StringVar(&flagKillSignal, "kill-signal", "SIGTERM", "Signal delivered on timeout or overflow")
	cmd.Flags().StringVar(&flagCwd, "cwd", "", "Working directory for the child")
	cmd.Flags().StringArrayVarP(&flagEnv, "env", "e", nil, "Extra KEY=VALUE environment entries (repeatable)")
	cmd.Flags().StringVar(&flagInput, "input", "", "Bytes written to the child's stdin")
	cmd.Flags().StringVar(&flagInputFile, "input-file", "", "File whose contents are written to the child's stdin")
	cmd.Flags().BoolVar(&flagDetached, "detached", false, "Start the child in its own session")
	cmd.Flags().StringVar(&flagStdoutFile, "stdout-file", "", "Write captured stdout to this file")
	cmd.Flags().StringVar(&flagStderrFile, "stderr-file", "", "Write captured stderr to this file")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	sig := spawn.SignalNum(flagKillSignal)
	if sig == 0 {
		return errors.Errorf("unknown kill signal '%s'", flagKillSignal)
	}

	input := []byte(flagInput)
	if flagInputFile != "" {
		if flagInput != "" {
			return errors.New("--input and --input-file are mutually exclusive")
		}
		var err error
		input, err = file.ReadFile(flagInputFile)
		if err != nil {
			return err
		}
	}

	path := args[0]
	if !strings.ContainsRune(path, '/') {
		resolved, err := exec.LookPath(path)
		if err != nil {
			return errors.Wrapf(err, "executable '%s' not found in PATH", path)
		}
		path = resolved
	}

	killSignal := int64(sig)
	opts := &spawn.Options{
		File:     path,
		Args:     args,
		CWD:      flagCwd,
		Detached: flagDetached,
		Stdio: []spawn.StdioOption{
			{Type: spawn.StdioPipe, Readable: true, Input: input},
			{Type: spawn.StdioPipe, Writable: true},
			{Type: spawn.StdioPipe, Writable: true},
		},
		Timeout:    flagTimeout.Milliseconds(),
		MaxBuffer:  flagMaxBuffer,
		KillSignal: &killSignal,
	}
	if len(flagEnv) > 0 {
		opts.Env = append(os.Environ(), flagEnv...)
	}

	return execute(opts, strings.Join(args, " "))
}

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job <job.yaml>",
		Short: "Run the command described by a SpawnJob document",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
	cmd.Flags().StringVar(&flagStdoutFile, "stdout-file", "", "Write captured stdout to this file")
	cmd.Flags().StringVar(&flagStderrFile, "stderr-file", "", "Write captured stderr to this file")
	return cmd
}

func runJob(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(args[0]).Load()
	if err != nil {
		return err
	}

	opts, err := cfg.ToOptions()
	if err != nil {
		return err
	}
	if !strings.ContainsRune(opts.File, '/') {
		resolved, err := exec.LookPath(opts.File)
		if err != nil {
			return errors.Wrapf(err, "executable '%s' not found in PATH", opts.File)
		}
		opts.File = resolved
		opts.Args[0] = resolved
	}

	log := logger.Log.WithField(common.LogFieldJob, cfg.Metadata.Name)
	log.Infof("running job from %s", args[0])
	return execute(opts, cfg.Metadata.Name)
}

// execute runs the core, reports the outcome and mirrors the child's
// exit status.
func execute(opts *spawn.Options, what string) error {
	log := logger.Log.WithField(common.LogFieldApp, common.AppName)

	started := time.Now()
	res := spawn.Run(opts)
	elapsed := xmtime.ShortDur(time.Since(started))

	if !res.Started() {
		return errors.Wrapf(res.Err(), "failed to run %s", what)
	}

	if res.Err() != nil {
		log.Warnf("%s finished with error %v in %s", what, res.Err(), elapsed)
	} else {
		log.Infof("%s finished with status %d in %s", what, res.Status, elapsed)
	}

	if err := writeArtifact(flagStdoutFile, res.Stdout()); err != nil {
		return err
	}
	if err := writeArtifact(flagStderrFile, res.Stderr()); err != nil {
		return err
	}
	if flagStdoutFile == "" {
		os.Stdout.Write(res.Stdout())
	}
	if flagStderrFile == "" {
		os.Stderr.Write(res.Stderr())
	}

	if res.Signal != "" {
		log.Warnf("child terminated by %s", res.Signal)
		os.Exit(1)
	}
	if res.Status != 0 {
		os.Exit(int(res.Status))
	}
	return nil
}

func writeArtifact(path string, data []byte) error {
	if path == "" || data == nil {
		return nil
	}
	return file.WriteFile(path, data, common.FileMode0644)
}

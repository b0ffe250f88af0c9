// Package runner is the ergonomic front end of the spawn core: PATH
// resolution, the standard three-pipe stdio plan, run ids and logging.
package runner

import (
	"os/exec"
	"strings"
	stdtime "time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mensylisir/xmspawn/cache"
	"github.com/mensylisir/xmspawn/common"
	"github.com/mensylisir/xmspawn/logger"
	"github.com/mensylisir/xmspawn/spawn"
	"github.com/mensylisir/xmspawn/time"
)

// lookupTTL bounds how long a resolved executable path is trusted.
const lookupTTL = 5 * stdtime.Minute

// CommandRunner implements Runner on top of the spawn core.
type CommandRunner struct {
	// Timeout kills the child after the given wall time; zero disables.
	Timeout stdtime.Duration
	// MaxBuffer caps total captured bytes across stdout and stderr;
	// zero is unbounded.
	MaxBuffer int64
	// KillSignal is the signal number for timeout/overflow kills; zero
	// uses the core default (SIGTERM).
	KillSignal int64
	// Cwd is the child's working directory; empty inherits.
	Cwd string
	// Env replaces the child environment when non-nil.
	Env []string

	Log *logrus.Entry

	lookups *cache.Cache[string, string]
}

// NewCommandRunner creates a runner logging through the global logger.
func NewCommandRunner() *CommandRunner {
	return &CommandRunner{
		Log:     logger.Log.WithField(common.LogFieldApp, common.AppName),
		lookups: cache.NewCache(cache.WithDefaultTTL[string, string](lookupTTL)),
	}
}

// Run executes argv, feeding input to stdin and capturing stdout and
// stderr.
func (r *CommandRunner) Run(argv []string, input []byte) (*Output, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty argv")
	}

	path, err := r.lookPath(argv[0])
	if err != nil {
		return nil, err
	}

	opts := &spawn.Options{
		File: path,
		Args: argv,
		CWD:  r.Cwd,
		Env:  r.Env,
		Stdio: []spawn.StdioOption{
			{Type: spawn.StdioPipe, Readable: true, Input: input},
			{Type: spawn.StdioPipe, Writable: true},
			{Type: spawn.StdioPipe, Writable: true},
		},
		Timeout:   r.Timeout.Milliseconds(),
		MaxBuffer: r.MaxBuffer,
	}
	if r.KillSignal != 0 {
		sig := r.KillSignal
		opts.KillSignal = &sig
	}

	runID := uuid.New().String()
	log := r.Log.WithFields(logrus.Fields{
		common.LogFieldRunID: runID,
		common.LogFieldFile:  path,
	})
	log.Debugf("spawning: %s", strings.Join(argv, " "))

	started := stdtime.Now()
	res := spawn.Run(opts)
	elapsed := stdtime.Since(started)

	if !res.Started() {
		log.Errorf("spawn failed after %s: %v", time.ShortDur(elapsed), res.Err())
		return nil, errors.Wrapf(res.Err(), "failed to spawn %s", path)
	}

	out := &Output{
		RunID:    runID,
		Status:   res.Status,
		Signal:   res.Signal,
		Stdout:   res.Stdout(),
		Stderr:   res.Stderr(),
		Duration: elapsed,
	}
	log.Debugf("child exited status=%d signal=%q in %s", out.Status, out.Signal, time.ShortDur(elapsed))
	if res.Err() != nil {
		log.Warnf("run completed with error: %v", res.Err())
	}
	return out, nil
}

// lookPath resolves name through PATH, memoizing hits. Names containing
// a separator bypass the search, like the OS exec convention.
func (r *CommandRunner) lookPath(name string) (string, error) {
	if strings.ContainsRune(name, '/') {
		return name, nil
	}
	if r.lookups != nil {
		if path, ok := r.lookups.Get(name); ok {
			return path, nil
		}
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", errors.Wrapf(err, "executable '%s' not found in PATH", name)
	}
	if r.lookups != nil {
		r.lookups.Set(name, path)
	}
	return path, nil
}

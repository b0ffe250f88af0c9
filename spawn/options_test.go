package spawn

import (
	"math"
	"syscall"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mensylisir/xmspawn/loop"
)

func newParseRunner() *runner {
	return &runner{
		clock:      clockwork.NewRealClock(),
		killSignal: syscall.SIGTERM,
		exitStatus: -1,
		termSignal: -1,
		loop:       loop.New(clockwork.NewRealClock()),
	}
}

func validOptions() *Options {
	return &Options{
		File:  "/bin/true",
		Args:  []string{"true"},
		Stdio: []StdioOption{{Type: StdioIgnore}},
	}
}

func int64Ptr(v int64) *int64 { return &v }

func TestParseOptionsValid(t *testing.T) {
	r := newParseRunner()
	opts := validOptions()
	opts.Timeout = 1500
	opts.MaxBuffer = 4096
	opts.KillSignal = int64Ptr(int64(syscall.SIGKILL))
	opts.CWD = "/tmp"
	opts.Env = []string{"A=1"}

	code := r.parseOptions(opts)
	require.Equal(t, Errno(0), code)
	assert.Equal(t, "/bin/true", r.file)
	assert.Equal(t, []string{"true"}, r.args)
	assert.Equal(t, "/tmp", r.cwd)
	assert.Equal(t, []string{"A=1"}, r.env)
	assert.Equal(t, 1500*time.Millisecond, r.timeout)
	assert.Equal(t, uint32(4096), r.maxBuffer)
	assert.Equal(t, syscall.SIGKILL, r.killSignal)
	assert.Equal(t, 1, r.stdioCount)
}

func TestParseOptionsRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Options)
	}{
		{"zero-value record", func(o *Options) { *o = Options{} }},
		{"empty file", func(o *Options) { o.File = "" }},
		{"empty args", func(o *Options) { o.Args = nil }},
		{"negative timeout", func(o *Options) { o.Timeout = -1 }},
		{"negative maxBuffer", func(o *Options) { o.MaxBuffer = -1 }},
		{"oversized maxBuffer", func(o *Options) { o.MaxBuffer = math.MaxUint32 + 1 }},
		{"zero killSignal", func(o *Options) { o.KillSignal = int64Ptr(0) }},
		{"oversized killSignal", func(o *Options) { o.KillSignal = int64Ptr(math.MaxInt32 + 1) }},
		{"negative uid", func(o *Options) { o.UID = int64Ptr(-2) }},
		{"oversized uid", func(o *Options) { o.UID = int64Ptr(math.MaxUint32 + 1) }},
		{"oversized gid", func(o *Options) { o.GID = int64Ptr(math.MaxUint32 + 1) }},
		{"nil stdio", func(o *Options) { o.Stdio = nil }},
		{"bad stdio type", func(o *Options) { o.Stdio = []StdioOption{{Type: StdioType(42)}} }},
		{"negative inherit fd", func(o *Options) { o.Stdio = []StdioOption{{Type: StdioInherit, FD: -1}} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := validOptions()
			tc.mutate(opts)
			r := newParseRunner()
			assert.Equal(t, EINVAL, r.parseOptions(opts), "expected EINVAL")
		})
	}
}

func TestParseOptionsDefaultsKillSignalToSIGTERM(t *testing.T) {
	r := newParseRunner()
	require.Equal(t, Errno(0), r.parseOptions(validOptions()))
	assert.Equal(t, syscall.SIGTERM, r.killSignal)
}

func TestParseOptionsDeepCopies(t *testing.T) {
	r := newParseRunner()
	input := []byte("abc")
	args := []string{"cat"}
	opts := &Options{
		File: "/bin/cat",
		Args: args,
		Stdio: []StdioOption{
			{Type: StdioPipe, Readable: true, Input: input},
		},
	}
	require.Equal(t, Errno(0), r.parseOptions(opts))

	// Mutating caller storage must not reach the runner's copies.
	input[0] = 'X'
	args[0] = "mutated"
	assert.Equal(t, []byte("abc"), r.pipes[0].input)
	assert.Equal(t, []string{"cat"}, r.args)

	// The pipe handle was created; release it so no fd leaks.
	r.pipes[0].close()
	r.loop.Run()
}

func TestParseOptionsInputIgnoredOnNonReadablePipe(t *testing.T) {
	r := newParseRunner()
	opts := &Options{
		File: "/bin/cat",
		Args: []string{"cat"},
		Stdio: []StdioOption{
			{Type: StdioPipe, Writable: true, Input: []byte("dropped")},
		},
	}
	require.Equal(t, Errno(0), r.parseOptions(opts))
	assert.Nil(t, r.pipes[0].input)
	r.pipes[0].close()
	r.loop.Run()
}

func TestRunRejectsInvalidOptionsWithoutSpawning(t *testing.T) {
	sig := int64(0)
	res := Run(&Options{
		File:       "/bin/true",
		Args:       []string{"true"},
		Stdio:      []StdioOption{{Type: StdioIgnore}},
		KillSignal: &sig,
	})
	assert.Equal(t, EINVAL, res.Error)
	assert.Equal(t, int64(-1), res.Status)
	assert.False(t, res.Started())
	assert.Nil(t, res.Output)
	assert.Empty(t, res.Signal)
}

func TestRangeChecks(t *testing.T) {
	assert.True(t, fitsUint32(0))
	assert.True(t, fitsUint32(math.MaxUint32))
	assert.False(t, fitsUint32(math.MaxUint32+1))
	assert.False(t, fitsUint32(-1))

	assert.True(t, fitsInt32(math.MinInt32))
	assert.True(t, fitsInt32(math.MaxInt32))
	assert.False(t, fitsInt32(math.MaxInt32+1))
	assert.False(t, fitsInt32(math.MinInt32-1))
}

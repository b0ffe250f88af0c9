package spawn

import (
	"os"
	"syscall"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrnoNaming(t *testing.T) {
	assert.Equal(t, "ETIMEDOUT", ETIMEDOUT.Name())
	assert.Equal(t, "EINVAL", EINVAL.Name())
	assert.Contains(t, EINVAL.Error(), "EINVAL")
	assert.Contains(t, EINVAL.Error(), "invalid argument")
}

func TestErrnoFromError(t *testing.T) {
	assert.Equal(t, Errno(0), errnoFromError(nil))
	assert.Equal(t, ENOENT, errnoFromError(syscall.ENOENT))
	assert.Equal(t, ENOENT, errnoFromError(&os.PathError{Op: "fork/exec", Path: "/x", Err: syscall.ENOENT}))
	assert.Equal(t, ESRCH, errnoFromError(os.ErrProcessDone))
	assert.Equal(t, EIO, errnoFromError(errors.New("opaque failure")))
}

func TestSignalNames(t *testing.T) {
	assert.Equal(t, "SIGTERM", SignalName(int(syscall.SIGTERM)))
	assert.Equal(t, "SIGKILL", SignalName(int(syscall.SIGKILL)))
	assert.Equal(t, int(syscall.SIGKILL), SignalNum("SIGKILL"))
	assert.Equal(t, 0, SignalNum("SIGBOGUS"))
}

func TestErrorSlotsAreWriteOnce(t *testing.T) {
	r := &runner{}
	r.setError(ETIMEDOUT)
	r.setError(EINVAL)
	assert.Equal(t, ETIMEDOUT, r.err)

	r.setPipeError(EPIPE)
	r.setPipeError(ECANCELED)
	assert.Equal(t, EPIPE, r.pipeErr)

	// Primary wins over secondary.
	assert.Equal(t, ETIMEDOUT, r.getError())

	r2 := &runner{}
	r2.setPipeError(EPIPE)
	assert.Equal(t, EPIPE, r2.getError())
}

//go:build linux

package gadget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// pipeTransport builds a Transport whose ep0 is the read end of a pipe,
// so tests can feed it events or leave it silent.
func pipeTransport(t *testing.T) (*Transport, int) {
	t.Helper()

	p := make([]int, 2)
	require.NoError(t, unix.Pipe(p))
	require.NoError(t, unix.SetNonblock(p[0], true))

	stopFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	require.NoError(t, err)

	tr := &Transport{
		ep0:    p[0],
		stopFd: stopFd,
		notify: make(chan struct{}, 1),
	}
	tr.wg.Add(1)
	go tr.eventLoop()
	return tr, p[1]
}

func TestCloseStopsIdleEventLoop(t *testing.T) {
	tr, w := pipeTransport(t)
	defer unix.Close(w)

	// No event ever arrives; Close must still return.
	done := make(chan error, 1)
	go func() { done <- tr.Close() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not stop the event loop")
	}
}

func TestEventLoopAttachDetach(t *testing.T) {
	tr, w := pipeTransport(t)
	defer tr.Close()
	defer unix.Close(w)

	var ev [eventSize]byte
	ev[8] = eventEnable
	_, err := unix.Write(w, ev[:])
	require.NoError(t, err)
	require.Eventually(t, tr.HostAttached, time.Second, 5*time.Millisecond)

	ev[8] = eventDisable
	_, err = unix.Write(w, ev[:])
	require.NoError(t, err)
	require.Eventually(t, func() bool { return !tr.HostAttached() }, time.Second, 5*time.Millisecond)
}

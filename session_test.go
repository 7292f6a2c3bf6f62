package nxdt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commandFrames(frames [][]byte, cmd CommandType) int {
	n := 0
	for _, f := range frames {
		if got, _, err := unmarshalCommandHeader(f); err == nil && got == cmd {
			n++
		}
	}
	return n
}

func TestDetachTearsDownSession(t *testing.T) {
	c, tr := newTestClient(t)
	require.True(t, c.IsReady())

	sent := len(tr.in.postedFrames())
	tr.setAttached(false)

	require.Eventually(t, func() bool { return !c.IsReady() }, time.Second, 5*time.Millisecond)
	// The host is gone, so no EndSession frame is attempted.
	assert.Equal(t, sent, len(tr.in.postedFrames()))
}

func TestReattachRestartsSession(t *testing.T) {
	c, tr := newTestClient(t)

	tr.setAttached(false)
	require.Eventually(t, func() bool { return !c.IsReady() }, time.Second, 5*time.Millisecond)

	tr.queueStatus(StatusSuccess)
	tr.setAttached(true)
	require.Eventually(t, c.IsReady, time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, commandFrames(tr.in.postedFrames(), CmdStartSession))
}

func TestTransferTimeoutRestartsSession(t *testing.T) {
	c, tr := newTestClient(t)

	tr.queueStatus(StatusSuccess)
	require.NoError(t, c.SendFileProperties(10, "a.bin"))

	// Stall exactly one write; later writes (EndSession, the new
	// handshake) complete normally.
	stalled := false
	tr.in.setHandler(func(e *testEndpoint, buf []byte) {
		if !stalled {
			stalled = true
			return
		}
		e.complete(Result{N: len(buf)})
	})
	tr.queueStatus(StatusSuccess) // reply for the re-handshake

	err := c.SendFileData([]byte{1, 2, 3})
	require.Error(t, err)
	assert.Equal(t, uint64(0), c.remainingOwed())
	assert.GreaterOrEqual(t, tr.in.cancelCount(), 1, "stalled transfer must be cancelled")

	// The cancelled transfer raised the internal reset signal: the
	// supervisor ends the broken session and establishes a new one.
	require.Eventually(t, c.IsReady, 2*time.Second, 5*time.Millisecond)

	frames := tr.in.postedFrames()
	assert.Equal(t, 2, commandFrames(frames, CmdStartSession))
	assert.Equal(t, 1, commandFrames(frames, CmdEndSession))
}

func TestCloseSendsEndSession(t *testing.T) {
	c, tr := newTestClient(t)
	require.NoError(t, c.Close())

	frames := tr.in.postedFrames()
	require.NotEmpty(t, frames)

	last := frames[len(frames)-1]
	require.Len(t, last, cmdHeaderSize)
	cmd, blockSize, err := unmarshalCommandHeader(last)
	require.NoError(t, err)
	assert.Equal(t, CmdEndSession, cmd)
	assert.Equal(t, uint32(0), blockSize)

	assert.False(t, c.IsReady())
}

func TestShutdownDuringHandshake(t *testing.T) {
	tr := newTestTransport()
	// The companion program never answers: the handshake write stays
	// pending forever.
	tr.in.setHandler(func(e *testEndpoint, buf []byte) {})

	c, err := New(tr, WithBufferSize(testBufferSize), WithLogger(quietLogger()))
	require.NoError(t, err)

	tr.setAttached(true)
	require.Eventually(t, func() bool {
		return len(tr.in.postedFrames()) > 0
	}, time.Second, 5*time.Millisecond, "handshake never attempted")

	done := make(chan error, 1)
	go func() { done <- c.Close() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not interrupt the blocked handshake")
	}

	// The session never reached active: no EndSession on the wire.
	assert.Zero(t, commandFrames(tr.in.postedFrames(), CmdEndSession))
	assert.False(t, c.IsReady())
	assert.GreaterOrEqual(t, tr.in.cancelCount(), 1)
}

func TestCloseIdempotent(t *testing.T) {
	c, _ := newTestClient(t)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

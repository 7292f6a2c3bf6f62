package nxdt

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotReady is returned when no host is attached or no session
	// has been established.
	ErrNotReady = errors.New("nxdt: no active session")

	// ErrTransferInProgress is returned by SendFileProperties while a
	// previous file still has bytes owed.
	ErrTransferInProgress = errors.New("nxdt: file transfer already in progress")

	// ErrNoTransfer is returned by SendFileData when no file transfer
	// is in progress.
	ErrNoTransfer = errors.New("nxdt: no file transfer in progress")
)

// Client is the device-side engine for one NXDT link. It owns the
// transfer buffer, the session state and the background supervisor that
// reacts to host attach/detach. All methods are safe for concurrent
// use; session state is memory-only and rebuilt on every connection.
type Client struct {
	t   Transport
	log logrus.FieldLogger

	appVersion [3]uint8
	timeout    time.Duration

	buf *transferBuffer

	// mu is the process-wide device lock: it serialises the
	// foreground operations against the supervisor's state
	// transitions and guards the fields below. Lock order is mu
	// first, then inMu/outMu.
	mu             sync.RWMutex
	inMu, outMu    sync.Mutex
	hostAvailable  bool
	sessionStarted bool
	remaining      uint64 // bytes still owed for the in-flight file
	closing        bool   // a blocking wait observed the shutdown signal

	exitC  chan struct{} // closed by Close
	resetC chan struct{} // internal timeout/reset signal
	done   chan struct{} // supervisor exited

	closeOnce sync.Once
}

// An Option configures a Client.
type Option func(*Client) error

// WithBufferSize sets the transfer buffer size, which is also the upper
// bound on a single file-data chunk. The size must hold at least one
// full command frame.
func WithBufferSize(size int) Option {
	return func(c *Client) error {
		if size < cmdHeaderSize+filePropertiesBlockSize {
			return errors.Errorf("nxdt: buffer size %d smaller than a command frame", size)
		}
		c.buf = newTransferBuffer(size)
		return nil
	}
}

// WithAppVersion sets the application version triple announced in the
// StartSession handshake.
func WithAppVersion(major, minor, micro uint8) Option {
	return func(c *Client) error {
		c.appVersion = [3]uint8{major, minor, micro}
		return nil
	}
}

// WithLogger replaces the default logrus standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) error {
		if log == nil {
			return errors.New("nxdt: nil logger")
		}
		c.log = log
		return nil
	}
}

// WithTimeout sets the per-transfer timeout used once a session has
// been established.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return errors.New("nxdt: non-positive timeout")
		}
		c.timeout = d
		return nil
	}
}

// New allocates the transfer buffer and starts the session supervisor.
// The supervisor establishes a session as soon as the transport reports
// an attached host; use IsReady to observe it.
func New(t Transport, opts ...Option) (*Client, error) {
	if t == nil {
		return nil, errors.New("nxdt: nil transport")
	}
	c := &Client{
		t:       t,
		log:     logrus.StandardLogger(),
		timeout: defaultTimeout,
		exitC:   make(chan struct{}),
		resetC:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.buf == nil {
		c.buf = newTransferBuffer(DefaultBufferSize)
	}
	go c.supervise()
	return c, nil
}

// Close signals shutdown, waits for the supervisor to finish (sending a
// best-effort EndSession if a session was active) and closes the
// transport.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.exitC)
	})
	<-c.done
	return c.t.Close()
}

// IsReady reports whether a host is attached and a session has been
// established.
func (c *Client) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hostAvailable && c.sessionStarted
}

// prepareHeader writes a fresh command header into the head of the
// transfer buffer. Unknown commands are a caller error and leave the
// buffer untouched.
func (c *Client) prepareHeader(cmd CommandType, blockSize uint32) {
	if cmd > CmdEndSession {
		return
	}
	marshalCommandHeader(c.buf.head(), cmd, blockSize)
}

// sendCommand writes the frame occupying the first size bytes of the
// transfer buffer, reads back a status block and returns the resulting
// status. It has no side effects on session state; callers decide what
// a given status means.
func (c *Client) sendCommand(size int) Status {
	cmd, _, _ := unmarshalCommandHeader(c.buf.bytes()[:cmdHeaderSize])

	if size < cmdHeaderSize || size > len(c.buf.bytes()) {
		c.log.Errorf("invalid %s command size %d", cmd, size)
		return StatusInvalidCommandSize
	}

	if err := c.write(c.buf.bytes()[:size]); err != nil {
		// Stay quiet when the failure is just shutdown racing a
		// not-yet-established session.
		if c.sessionStarted || !c.closing {
			c.log.WithError(err).Errorf("failed to write %d byte block for %s command", size, cmd)
		}
		return StatusWriteCommandFailed
	}

	if err := c.read(c.buf.bytes()[:statusBlockSize]); err != nil {
		if c.sessionStarted || !c.closing {
			c.log.WithError(err).Errorf("failed to read status block for %s command", cmd)
		}
		return StatusReadStatusFailed
	}

	status, err := unmarshalStatusBlock(c.buf.bytes()[:statusBlockSize])
	if err != nil {
		c.log.Errorf("invalid status block magic word for %s command", cmd)
		return StatusInvalidMagicWord
	}
	return status
}

// logStatus logs the human-readable classification of a non-Success
// status. Success and the local failure codes carry no extra detail.
func (c *Client) logStatus(status Status) {
	if status == StatusSuccess || status.local() {
		return
	}
	c.log.Error(status.detail())
}

// SendFileProperties declares an upcoming file transfer of the given
// size. On success the engine owes the host exactly size bytes of file
// data, to be supplied through SendFileData.
func (c *Client) SendFileProperties(size uint64, filename string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hostAvailable || !c.sessionStarted {
		return ErrNotReady
	}
	if c.remaining > 0 {
		return ErrTransferInProgress
	}
	if filename == "" || len(filename) >= maxPathLength {
		return errors.Errorf("nxdt: invalid filename length %d", len(filename))
	}

	c.prepareHeader(CmdSendFileProperties, filePropertiesBlockSize)
	marshalFilePropertiesBlock(c.buf.bytes()[:cmdHeaderSize], size, filename)

	if status := c.sendCommand(cmdHeaderSize + filePropertiesBlockSize); status != StatusSuccess {
		c.logStatus(status)
		return &StatusError{Cmd: CmdSendFileProperties, Status: status}
	}

	c.remaining = size
	return nil
}

// SendFileData transmits one chunk of the in-flight file. When the
// chunk settles the last owed byte, the host's final status block is
// drained and the transfer only succeeds if it reports Success. Any
// transport or status failure aborts the logical transfer: the byte
// budget is reset and a new SendFileProperties call is required.
func (c *Client) SendFileData(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hostAvailable || !c.sessionStarted {
		return ErrNotReady
	}
	if c.remaining == 0 {
		return ErrNoTransfer
	}
	// Chunk validation failures reject the call before any transport
	// traffic and leave the byte budget untouched.
	if len(p) == 0 || len(p) > len(c.buf.bytes()) {
		return errors.Errorf("nxdt: invalid chunk size %d", len(p))
	}
	if uint64(len(p)) > c.remaining {
		return errors.Errorf("nxdt: chunk size %d exceeds remaining %d bytes", len(p), c.remaining)
	}

	if err := c.sendFileData(p); err != nil {
		c.remaining = 0
		return err
	}
	return nil
}

func (c *Client) sendFileData(p []byte) error {
	// Zero-copy for buffers that already satisfy the transport
	// alignment.
	buf := p
	if !isAligned(p) {
		buf = c.buf.bytes()[:len(p)]
		copy(buf, p)
	}

	// The byte budget moves with the write itself, under both the
	// device and direction locks.
	c.inMu.Lock()
	err := c.transfer(c.t.In(), buf)
	if err == nil {
		c.remaining -= uint64(len(p))
	}
	c.inMu.Unlock()
	if err != nil {
		c.log.WithError(err).Errorf("failed to write %d byte file data chunk", len(p))
		return errors.Wrap(err, "write file data")
	}

	if c.remaining > 0 {
		return nil
	}

	// Last chunk: the host detects end-of-file from the declared file
	// size alone and replies with a final status block.
	if err := c.read(c.buf.bytes()[:statusBlockSize]); err != nil {
		c.log.WithError(err).Error("failed to read final status block")
		return errors.Wrap(err, "read final status")
	}
	status, err := unmarshalStatusBlock(c.buf.bytes()[:statusBlockSize])
	if err != nil {
		c.log.Error("invalid final status block magic word")
		return err
	}
	if status != StatusSuccess {
		c.logStatus(status)
		return &StatusError{Cmd: CmdSendFileProperties, Status: status}
	}
	return nil
}

package nxdt

// Session supervisor: a background goroutine multiplexing three
// signals. A transport state change drives attach/detach handling, the
// internal reset signal tears down a session whose link stalled, and
// the shutdown signal terminates the loop. The supervisor is the sole
// writer of the host-available and session-started flags; every other
// path only reads them under the device lock.
func (c *Client) supervise() {
	defer close(c.done)

	// Handle a host that is already attached when the engine starts;
	// afterwards the loop is purely signal-driven.
	poke := make(chan struct{}, 1)
	poke <- struct{}{}

	for {
		select {
		case <-c.exitC:
			c.shutdown()
			return
		case <-poke:
		case <-c.t.Notify():
		case <-c.resetC:
		}

		c.mu.Lock()

		attached := c.t.HostAttached()

		// Tell the host the session ended, best-effort, while the
		// flags still mark it active so the write uses bounded
		// waits.
		if c.sessionStarted && attached {
			c.endSession()
		}

		c.hostAvailable = attached
		c.sessionStarted = false
		c.remaining = 0

		// A reset raised by the teardown write above refers to the
		// session just discarded.
		select {
		case <-c.resetC:
		default:
		}

		if !c.hostAvailable {
			c.mu.Unlock()
			continue
		}

		// Establish a session. This blocks this goroutine, and any
		// caller contending on the device lock, until the host's
		// companion program answers, the host detaches, or shutdown
		// is requested.
		c.sessionStarted = c.startSession() == nil
		interrupted := !c.sessionStarted && c.closing
		c.mu.Unlock()

		if interrupted {
			c.shutdown()
			return
		}
	}
}

// shutdown runs the terminal transition: EndSession if a session was
// active, then all session state is cleared for good.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hostAvailable && c.sessionStarted {
		c.endSession()
	}
	c.hostAvailable = false
	c.sessionStarted = false
	c.remaining = 0
	c.closing = false
}

// startSession performs the StartSession handshake, announcing the
// application version triple and the protocol ABI version.
func (c *Client) startSession() error {
	c.prepareHeader(CmdStartSession, startSessionBlockSize)
	marshalStartSessionBlock(c.buf.bytes()[:cmdHeaderSize],
		c.appVersion[0], c.appVersion[1], c.appVersion[2], ProtocolABIVersion)

	if status := c.sendCommand(cmdHeaderSize + startSessionBlockSize); status != StatusSuccess {
		c.logStatus(status)
		return &StatusError{Cmd: CmdStartSession, Status: status}
	}

	c.log.Debugf("session established (app %d.%d.%d, ABI %d)",
		c.appVersion[0], c.appVersion[1], c.appVersion[2], ProtocolABIVersion)
	return nil
}

// endSession sends a zero-block-size EndSession frame and ignores the
// reply; the connection may already be gone. Failures are logged only,
// never escalated.
func (c *Client) endSession() {
	c.prepareHeader(CmdEndSession, 0)
	if err := c.write(c.buf.bytes()[:cmdHeaderSize]); err != nil && !c.closing {
		c.log.WithError(err).Warn("failed to send EndSession command")
	}
}

package nxdt

import (
	"time"

	"github.com/pkg/errors"
)

// Transfer layer: serialises raw endpoint traffic under the direction
// locks and implements the wait/cancel discipline shared by every
// exchange. Lock order is always device lock first (held by the
// caller), then the relevant direction lock.

var errShutdown = errors.New("nxdt: engine shutting down")

// write sends buf to the host over the inbound (device-to-host)
// endpoint.
func (c *Client) write(buf []byte) error {
	c.inMu.Lock()
	defer c.inMu.Unlock()
	return c.transfer(c.t.In(), buf)
}

// read fills buf from the host over the outbound (host-to-device)
// endpoint.
func (c *Client) read(buf []byte) error {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	return c.transfer(c.t.Out(), buf)
}

// transfer posts buf on the endpoint and waits for completion.
//
// Inside an established session the wait is bounded by the configured
// timeout so a stalled link is detected quickly. While a session is not
// yet established only a shutdown request interrupts the wait, to
// accommodate a human starting the host program long after the device
// is ready.
//
// A timed-out or interrupted wait cancels the transfer and then waits,
// unbounded, for the cancellation's own completion: the endpoint must
// never be reused while a prior operation might still complete. A
// cancellation inside an active session raises the internal reset
// signal so the supervisor tears the session down and starts over.
func (c *Client) transfer(ep Endpoint, buf []byte) error {
	if len(buf) == 0 {
		return errors.New("nxdt: empty transfer")
	}
	if !isAligned(buf) {
		return errors.New("nxdt: transfer buffer not aligned")
	}
	if !c.t.HostAttached() {
		return errors.New("nxdt: host unavailable")
	}

	if err := ep.Post(buf); err != nil {
		return errors.Wrap(err, "post transfer")
	}

	var (
		res         Result
		timedOut    bool
		interrupted bool
	)
	if c.sessionStarted {
		t := time.NewTimer(c.timeout)
		select {
		case res = <-ep.Completion():
			t.Stop()
		case <-t.C:
			timedOut = true
		}
	} else {
		select {
		case res = <-ep.Completion():
		case <-c.exitC:
			interrupted = true
			c.closing = true
		}
	}

	if timedOut || interrupted {
		ep.Cancel() //nolint:errcheck // nothing to do but drain
		<-ep.Completion()
		if c.sessionStarted {
			c.signalReset()
		}
		if interrupted {
			return errShutdown
		}
		c.log.Errorf("USB transfer timed out after %v", c.timeout)
		return errors.Errorf("transfer timed out after %v", c.timeout)
	}

	if res.Err != nil {
		return errors.Wrap(res.Err, "transfer failed")
	}
	if res.N != len(buf) {
		return errors.Errorf("short transfer: expected %d bytes, got %d", len(buf), res.N)
	}
	return nil
}

// signalReset raises the internal timeout/reset signal, forcing the
// supervisor to restart the session from scratch.
func (c *Client) signalReset() {
	select {
	case c.resetC <- struct{}{}:
	default:
	}
}

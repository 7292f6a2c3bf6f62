//go:build linux

package gadget

import (
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/nxdt/nxdt"
)

// ep0 event types, from the usb_functionfs_event kernel ABI.
const (
	eventBind = iota
	eventUnbind
	eventEnable
	eventDisable
	eventSetup
	eventSuspend
	eventResume
)

const eventSize = 12 // 8 byte setup union + type + 3 pad

// ErrCancelled completes a transfer that was cancelled before it
// finished.
var ErrCancelled = errors.New("gadget: transfer cancelled")

// endpoint is one bulk endpoint file. Posts are served by a dedicated
// goroutine so completion always arrives asynchronously; cancellation
// is delivered through an eventfd the transfer loop polls alongside
// the endpoint.
type endpoint struct {
	fd       int
	write    bool
	cancelFd int

	reqs chan []byte
	comp chan nxdt.Result
	wg   *sync.WaitGroup
}

func newEndpoint(path string, write bool, wg *sync.WaitGroup) (*endpoint, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "open endpoint %s", path)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "set %s non-blocking", path)
	}
	cancelFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "create cancel eventfd")
	}

	e := &endpoint{
		fd:       fd,
		write:    write,
		cancelFd: cancelFd,
		reqs:     make(chan []byte, 1),
		comp:     make(chan nxdt.Result, 1),
		wg:       wg,
	}
	wg.Add(1)
	go e.serve()
	return e, nil
}

func (e *endpoint) Post(buf []byte) error {
	select {
	case e.reqs <- buf:
		return nil
	default:
		return errors.New("gadget: endpoint busy")
	}
}

func (e *endpoint) Completion() <-chan nxdt.Result { return e.comp }

func (e *endpoint) Cancel() error {
	var one = [8]byte{1}
	_, err := unix.Write(e.cancelFd, one[:])
	return errors.Wrap(err, "signal cancel")
}

func (e *endpoint) close() {
	e.Cancel() //nolint:errcheck // unblock a transfer in flight
	close(e.reqs)
	unix.Close(e.fd)
	unix.Close(e.cancelFd)
}

func (e *endpoint) serve() {
	defer e.wg.Done()
	for buf := range e.reqs {
		e.comp <- e.transfer(buf)
	}
}

// drainCancel consumes any cancel raised after the previous transfer
// already completed, so it cannot leak into the next one.
func (e *endpoint) drainCancel() {
	var scratch [8]byte
	unix.Read(e.cancelFd, scratch[:]) //nolint:errcheck // EAGAIN means nothing pending
}

func (e *endpoint) transfer(buf []byte) nxdt.Result {
	e.drainCancel()

	done := 0
	for done < len(buf) {
		ready := int16(unix.POLLIN)
		if e.write {
			ready = unix.POLLOUT
		}
		fds := []unix.PollFd{
			{Fd: int32(e.fd), Events: ready},
			{Fd: int32(e.cancelFd), Events: unix.POLLIN},
		}
		if _, err := unix.Poll(fds, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return nxdt.Result{N: done, Err: errors.Wrap(err, "poll endpoint")}
		}
		if fds[1].Revents&unix.POLLIN != 0 {
			e.drainCancel()
			return nxdt.Result{N: done, Err: ErrCancelled}
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP) != 0 {
			return nxdt.Result{N: done, Err: errors.New("gadget: endpoint error")}
		}

		var (
			n   int
			err error
		)
		if e.write {
			n, err = unix.Write(e.fd, buf[done:])
		} else {
			n, err = unix.Read(e.fd, buf[done:])
		}
		switch {
		case err == unix.EAGAIN || err == unix.EINTR:
			continue
		case err != nil:
			return nxdt.Result{N: done, Err: errors.Wrap(err, "endpoint transfer")}
		case n == 0 && !e.write:
			// Zero-length packet; the engine never expects one
			// mid-transfer.
			return nxdt.Result{N: done, Err: errors.New("gadget: unexpected zero-length packet")}
		}
		done += n
	}
	return nxdt.Result{N: done}
}

// Transport is a FunctionFS-backed nxdt.Transport.
type Transport struct {
	ep0     int
	stopFd  int // eventfd waking the ep0 event loop on Close
	in, out *endpoint

	mu       sync.Mutex
	attached bool
	closed   bool

	notify chan struct{}
	wg     sync.WaitGroup
}

var _ nxdt.Transport = (*Transport)(nil)

// Open mounts the function at dir, which must be a mounted FunctionFS
// instance (e.g. /dev/usb-ffs/nxdt): it writes the descriptor and
// string blobs to ep0 and opens the two bulk endpoint files.
func Open(dir string, cfg Config) (*Transport, error) {
	ep0, err := unix.Open(filepath.Join(dir, "ep0"), unix.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrap(err, "open ep0")
	}

	if _, err := unix.Write(ep0, descriptorsBlob()); err != nil {
		unix.Close(ep0)
		return nil, errors.Wrap(err, "write descriptors")
	}
	if _, err := unix.Write(ep0, stringsBlob(cfg.interfaceName())); err != nil {
		unix.Close(ep0)
		return nil, errors.Wrap(err, "write strings")
	}
	if err := unix.SetNonblock(ep0, true); err != nil {
		unix.Close(ep0)
		return nil, errors.Wrap(err, "set ep0 non-blocking")
	}
	stopFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(ep0)
		return nil, errors.Wrap(err, "create stop eventfd")
	}

	t := &Transport{
		ep0:    ep0,
		stopFd: stopFd,
		notify: make(chan struct{}, 1),
	}

	// Endpoint files appear once the descriptors are accepted. IN
	// carries device-to-host data, OUT host-to-device.
	if t.in, err = newEndpoint(filepath.Join(dir, "ep1"), true, &t.wg); err != nil {
		t.Close()
		return nil, err
	}
	if t.out, err = newEndpoint(filepath.Join(dir, "ep2"), false, &t.wg); err != nil {
		t.Close()
		return nil, err
	}

	t.wg.Add(1)
	go t.eventLoop()
	return t, nil
}

func (t *Transport) In() nxdt.Endpoint  { return t.in }
func (t *Transport) Out() nxdt.Endpoint { return t.out }

func (t *Transport) Notify() <-chan struct{} { return t.notify }

func (t *Transport) HostAttached() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attached
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	// Wake the event loop; closing ep0 alone would not interrupt a
	// pending read.
	var one = [8]byte{1}
	unix.Write(t.stopFd, one[:]) //nolint:errcheck

	if t.in != nil {
		t.in.close()
	}
	if t.out != nil {
		t.out.close()
	}
	t.wg.Wait()
	unix.Close(t.ep0)
	unix.Close(t.stopFd)
	return nil
}

func (t *Transport) setAttached(v bool) {
	t.mu.Lock()
	changed := t.attached != v
	t.attached = v
	t.mu.Unlock()
	if changed {
		select {
		case t.notify <- struct{}{}:
		default:
		}
	}
}

// eventLoop turns ep0 events into attach/detach state. The function is
// "attached" for the engine's purposes only while enabled, which is the
// FunctionFS equivalent of the configured-and-running device state.
func (t *Transport) eventLoop() {
	defer t.wg.Done()

	var buf [eventSize]byte
	for {
		fds := []unix.PollFd{
			{Fd: int32(t.ep0), Events: unix.POLLIN},
			{Fd: int32(t.stopFd), Events: unix.POLLIN},
		}
		if _, err := unix.Poll(fds, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			t.setAttached(false)
			return
		}
		if fds[1].Revents&unix.POLLIN != 0 {
			t.setAttached(false)
			return
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP) != 0 {
			t.setAttached(false)
			return
		}

		n, err := unix.Read(t.ep0, buf[:])
		if err == unix.EAGAIN || err == unix.EINTR {
			continue
		}
		if err != nil || n < eventSize {
			// ep0 closed or gadget torn down.
			t.setAttached(false)
			return
		}

		switch buf[8] {
		case eventEnable, eventResume:
			t.setAttached(true)
		case eventDisable, eventSuspend, eventUnbind:
			t.setAttached(false)
		case eventSetup:
			t.handleSetup(buf[:8])
		}
	}
}

// handleSetup acknowledges control requests we have no use for: an
// empty read or write completes the status stage, depending on the
// request direction.
func (t *Transport) handleSetup(ctrl []byte) {
	const dirIn = 0x80
	if ctrl[0]&dirIn != 0 {
		unix.Write(t.ep0, nil) //nolint:errcheck
	} else {
		unix.Read(t.ep0, nil) //nolint:errcheck
	}
}

//go:build !linux

package gadget

import (
	"github.com/pkg/errors"

	"github.com/nxdt/nxdt"
)

// Transport is only functional on Linux, where FunctionFS exists.
type Transport struct{}

// Open fails on non-Linux platforms.
func Open(dir string, cfg Config) (*Transport, error) {
	return nil, errors.New("gadget: FunctionFS transport requires linux")
}

func (t *Transport) In() nxdt.Endpoint { return nil }

func (t *Transport) Out() nxdt.Endpoint { return nil }

func (t *Transport) HostAttached() bool { return false }

func (t *Transport) Notify() <-chan struct{} { return nil }

func (t *Transport) Close() error { return nil }

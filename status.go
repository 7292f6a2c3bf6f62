package nxdt

import "fmt"

// Status is the outcome of a command exchange. StatusSuccess and the
// host-reported values travel on the wire inside a status block; the
// three local values are produced on the device when the exchange
// itself could not complete, and are never sent by the host.
type Status uint32

const (
	StatusSuccess Status = iota

	// Local failures, raised before or instead of a host reply.
	StatusInvalidCommandSize
	StatusWriteCommandFailed
	StatusReadStatusFailed

	// Host-reported failures.
	StatusInvalidMagicWord
	StatusUnsupportedCommand
	StatusUnsupportedABIVersion
	StatusMalformedCommand
	StatusHostIOError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusInvalidCommandSize:
		return "InvalidCommandSize"
	case StatusWriteCommandFailed:
		return "WriteCommandFailed"
	case StatusReadStatusFailed:
		return "ReadStatusFailed"
	case StatusInvalidMagicWord:
		return "InvalidMagicWord"
	case StatusUnsupportedCommand:
		return "UnsupportedCommand"
	case StatusUnsupportedABIVersion:
		return "UnsupportedAbiVersion"
	case StatusMalformedCommand:
		return "MalformedCommand"
	case StatusHostIOError:
		return "HostIoError"
	}
	return fmt.Sprintf("Unknown(%d)", uint32(s))
}

// detail is the human-readable classification logged for host-reported
// failures. Local failures carry no detail, the caller context already
// implies it.
func (s Status) detail() string {
	switch s {
	case StatusInvalidMagicWord:
		return "host replied with Invalid Magic Word status code"
	case StatusUnsupportedCommand:
		return "host replied with Unsupported Command status code"
	case StatusUnsupportedABIVersion:
		return "host replied with Unsupported ABI Version status code"
	case StatusMalformedCommand:
		return "host replied with Malformed Command status code"
	case StatusHostIOError:
		return "host replied with I/O Error status code"
	}
	return fmt.Sprintf("unknown status code %d", uint32(s))
}

// local reports whether s represents a device-local transport failure
// rather than a reply actually received from the host.
func (s Status) local() bool {
	return s >= StatusInvalidCommandSize && s <= StatusReadStatusFailed
}

// StatusError is returned when a command exchange completes with a
// status other than StatusSuccess.
type StatusError struct {
	Cmd    CommandType
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("nxdt: %s command failed: %s", e.Cmd, e.Status)
}

// Package nxdt implements the device side of the NXDT USB transfer
// protocol: a small framed command protocol layered on top of raw bulk
// transfers, used to push large files from a constrained device to a
// companion host program.
//
// The package drives connection detection, session lifecycle, command
// framing and chunked file-data transfer with flow control. The bulk
// endpoints themselves are abstracted behind the Transport interface;
// see the gadget subpackage for a Linux FunctionFS implementation.
package nxdt

import "time"

// headerMagic is the magic word carried by every command frame and
// status block ("NXDT").
const headerMagic = 0x4E584454

// ProtocolABIVersion is the protocol ABI version announced to the host
// during the StartSession handshake.
const ProtocolABIVersion = 1

// TransferAlignment is the alignment required of any buffer handed to
// the transport. Caller buffers that do not comply are copied into the
// engine's own aligned scratch buffer before transmission.
const TransferAlignment = 0x1000

// DefaultBufferSize is the default size of the transfer buffer, and the
// upper bound on a single file-data chunk.
const DefaultBufferSize = 8 << 20

// defaultTimeout bounds endpoint waits once a session has been
// established, so a stalled link is detected quickly.
const defaultTimeout = time.Second

// maxPathLength is the filename capacity of a SendFileProperties block,
// including the terminating NUL.
const maxPathLength = 0x301

// CommandType identifies an outbound command frame.
type CommandType uint32

const (
	CmdStartSession CommandType = iota
	CmdSendFileProperties
	CmdSendNSPHeader // reserved, there is no operation that sends it
	CmdEndSession
)

func (c CommandType) String() string {
	switch c {
	case CmdStartSession:
		return "StartSession"
	case CmdSendFileProperties:
		return "SendFileProperties"
	case CmdSendNSPHeader:
		return "SendNspHeader"
	case CmdEndSession:
		return "EndSession"
	}
	return "Unknown"
}

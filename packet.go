package nxdt

import (
	"github.com/pkg/errors"
)

// Wire layout. Frame words (magic, command, block size, status) are
// big-endian; fields inside command-specific blocks are little-endian.
const (
	cmdHeaderSize = 16

	// statusBlockSize is the fixed size of the only thing ever read
	// back from the host: [u32 magic][u32 status][8 reserved].
	statusBlockSize = 16

	startSessionBlockSize = 16

	// filePropertiesBlockSize: u64 file size, u32 filename length,
	// 4 reserved, NUL-padded filename, 15 reserved.
	filePropertiesBlockSize = 8 + 4 + 4 + maxPathLength + 15
)

var (
	errShortPacket  = errors.New("nxdt: packet too short")
	errInvalidMagic = errors.New("nxdt: invalid magic word")
)

func marshalUint32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func marshalUint32LE(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func marshalUint64LE(b []byte, v uint64) []byte {
	return marshalUint32LE(marshalUint32LE(b, uint32(v)), uint32(v>>32))
}

func unmarshalUint32(b []byte) (uint32, []byte) {
	v := uint32(b[3]) | uint32(b[2])<<8 | uint32(b[1])<<16 | uint32(b[0])<<24
	return v, b[4:]
}

func unmarshalUint32LE(b []byte) (uint32, []byte) {
	v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return v, b[4:]
}

func unmarshalUint64LE(b []byte) (uint64, []byte) {
	l, b := unmarshalUint32LE(b)
	h, b := unmarshalUint32LE(b)
	return uint64(h)<<32 | uint64(l), b
}

// marshalCommandHeader appends a command header to b.
func marshalCommandHeader(b []byte, cmd CommandType, blockSize uint32) []byte {
	b = marshalUint32(b, headerMagic)
	b = marshalUint32(b, uint32(cmd))
	b = marshalUint32(b, blockSize)
	return append(b, 0, 0, 0, 0)
}

// unmarshalCommandHeader decodes a command header, validating the magic
// word.
func unmarshalCommandHeader(b []byte) (cmd CommandType, blockSize uint32, err error) {
	if len(b) < cmdHeaderSize {
		return 0, 0, errShortPacket
	}
	magic, b := unmarshalUint32(b)
	if magic != headerMagic {
		return 0, 0, errInvalidMagic
	}
	c, b := unmarshalUint32(b)
	size, _ := unmarshalUint32(b)
	return CommandType(c), size, nil
}

func marshalStartSessionBlock(b []byte, major, minor, micro, abi uint8) []byte {
	b = append(b, major, minor, micro, abi)
	var reserved [12]byte
	return append(b, reserved[:]...)
}

func unmarshalStartSessionBlock(b []byte) (major, minor, micro, abi uint8, err error) {
	if len(b) < startSessionBlockSize {
		return 0, 0, 0, 0, errShortPacket
	}
	return b[0], b[1], b[2], b[3], nil
}

func marshalFilePropertiesBlock(b []byte, size uint64, name string) []byte {
	b = marshalUint64LE(b, size)
	b = marshalUint32LE(b, uint32(len(name)))
	b = append(b, 0, 0, 0, 0)
	var nameBuf [maxPathLength]byte
	copy(nameBuf[:], name)
	b = append(b, nameBuf[:]...)
	var reserved [15]byte
	return append(b, reserved[:]...)
}

func unmarshalFilePropertiesBlock(b []byte) (size uint64, name string, err error) {
	if len(b) < filePropertiesBlockSize {
		return 0, "", errShortPacket
	}
	size, b = unmarshalUint64LE(b)
	length, b := unmarshalUint32LE(b)
	b = b[4:] // reserved
	if length >= maxPathLength {
		return 0, "", errors.Errorf("nxdt: filename length %d out of range", length)
	}
	return size, string(b[:length]), nil
}

// marshalStatusBlock appends a status block to b. The device never
// sends one; this is the host-side half of the exchange, kept here so
// both directions of the wire format live together.
func marshalStatusBlock(b []byte, status Status) []byte {
	b = marshalUint32(b, headerMagic)
	b = marshalUint32(b, uint32(status))
	var reserved [8]byte
	return append(b, reserved[:]...)
}

// unmarshalStatusBlock decodes a status block, validating the magic
// word. A magic mismatch means the two sides have desynchronized.
func unmarshalStatusBlock(b []byte) (Status, error) {
	if len(b) < statusBlockSize {
		return 0, errShortPacket
	}
	magic, b := unmarshalUint32(b)
	if magic != headerMagic {
		return 0, errInvalidMagic
	}
	status, _ := unmarshalUint32(b)
	return Status(status), nil
}

package nxdt

import "unsafe"

// transferBuffer is the single pre-allocated scratch region used for
// all command frames and for any file-data chunk that is not already
// alignment-compliant. A command frame always occupies its head, with
// any data block appended immediately after. The buffer is never
// exposed outside the engine; the direction locks guarantee a single
// writer at any instant.
type transferBuffer struct {
	buf []byte
}

func newTransferBuffer(size int) *transferBuffer {
	return &transferBuffer{buf: AllocAligned(size)}
}

// bytes returns the full aligned region.
func (b *transferBuffer) bytes() []byte {
	return b.buf
}

// head returns the aligned region truncated to zero length, ready for
// the marshal helpers to append a frame into.
func (b *transferBuffer) head() []byte {
	return b.buf[:0]
}

// AllocAligned returns a buffer of the given size whose backing array
// satisfies TransferAlignment. Callers streaming file data through
// SendFileData can use it to stay on the zero-copy path.
func AllocAligned(size int) []byte {
	raw := make([]byte, size+TransferAlignment)
	off := 0
	if rem := int(uintptr(unsafe.Pointer(&raw[0])) & (TransferAlignment - 1)); rem != 0 {
		off = TransferAlignment - rem
	}
	return raw[off : off+size : off+size]
}

// isAligned reports whether the backing array of p satisfies
// TransferAlignment.
func isAligned(p []byte) bool {
	if len(p) == 0 {
		return false
	}
	return uintptr(unsafe.Pointer(&p[0]))&(TransferAlignment-1) == 0
}

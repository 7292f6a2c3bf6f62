// Package cert reads console certificate records: fixed-layout binary
// blobs holding a signature block, issuer and name strings, and a
// public key block. The package classifies records and resolves full
// certificate chains from a signature issuer string; it performs no
// cryptographic verification.
package cert

import (
	"bytes"

	"github.com/pkg/errors"
)

// SignatureType is the big-endian word leading every certificate
// record.
type SignatureType uint32

const (
	SigRsa4096Sha1    SignatureType = 0x10000
	SigRsa2048Sha1    SignatureType = 0x10001
	SigEcdsa240Sha1   SignatureType = 0x10002
	SigRsa4096Sha256  SignatureType = 0x10003
	SigRsa2048Sha256  SignatureType = 0x10004
	SigEcdsa240Sha256 SignatureType = 0x10005
)

func (s SignatureType) String() string {
	switch s {
	case SigRsa4096Sha1:
		return "RSA-4096 SHA-1"
	case SigRsa2048Sha1:
		return "RSA-2048 SHA-1"
	case SigEcdsa240Sha1:
		return "ECDSA-240 SHA-1"
	case SigRsa4096Sha256:
		return "RSA-4096 SHA-256"
	case SigRsa2048Sha256:
		return "RSA-2048 SHA-256"
	case SigEcdsa240Sha256:
		return "ECDSA-240 SHA-256"
	}
	return "Invalid"
}

// blockSize returns the total size of the signature block (type word,
// signature, padding), or 0 for an unknown type.
func (s SignatureType) blockSize() int {
	switch s {
	case SigRsa4096Sha1, SigRsa4096Sha256:
		return 0x240
	case SigRsa2048Sha1, SigRsa2048Sha256:
		return 0x140
	case SigEcdsa240Sha1, SigEcdsa240Sha256:
		return 0x80
	}
	return 0
}

// sigSize returns the size of the raw signature inside the block.
func (s SignatureType) sigSize() int {
	switch s {
	case SigRsa4096Sha1, SigRsa4096Sha256:
		return 0x200
	case SigRsa2048Sha1, SigRsa2048Sha256:
		return 0x100
	case SigEcdsa240Sha1, SigEcdsa240Sha256:
		return 0x3C
	}
	return 0
}

// PublicKeyType selects the public key block layout.
type PublicKeyType uint32

const (
	KeyRsa4096 PublicKeyType = iota
	KeyRsa2048
	KeyEcdsa240
)

func (k PublicKeyType) String() string {
	switch k {
	case KeyRsa4096:
		return "RSA-4096"
	case KeyRsa2048:
		return "RSA-2048"
	case KeyEcdsa240:
		return "ECDSA-240"
	}
	return "Invalid"
}

// blockSize returns the total size of the public key block (key
// material plus padding), or 0 for an unknown type.
func (k PublicKeyType) blockSize() int {
	switch k {
	case KeyRsa4096:
		return 0x238
	case KeyRsa2048:
		return 0x138
	case KeyEcdsa240:
		return 0x76
	}
	return 0
}

// keySize returns the size of the raw public key inside the block.
func (k PublicKeyType) keySize() int {
	switch k {
	case KeyRsa4096:
		return 0x200
	case KeyRsa2048:
		return 0x100
	case KeyEcdsa240:
		return 0x3C
	}
	return 0
}

// Record size bounds: the loose lower bound rejects obvious garbage
// before classification, the upper bound is the exact size of an
// RSA-4096 signed RSA-4096 certificate.
const (
	MinSize = 0x140
	MaxSize = 0x500
)

const (
	issuerLen = 0x40
	nameLen   = 0x40
)

// Certificate is one parsed certificate record. Raw aliases the input
// buffer.
type Certificate struct {
	Raw           []byte
	SignatureType SignatureType
	PublicKeyType PublicKeyType
	Issuer        string
	Name          string
	Signature     []byte
	PublicKey     []byte
}

func fixedString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func beUint32(b []byte) uint32 {
	return uint32(b[3]) | uint32(b[2])<<8 | uint32(b[1])<<16 | uint32(b[0])<<24
}

// Parse classifies and parses a raw certificate record. The declared
// signature and public key types must walk exactly to the end of the
// record; any mismatch means the blob is not a certificate.
func Parse(data []byte) (*Certificate, error) {
	if len(data) < MinSize || len(data) > MaxSize {
		return nil, errors.Errorf("cert: invalid record size %#x", len(data))
	}

	sigType := SignatureType(beUint32(data))
	sigBlock := sigType.blockSize()
	if sigBlock == 0 {
		return nil, errors.Errorf("cert: invalid signature type %#x", uint32(sigType))
	}
	if len(data) < sigBlock+issuerLen+4 {
		return nil, errors.Errorf("cert: record truncated after signature block")
	}

	offset := sigBlock
	issuer := fixedString(data[offset : offset+issuerLen])
	offset += issuerLen

	keyType := PublicKeyType(beUint32(data[offset:]))
	keyBlock := keyType.blockSize()
	if keyBlock == 0 {
		return nil, errors.Errorf("cert: invalid public key type %#x", uint32(keyType))
	}
	offset += 4

	if len(data) < offset+nameLen+4 {
		return nil, errors.Errorf("cert: record truncated before name")
	}
	name := fixedString(data[offset : offset+nameLen])
	offset += nameLen
	offset += 4 // certificate id / issuance date

	if offset+keyBlock != len(data) {
		return nil, errors.Errorf("cert: calculated end offset %#x does not match record size %#x",
			offset+keyBlock, len(data))
	}

	return &Certificate{
		Raw:           data,
		SignatureType: sigType,
		PublicKeyType: keyType,
		Issuer:        issuer,
		Name:          name,
		Signature:     data[4 : 4+sigType.sigSize()],
		PublicKey:     data[offset : offset+keyType.keySize()],
	}, nil
}

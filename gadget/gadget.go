// Package gadget implements the nxdt.Transport interface on top of
// Linux FunctionFS: it registers a vendor-specific interface with one
// bulk IN and one bulk OUT endpoint at full, high and super speed, and
// turns ep0 events into host attach/detach notifications.
//
// FunctionFS only covers the function half of a USB gadget; the gadget
// itself (device descriptor, vendor/product ids, configuration) is
// assembled through configfs before the function directory is mounted.
package gadget

// USB and FunctionFS wire constants. All blob fields are little-endian
// per the kernel ABI.
const (
	descriptorsMagicV2 = 3
	stringsMagic       = 2

	hasFSDesc = 1 << 0
	hasHSDesc = 1 << 1
	hasSSDesc = 1 << 2

	dtInterface   = 0x04
	dtEndpoint    = 0x05
	dtSSCompanion = 0x30

	classVendorSpec = 0xFF

	epAddrIn  = 0x81
	epAddrOut = 0x01

	transferTypeBulk = 0x02

	fsMaxPacket = 64
	hsMaxPacket = 512
	ssMaxPacket = 1024

	ssMaxBurst = 15

	langEnglishUS = 0x0409
)

// Config selects the function's presentation. The zero value is usable.
type Config struct {
	// InterfaceName is the interface string descriptor shown to the
	// host. Defaults to "NXDT".
	InterfaceName string
}

func (c Config) interfaceName() string {
	if c.InterfaceName == "" {
		return "NXDT"
	}
	return c.InterfaceName
}

func putUint16LE(b []byte, v uint16) []byte {
	return append(b, byte(v), byte(v>>8))
}

func putUint32LE(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func interfaceDesc() []byte {
	return []byte{
		9, dtInterface,
		0,               // bInterfaceNumber, renumbered by the kernel
		0,               // bAlternateSetting
		2,               // bNumEndpoints
		classVendorSpec, // bInterfaceClass
		classVendorSpec, // bInterfaceSubClass
		classVendorSpec, // bInterfaceProtocol
		1,               // iInterface
	}
}

func endpointDesc(addr byte, maxPacket uint16) []byte {
	b := []byte{7, dtEndpoint, addr, transferTypeBulk}
	b = putUint16LE(b, maxPacket)
	return append(b, 0) // bInterval
}

func ssCompanionDesc() []byte {
	b := []byte{6, dtSSCompanion, ssMaxBurst, 0}
	return putUint16LE(b, 0) // wBytesPerInterval
}

func speedDescs(maxPacket uint16, companion bool) []byte {
	var b []byte
	b = append(b, interfaceDesc()...)
	b = append(b, endpointDesc(epAddrIn, maxPacket)...)
	if companion {
		b = append(b, ssCompanionDesc()...)
	}
	b = append(b, endpointDesc(epAddrOut, maxPacket)...)
	if companion {
		b = append(b, ssCompanionDesc()...)
	}
	return b
}

// descriptorsBlob builds the FunctionFS descriptors v2 blob written to
// ep0 at setup.
func descriptorsBlob() []byte {
	fs := speedDescs(fsMaxPacket, false)
	hs := speedDescs(hsMaxPacket, false)
	ss := speedDescs(ssMaxPacket, true)

	var body []byte
	body = putUint32LE(body, 3) // fs descriptor count
	body = putUint32LE(body, 3) // hs descriptor count
	body = putUint32LE(body, 5) // ss descriptor count
	body = append(body, fs...)
	body = append(body, hs...)
	body = append(body, ss...)

	var b []byte
	b = putUint32LE(b, descriptorsMagicV2)
	b = putUint32LE(b, uint32(12+len(body)))
	b = putUint32LE(b, hasFSDesc|hasHSDesc|hasSSDesc)
	return append(b, body...)
}

// stringsBlob builds the FunctionFS strings blob: a single en-US table
// carrying the interface name.
func stringsBlob(name string) []byte {
	var body []byte
	body = putUint32LE(body, 1) // str_count
	body = putUint32LE(body, 1) // lang_count
	body = putUint16LE(body, langEnglishUS)
	body = append(body, name...)
	body = append(body, 0)

	var b []byte
	b = putUint32LE(b, stringsMagic)
	b = putUint32LE(b, uint32(8+len(body)))
	return append(b, body...)
}

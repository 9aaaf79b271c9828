package avdecc

import "fmt"

// MAC is an EUI-48 link-layer address.
type MAC [6]byte

func (m MAC) String() string {
	return fmt.Sprintf("%.2x:%.2x:%.2x:%.2x:%.2x:%.2x", m[0], m[1], m[2], m[3], m[4], m[5])
}

func (m MAC) IsZero() bool {
	return m == MAC{}
}

// ADPMulticast is the well-known destination for ADP and ACMP traffic
// (91:e0:f0:01:00:00).
var ADPMulticast = MAC{0x91, 0xe0, 0xf0, 0x01, 0x00, 0x00}

// EtherTypeAVTP is the AVTP EtherType carrying AVDECC traffic.
const EtherTypeAVTP = 0x22f0

// EUI64 is an EUI-64 value, used for entity ids, entity model ids and
// association ids.
type EUI64 uint64

func (e EUI64) String() string {
	return fmt.Sprintf("%.16x", uint64(e))
}

func (e EUI64) Bytes() [8]byte {
	var b [8]byte
	putU64(b[:], uint64(e))
	return b
}

func eui64FromBytes(b []byte) EUI64 {
	return EUI64(getU64(b))
}

// ControllerEntityID derives the controller-entity-id placed in every
// outgoing command from the interface's MAC address:
// upper 3 bytes of the MAC, 0xFFFE, then the lower 3 bytes of the MAC.
func ControllerEntityID(mac MAC) EUI64 {
	var b [8]byte
	copy(b[0:3], mac[0:3])
	b[3] = 0xff
	b[4] = 0xfe
	copy(b[5:8], mac[3:6])
	return eui64FromBytes(b[:])
}

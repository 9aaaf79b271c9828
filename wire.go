package avdecc

import "github.com/pkg/errors"

// Subtype identifies which of the three AVDECC protocols a frame carries.
type Subtype uint8

const (
	SubtypeADP  Subtype = 0xfa
	SubtypeAECP Subtype = 0xfb
	SubtypeACMP Subtype = 0xfc
)

func (s Subtype) String() string {
	switch s {
	case SubtypeADP:
		return "ADP"
	case SubtypeAECP:
		return "AECP"
	case SubtypeACMP:
		return "ACMP"
	default:
		return "Unknown"
	}
}

// Frame size bounds used by the codec and its callers.
const (
	EthernetHeaderLen = 14
	CommonHeaderLen   = 12
	ADPFrameLen       = 82
	ACMPFrameLen      = 70
	MaxAECPFrameLen   = 1500
)

// ErrFrameTooShort and ErrFrameMalformed are the two codec-parse error
// kinds; both are logged at DEBUG and the frame dropped, never fatal to
// the facade.
var (
	ErrFrameTooShort  = errors.New("avdecc: frame too short")
	ErrFrameMalformed = errors.New("avdecc: frame malformed")
	ErrUnknownSubtype = errors.New("avdecc: unknown subtype")
)

func putU16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}

func getU16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getU32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putU64(b []byte, v uint64) {
	putU32(b[0:4], uint32(v>>32))
	putU32(b[4:8], uint32(v))
}

func getU64(b []byte) uint64 {
	return uint64(getU32(b[0:4]))<<32 | uint64(getU32(b[4:8]))
}

// EthernetHeader is the 14-byte Ethernet II header every AVDECC frame
// begins with.
type EthernetHeader struct {
	Dest      MAC
	Source    MAC
	EtherType uint16
}

func putEthernetHeader(b []byte, h EthernetHeader) {
	copy(b[0:6], h.Dest[:])
	copy(b[6:12], h.Source[:])
	putU16(b[12:14], h.EtherType)
}

func parseEthernetHeader(b []byte) (EthernetHeader, error) {
	if len(b) < EthernetHeaderLen {
		return EthernetHeader{}, ErrFrameTooShort
	}
	var h EthernetHeader
	copy(h.Dest[:], b[0:6])
	copy(h.Source[:], b[6:12])
	h.EtherType = getU16(b[12:14])
	return h, nil
}

// CommonHeader is the 12-byte AVTP common control header following the
// Ethernet header: [cd|subtype][sv|version|message_type][status|cdl]
// [target/stream id, 8 bytes].
type CommonHeader struct {
	Subtype           Subtype
	Version           uint8
	MessageType       uint8
	Status            uint8 // 5 bits; reinterpreted as ADP valid_time by callers
	ControlDataLength uint16
	StreamOrTargetID  EUI64
}

func putCommonHeader(b []byte, h CommonHeader) {
	b[0] = 0x80 | (byte(h.Subtype) & 0x7f)
	b[1] = ((h.Version & 0x07) << 4) | (h.MessageType & 0x0f)
	cdl := h.ControlDataLength & 0x07ff
	statusAndLen := (uint16(h.Status&0x1f) << 11) | cdl
	putU16(b[2:4], statusAndLen)
	idb := h.StreamOrTargetID.Bytes()
	copy(b[4:12], idb[:])
}

func parseCommonHeader(b []byte) (CommonHeader, error) {
	if len(b) < CommonHeaderLen {
		return CommonHeader{}, ErrFrameTooShort
	}
	if b[0]&0x80 == 0 {
		return CommonHeader{}, ErrFrameMalformed
	}
	var h CommonHeader
	h.Subtype = Subtype(b[0] & 0x7f)
	h.Version = (b[1] >> 4) & 0x07
	h.MessageType = b[1] & 0x0f
	statusAndLen := getU16(b[2:4])
	h.Status = uint8(statusAndLen >> 11)
	h.ControlDataLength = statusAndLen & 0x07ff
	h.StreamOrTargetID = eui64FromBytes(b[4:12])
	return h, nil
}

// parseEthernetAndCommon implements the codec entry point
// parse_ethernet_and_common(frame) -> (subtype, message_type, status,
// control_data_length, stream_id_bytes).
func parseEthernetAndCommon(frame []byte) (eth EthernetHeader, common CommonHeader, payload []byte, err error) {
	eth, err = parseEthernetHeader(frame)
	if err != nil {
		return
	}
	if eth.EtherType != EtherTypeAVTP {
		err = ErrUnknownSubtype
		return
	}
	common, err = parseCommonHeader(frame[EthernetHeaderLen:])
	if err != nil {
		return
	}
	payload = frame[EthernetHeaderLen+CommonHeaderLen:]
	return
}

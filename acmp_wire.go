package avdecc

import "time"

// ACMP message types (IEEE 1722.1 table 8.1).
const (
	ACMPConnectTXCommand        uint8 = 0
	ACMPConnectTXResponse       uint8 = 1
	ACMPDisconnectTXCommand     uint8 = 2
	ACMPDisconnectTXResponse    uint8 = 3
	ACMPGetTXStateCommand       uint8 = 4
	ACMPGetTXStateResponse      uint8 = 5
	ACMPConnectRXCommand        uint8 = 6
	ACMPConnectRXResponse       uint8 = 7
	ACMPDisconnectRXCommand     uint8 = 8
	ACMPDisconnectRXResponse    uint8 = 9
	ACMPGetRXStateCommand       uint8 = 10
	ACMPGetRXStateResponse      uint8 = 11
	ACMPGetTXConnectionCommand  uint8 = 12
	ACMPGetTXConnectionResponse uint8 = 13
)

// ACMP status codes (subset of table 8.2).
const (
	ACMPStatusSuccess               uint8 = 0
	ACMPStatusListenerUnknownID     uint8 = 1
	ACMPStatusTalkerUnknownID       uint8 = 2
	ACMPStatusTalkerExclusive       uint8 = 6
	ACMPStatusListenerTalkerTimeout uint8 = 7
	ACMPStatusListenerExclusive     uint8 = 8
	ACMPStatusNotConnected          uint8 = 10
	ACMPStatusNoSuchConnection      uint8 = 11
	ACMPStatusNotSupported          uint8 = 31
)

// acmpCommandTimeout is the per-command-type timeout table, keyed by the
// *command* message type (the response shares the same timeout as its
// paired command).
var acmpCommandTimeout = map[uint8]time.Duration{
	ACMPConnectTXCommand:       2000 * time.Millisecond,
	ACMPDisconnectTXCommand:    200 * time.Millisecond,
	ACMPGetTXStateCommand:      200 * time.Millisecond,
	ACMPConnectRXCommand:       4500 * time.Millisecond,
	ACMPDisconnectRXCommand:    500 * time.Millisecond,
	ACMPGetRXStateCommand:      200 * time.Millisecond,
	ACMPGetTXConnectionCommand: 200 * time.Millisecond,
}

// ACMPTimeout looks up the IEEE 1722.1 per-command-type timeout for an
// ACMP command message type. The zero value means "unknown command type".
func ACMPTimeout(messageType uint8) (time.Duration, bool) {
	d, ok := acmpCommandTimeout[messageType]
	return d, ok
}

const acmpBodyLen = ACMPFrameLen - EthernetHeaderLen - CommonHeaderLen // 44

// ACMPFrame is the decoded body of an ACMPDU (connection
// management fields: talker/listener entity ids, unique ids, flags,...).
type ACMPFrame struct {
	ControllerEntityID EUI64
	TalkerEntityID     EUI64
	ListenerEntityID   EUI64
	TalkerUniqueID     uint16
	ListenerUniqueID   uint16
	StreamDestMAC      MAC
	ConnectionCount    uint16
	SequenceID         uint16
	Flags              uint16
	StreamVlanID       uint16
	Status             uint8
}

func buildACMP(messageType uint8, f ACMPFrame) []byte {
	frame := make([]byte, ACMPFrameLen)
	putEthernetHeader(frame, EthernetHeader{Dest: ADPMulticast, EtherType: EtherTypeAVTP})
	putCommonHeader(frame[EthernetHeaderLen:], CommonHeader{
		Subtype:           SubtypeACMP,
		MessageType:       messageType,
		Status:            f.Status,
		ControlDataLength: uint16(acmpBodyLen),
	})
	b := frame[EthernetHeaderLen+CommonHeaderLen:]
	cid := f.ControllerEntityID.Bytes()
	copy(b[0:8], cid[:])
	tid := f.TalkerEntityID.Bytes()
	copy(b[8:16], tid[:])
	lid := f.ListenerEntityID.Bytes()
	copy(b[16:24], lid[:])
	putU16(b[24:26], f.TalkerUniqueID)
	putU16(b[26:28], f.ListenerUniqueID)
	copy(b[28:34], f.StreamDestMAC[:])
	putU16(b[34:36], f.ConnectionCount)
	putU16(b[36:38], f.SequenceID)
	putU16(b[38:40], f.Flags)
	putU16(b[40:42], f.StreamVlanID)
	return frame
}

func parseACMP(common CommonHeader, body []byte) (ACMPFrame, error) {
	if len(body) < acmpBodyLen {
		return ACMPFrame{}, ErrFrameTooShort
	}
	f := ACMPFrame{
		ControllerEntityID: eui64FromBytes(body[0:8]),
		TalkerEntityID:     eui64FromBytes(body[8:16]),
		ListenerEntityID:   eui64FromBytes(body[16:24]),
		TalkerUniqueID:     getU16(body[24:26]),
		ListenerUniqueID:   getU16(body[26:28]),
		ConnectionCount:    getU16(body[34:36]),
		SequenceID:         getU16(body[36:38]),
		Flags:              getU16(body[38:40]),
		StreamVlanID:       getU16(body[40:42]),
		Status:             common.Status,
	}
	copy(f.StreamDestMAC[:], body[28:34])
	return f, nil
}

// BuildACMPCommand serialises an ACMP command frame.
func BuildACMPCommand(messageType uint8, f ACMPFrame) []byte {
	return buildACMP(messageType, f)
}

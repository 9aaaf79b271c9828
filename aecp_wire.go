package avdecc

// AECP message types.
const (
	AECPMessageAEMCommand            uint8 = 0
	AECPMessageAEMResponse           uint8 = 1
	AECPMessageAddressAccessCommand  uint8 = 2
	AECPMessageAddressAccessResponse uint8 = 3
)

// AEM command types (subset of IEEE 1722.1 Table 7.126).
const (
	CmdAcquireEntity         uint16 = 0x0000
	CmdLockEntity            uint16 = 0x0001
	CmdEntityAvailable       uint16 = 0x0002
	CmdControllerAvailable   uint16 = 0x0003
	CmdReadDescriptor        uint16 = 0x0004
	CmdWriteDescriptor       uint16 = 0x0005
	CmdSetConfiguration      uint16 = 0x0006
	CmdGetConfiguration      uint16 = 0x0007
	CmdSetStreamFormat       uint16 = 0x0008
	CmdGetStreamFormat       uint16 = 0x0009
	CmdSetStreamInfo         uint16 = 0x000e
	CmdGetStreamInfo         uint16 = 0x000f
	CmdSetName               uint16 = 0x0010
	CmdGetName               uint16 = 0x0011
	CmdSetSamplingRate       uint16 = 0x0014
	CmdGetSamplingRate       uint16 = 0x0015
	CmdSetClockSource        uint16 = 0x0016
	CmdGetClockSource        uint16 = 0x0017
	CmdSetControl            uint16 = 0x0018
	CmdGetControl            uint16 = 0x0019
	CmdStartStreaming        uint16 = 0x0022
	CmdStopStreaming         uint16 = 0x0023
	CmdRegisterUnsolicited   uint16 = 0x0024
	CmdDeregisterUnsolicited uint16 = 0x0025
	CmdGetAudioMap           uint16 = 0x002b
	CmdAddAudioMappings      uint16 = 0x002c
	CmdRemoveAudioMappings   uint16 = 0x002d
	CmdStartOperation        uint16 = 0x0030
	CmdAbortOperation        uint16 = 0x0031
	CmdOperationStatus       uint16 = 0x0032
)

// aemUnsolicitedBit is the top bit of the 16-bit command-type field; set on
// responses the entity sent without a matching command.
const aemUnsolicitedBit uint16 = 0x8000

// AEM status codes (subset of Table 7.127).
const (
	AEMStatusSuccess          uint8 = 0
	AEMStatusNotImplemented   uint8 = 1
	AEMStatusNoSuchDescriptor uint8 = 2
	AEMStatusEntityLocked     uint8 = 3
	AEMStatusEntityAcquired   uint8 = 4
	AEMStatusNotAuthenticated uint8 = 5
	AEMStatusBadArguments     uint8 = 9
)

const aecpFixedBodyLen = 10 // controller_entity_id(8) + sequence_id(2)... plus command_type below
const aecpHeaderLen = 8 + 2 + 2 // controller_entity_id + sequence_id + command_type

// AEMFrame is the decoded body of an AECP/AEM command or response. Payload
// carries the command-specific bytes opaquely except for the handful of
// commands the core needs driving fields from; the rest is carried
// through unparsed.
type AEMFrame struct {
	TargetEntityID     EUI64
	ControllerEntityID EUI64
	SequenceID         uint16
	CommandType        uint16 // top bit stripped; see Unsolicited
	Unsolicited        bool
	Status             uint8
	Payload            []byte
}

func buildAEM(messageType uint8, f AEMFrame) []byte {
	total := EthernetHeaderLen + CommonHeaderLen + aecpHeaderLen + len(f.Payload)
	frame := make([]byte, total)
	putEthernetHeader(frame, EthernetHeader{EtherType: EtherTypeAVTP})
	putCommonHeader(frame[EthernetHeaderLen:], CommonHeader{
		Subtype:           SubtypeAECP,
		MessageType:       messageType,
		Status:            f.Status,
		ControlDataLength: uint16(aecpHeaderLen + len(f.Payload)),
		StreamOrTargetID:  f.TargetEntityID,
	})
	b := frame[EthernetHeaderLen+CommonHeaderLen:]
	cid := f.ControllerEntityID.Bytes()
	copy(b[0:8], cid[:])
	putU16(b[8:10], f.SequenceID)
	ct := f.CommandType
	if f.Unsolicited {
		ct |= aemUnsolicitedBit
	}
	putU16(b[10:12], ct)
	copy(b[12:], f.Payload)
	return frame
}

func parseAEM(common CommonHeader, body []byte) (AEMFrame, error) {
	if len(body) < aecpHeaderLen {
		return AEMFrame{}, ErrFrameTooShort
	}
	ct := getU16(body[10:12])
	return AEMFrame{
		TargetEntityID:     common.StreamOrTargetID,
		ControllerEntityID: eui64FromBytes(body[0:8]),
		SequenceID:         getU16(body[8:10]),
		CommandType:        ct &^ aemUnsolicitedBit,
		Unsolicited:        ct&aemUnsolicitedBit != 0,
		Status:             common.Status,
		Payload:            body[12:],
	}, nil
}

// BuildAEMCommand serialises an AEM command frame ready for the wire.
func BuildAEMCommand(f AEMFrame) []byte {
	return buildAEM(AECPMessageAEMCommand, f)
}

// BuildAEMResponse serialises an AEM response frame, used by the facade's
// CONTROLLER_AVAILABLE echo path.
func BuildAEMResponse(f AEMFrame) []byte {
	return buildAEM(AECPMessageAEMResponse, f)
}

// ReadDescriptorPayload is the command-specific layout of READ_DESCRIPTOR,
// used both to build the command and to extract the driving
// (type, index) pair from its response (codec contract (a)).
type ReadDescriptorPayload struct {
	ConfigurationIndex uint16
	DescriptorType     DescriptorType
	DescriptorIndex    uint16
}

func BuildReadDescriptorPayload(p ReadDescriptorPayload) []byte {
	b := make([]byte, 8)
	putU16(b[0:2], p.ConfigurationIndex)
	putU16(b[4:6], uint16(p.DescriptorType))
	putU16(b[6:8], p.DescriptorIndex)
	return b
}

// ParseReadDescriptorResponse extracts the (type, index) pair and the raw
// descriptor payload from a READ_DESCRIPTOR response body.
func ParseReadDescriptorResponse(payload []byte) (hdr ReadDescriptorPayload, descriptorData []byte, err error) {
	if len(payload) < 8 {
		return ReadDescriptorPayload{}, nil, ErrFrameTooShort
	}
	hdr.ConfigurationIndex = getU16(payload[0:2])
	hdr.DescriptorType = DescriptorType(getU16(payload[4:6]))
	hdr.DescriptorIndex = getU16(payload[6:8])
	descriptorData = payload[8:]
	return
}

// AAFrame is the decoded body of an AECP Address-Access command/response:
// raw register/memory access, treated opaquely by the core beyond the
// header.
type AAFrame struct {
	TargetEntityID     EUI64
	ControllerEntityID EUI64
	SequenceID         uint16
	Status             uint8
	TLV                []byte
}

func buildAA(messageType uint8, f AAFrame) []byte {
	total := EthernetHeaderLen + CommonHeaderLen + 10 + len(f.TLV)
	frame := make([]byte, total)
	putEthernetHeader(frame, EthernetHeader{EtherType: EtherTypeAVTP})
	putCommonHeader(frame[EthernetHeaderLen:], CommonHeader{
		Subtype:           SubtypeAECP,
		MessageType:       messageType,
		Status:            f.Status,
		ControlDataLength: uint16(10 + len(f.TLV)),
		StreamOrTargetID:  f.TargetEntityID,
	})
	b := frame[EthernetHeaderLen+CommonHeaderLen:]
	cid := f.ControllerEntityID.Bytes()
	copy(b[0:8], cid[:])
	putU16(b[8:10], f.SequenceID)
	copy(b[10:], f.TLV)
	return frame
}

func parseAA(common CommonHeader, body []byte) (AAFrame, error) {
	if len(body) < 10 {
		return AAFrame{}, ErrFrameTooShort
	}
	return AAFrame{
		TargetEntityID:     common.StreamOrTargetID,
		ControllerEntityID: eui64FromBytes(body[0:8]),
		SequenceID:         getU16(body[8:10]),
		Status:             common.Status,
		TLV:                body[10:],
	}, nil
}

// BuildAACommand serialises an Address-Access command frame.
func BuildAACommand(f AAFrame) []byte {
	return buildAA(AECPMessageAddressAccessCommand, f)
}

// BuildAAResponse serialises an Address-Access response frame.
func BuildAAResponse(f AAFrame) []byte {
	return buildAA(AECPMessageAddressAccessResponse, f)
}

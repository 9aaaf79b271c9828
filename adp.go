package avdecc

// ADP message types.
const (
	ADPMessageEntityAvailable uint8 = 0
	ADPMessageEntityDeparting uint8 = 1
	ADPMessageEntityDiscover  uint8 = 2
)

// ADP capability bits (subset needed by the capability filters).
const (
	EntityCapEfuMode                 uint32 = 1 << 0
	EntityCapAddressAccessSupport    uint32 = 1 << 1
	EntityCapGatewayEntity           uint32 = 1 << 2
	EntityCapAemSupported            uint32 = 1 << 3
	EntityCapLegacyAvc               uint32 = 1 << 4
	EntityCapAssociationIDSupport    uint32 = 1 << 5
	EntityCapVendorUniqueSupport     uint32 = 1 << 6
	EntityCapClassASupported         uint32 = 1 << 7
	EntityCapClassBSupported         uint32 = 1 << 8
	EntityCapGptpSupported           uint32 = 1 << 9
	EntityCapAemAuthSupported        uint32 = 1 << 10
	EntityCapEntityNotReady          uint32 = 1 << 14
	EntityCapGeneralControllerIgnore uint32 = 1 << 15
)

// Advertisement holds the body of an ADPDU, the most recent advertisement
// payload received from an entity.
type Advertisement struct {
	EntityID               EUI64
	EntityModelID          EUI64
	EntityCapabilities     uint32
	TalkerStreamSources    uint16
	TalkerCapabilities     uint16
	ListenerStreamSinks    uint16
	ListenerCapabilities   uint16
	ControllerCapabilities uint32
	AvailableIndex         uint32
	GptpGrandmasterID      EUI64
	GptpDomainNumber       uint8
	IdentifyControlIndex   uint16
	InterfaceIndex         uint16
	AssociationID          EUI64
	ValidTimeUnits         uint8 // raw 5-bit value; seconds = 2 * ValidTimeUnits
}

func (a Advertisement) ValidTimeSeconds() int {
	return 2 * int(a.ValidTimeUnits)
}

const adpBodyLen = ADPFrameLen - EthernetHeaderLen - CommonHeaderLen // 56

func buildADP(messageType uint8, a Advertisement) ([]byte, error) {
	frame := make([]byte, ADPFrameLen)
	putEthernetHeader(frame, EthernetHeader{Dest: ADPMulticast, EtherType: EtherTypeAVTP})
	putCommonHeader(frame[EthernetHeaderLen:], CommonHeader{
		Subtype:           SubtypeADP,
		MessageType:       messageType,
		Status:            a.ValidTimeUnits,
		ControlDataLength: uint16(adpBodyLen),
		StreamOrTargetID:  a.EntityID,
	})
	b := frame[EthernetHeaderLen+CommonHeaderLen:]
	emid := a.EntityModelID.Bytes()
	copy(b[0:8], emid[:])
	putU32(b[8:12], a.EntityCapabilities)
	putU16(b[12:14], a.TalkerStreamSources)
	putU16(b[14:16], a.TalkerCapabilities)
	putU16(b[16:18], a.ListenerStreamSinks)
	putU16(b[18:20], a.ListenerCapabilities)
	putU32(b[20:24], a.ControllerCapabilities)
	putU32(b[24:28], a.AvailableIndex)
	gm := a.GptpGrandmasterID.Bytes()
	copy(b[28:36], gm[:])
	b[36] = a.GptpDomainNumber
	putU16(b[40:42], a.IdentifyControlIndex)
	putU16(b[42:44], a.InterfaceIndex)
	assoc := a.AssociationID.Bytes()
	copy(b[44:52], assoc[:])
	return frame, nil
}

func parseADP(eth EthernetHeader, common CommonHeader, body []byte) (Advertisement, error) {
	if len(body) < adpBodyLen {
		return Advertisement{}, ErrFrameTooShort
	}
	a := Advertisement{
		EntityID:               common.StreamOrTargetID,
		EntityModelID:          eui64FromBytes(body[0:8]),
		EntityCapabilities:     getU32(body[8:12]),
		TalkerStreamSources:    getU16(body[12:14]),
		TalkerCapabilities:     getU16(body[14:16]),
		ListenerStreamSinks:    getU16(body[16:18]),
		ListenerCapabilities:   getU16(body[18:20]),
		ControllerCapabilities: getU32(body[20:24]),
		AvailableIndex:         getU32(body[24:28]),
		GptpGrandmasterID:      eui64FromBytes(body[28:36]),
		GptpDomainNumber:       body[36],
		IdentifyControlIndex:   getU16(body[40:42]),
		InterfaceIndex:         getU16(body[42:44]),
		AssociationID:          eui64FromBytes(body[44:52]),
		ValidTimeUnits:         common.Status,
	}
	return a, nil
}

// BuildEntityDiscover builds an ENTITY_DISCOVER ADPDU targeting the given
// entity id (0 == any)
func BuildEntityDiscover(target EUI64) ([]byte, error) {
	return buildADP(ADPMessageEntityDiscover, Advertisement{EntityID: target})
}

package avdecc

// DescriptorType identifies the kind of a descriptor in an entity's model.
type DescriptorType uint16

// Descriptor types used by the enumeration driver and command dispatch
// (subset of IEEE 1722.1 table 7.1).
const (
	DescriptorEntity             DescriptorType = 0x0000
	DescriptorConfiguration      DescriptorType = 0x0001
	DescriptorAudioUnit          DescriptorType = 0x0002
	DescriptorStreamInput        DescriptorType = 0x0005
	DescriptorStreamOutput       DescriptorType = 0x0006
	DescriptorJackInput          DescriptorType = 0x0007
	DescriptorJackOutput         DescriptorType = 0x0008
	DescriptorAVBInterface       DescriptorType = 0x0009
	DescriptorClockSource        DescriptorType = 0x000a
	DescriptorMemoryObject       DescriptorType = 0x000b
	DescriptorLocale             DescriptorType = 0x000c
	DescriptorStrings            DescriptorType = 0x000d
	DescriptorStreamPortInput    DescriptorType = 0x000e
	DescriptorStreamPortOutput   DescriptorType = 0x000f
	DescriptorExternalPortInput  DescriptorType = 0x0010
	DescriptorExternalPortOutput DescriptorType = 0x0011
	DescriptorAudioCluster       DescriptorType = 0x0014
	DescriptorAudioMap           DescriptorType = 0x0017
	DescriptorControl            DescriptorType = 0x001a
	DescriptorClockDomain        DescriptorType = 0x0024
)

func (t DescriptorType) String() string {
	if name, ok := descriptorTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN_DESCRIPTOR"
}

var descriptorTypeNames = map[DescriptorType]string{
	DescriptorEntity:             "ENTITY",
	DescriptorConfiguration:      "CONFIGURATION",
	DescriptorAudioUnit:          "AUDIO_UNIT",
	DescriptorStreamInput:        "STREAM_INPUT",
	DescriptorStreamOutput:       "STREAM_OUTPUT",
	DescriptorJackInput:          "JACK_INPUT",
	DescriptorJackOutput:         "JACK_OUTPUT",
	DescriptorAVBInterface:       "AVB_INTERFACE",
	DescriptorClockSource:        "CLOCK_SOURCE",
	DescriptorMemoryObject:       "MEMORY_OBJECT",
	DescriptorLocale:             "LOCALE",
	DescriptorStrings:            "STRINGS",
	DescriptorStreamPortInput:    "STREAM_PORT_INPUT",
	DescriptorStreamPortOutput:   "STREAM_PORT_OUTPUT",
	DescriptorExternalPortInput:  "EXTERNAL_PORT_INPUT",
	DescriptorExternalPortOutput: "EXTERNAL_PORT_OUTPUT",
	DescriptorAudioCluster:       "AUDIO_CLUSTER",
	DescriptorAudioMap:           "AUDIO_MAP",
	DescriptorControl:            "CONTROL",
	DescriptorClockDomain:        "CLOCK_DOMAIN",
}

// commandCapable is the set of descriptor types that expose commands and so
// cache the most recent response per command-type.
var commandCapable = map[DescriptorType]bool{
	DescriptorEntity:       true,
	DescriptorStreamInput:  true,
	DescriptorStreamOutput: true,
	DescriptorAudioUnit:    true,
	DescriptorClockDomain:  true,
	DescriptorMemoryObject: true,
	DescriptorControl:      true,
}

// DescriptorKey is the (type, index) pair that uniquely identifies a
// descriptor within a configuration. Indices are dense within a type.
type DescriptorKey struct {
	Type  DescriptorType
	Index uint16
}

// LockState is the acquire/lock state carried on a descriptor or entity
// when applicable.
type LockState struct {
	Owner EUI64
	Flags uint32
}

// entityInfo carries the handful of ENTITY driving fields the enumeration
// driver needs: how many configurations to walk.
type entityInfo struct {
	ConfigurationsCount uint16
}

// configurationCounts carries, for a CONFIGURATION descriptor, the count
// of each child descriptor type it advertises: one entry per descriptor
// type, giving indices (0, count-1) to enqueue for that type.
type configurationCounts struct {
	Counts map[DescriptorType]uint16
}

// localeInfo carries a LOCALE descriptor's string-table size.
type localeInfo struct {
	NumberOfStrings  uint16
	BaseStringsIndex uint16
}

// audioUnitInfo carries an AUDIO_UNIT's child ranges.
type audioUnitInfo struct {
	StreamPortInputBase     uint16
	StreamPortInputCount    uint16
	StreamPortOutputBase    uint16
	StreamPortOutputCount   uint16
	ExternalPortInputBase   uint16
	ExternalPortInputCount  uint16
	ExternalPortOutputBase  uint16
	ExternalPortOutputCount uint16
	ControlBase             uint16
	ControlCount            uint16
}

// streamPortInfo carries a STREAM_PORT_INPUT/OUTPUT's child ranges:
// CONTROL, AUDIO_CLUSTER, and AUDIO_MAP ranges.
type streamPortInfo struct {
	ControlBase  uint16
	ControlCount uint16
	ClusterBase  uint16
	ClusterCount uint16
	MapBase      uint16
	MapCount     uint16
}

// Descriptor is a stored, read-only-once-set node in an entity's
// descriptor tree. Driving-field extraction is limited to the
// types the enumeration driver needs (entityInfo, configurationCounts,
// localeInfo, audioUnitInfo, streamPortInfo); every other type is carried
// through opaquely via Raw's codec contract.
type Descriptor struct {
	Key  DescriptorKey
	Raw  []byte // verbatim payload as received, read-only once stored
	Name string // populated by SET_NAME/GET_NAME for nameable descriptors

	entity        *entityInfo
	configuration *configurationCounts
	locale        *localeInfo
	audioUnit     *audioUnitInfo
	streamPort    *streamPortInfo

	// Responses holds the most recent response payload per command-type
	// for descriptors that expose commands.
	Responses map[uint16][]byte

	Acquire *LockState
	Lock    *LockState
}

func newDescriptor(key DescriptorKey, raw []byte) *Descriptor {
	d := &Descriptor{Key: key, Raw: append([]byte(nil), raw...)}
	if commandCapable[key.Type] {
		d.Responses = make(map[uint16][]byte)
	}
	switch key.Type {
	case DescriptorEntity:
		d.entity = parseEntityInfo(raw)
	case DescriptorConfiguration:
		d.configuration = parseConfigurationCounts(raw)
	case DescriptorLocale:
		d.locale = parseLocaleInfo(raw)
	case DescriptorAudioUnit:
		d.audioUnit = parseAudioUnitInfo(raw)
	case DescriptorStreamPortInput, DescriptorStreamPortOutput:
		d.streamPort = parseStreamPortInfo(raw)
	}
	return d
}

// recordResponse stores the most recent response payload for a command
// against a command-capable descriptor.
func (d *Descriptor) recordResponse(commandType uint16, payload []byte) {
	if d.Responses == nil {
		d.Responses = make(map[uint16][]byte)
	}
	d.Responses[commandType] = append([]byte(nil), payload...)
}

// Layout below mirrors a conventional AEM descriptor body: a fixed header
// of object-name/localized-string fields followed by the driving counts
// the enumeration driver needs. Everything past the driving fields is
// opaque and lives only in Raw.

func parseEntityInfo(raw []byte) *entityInfo {
	// entity_id(8) entity_model_id(8) entity_capabilities(4)
	// talker_stream_sources(2) talker_capabilities(2)
	// listener_stream_sinks(2) listener_capabilities(2)
	// controller_capabilities(4) available_index(4) assoc_id(8)
	// entity_name(64) vendor_name_idx(2) model_name_idx(2)
	// firmware_version(64) group_name(64) serial_number(64)
	// configurations_count(2) current_configuration(2)
	const off = 8 + 8 + 4 + 2 + 2 + 2 + 2 + 4 + 4 + 8 + 64 + 2 + 2 + 64 + 64 + 64
	if len(raw) < off+2 {
		return &entityInfo{}
	}
	return &entityInfo{ConfigurationsCount: getU16(raw[off : off+2])}
}

func parseConfigurationCounts(raw []byte) *configurationCounts {
	// object_name(64) localized_description(2) descriptor_counts_count(2)
	// descriptor_counts_offset(2) then pairs of (type(2), count(2))
	const hdr = 64 + 2 + 2 + 2
	c := &configurationCounts{Counts: map[DescriptorType]uint16{}}
	if len(raw) < hdr {
		return c
	}
	n := int(getU16(raw[64+2 : 64+4]))
	pos := hdr
	for i := 0; i < n && pos+4 <= len(raw); i++ {
		typ := DescriptorType(getU16(raw[pos : pos+2]))
		cnt := getU16(raw[pos+2 : pos+4])
		c.Counts[typ] = cnt
		pos += 4
	}
	return c
}

func parseLocaleInfo(raw []byte) *localeInfo {
	// locale_identifier(64) number_of_strings(2) base_strings(2)
	const off = 64
	if len(raw) < off+4 {
		return &localeInfo{}
	}
	return &localeInfo{
		NumberOfStrings:  getU16(raw[off : off+2]),
		BaseStringsIndex: getU16(raw[off+2 : off+4]),
	}
}

func parseAudioUnitInfo(raw []byte) *audioUnitInfo {
	// object_name(64) localized_description(2) clock_domain_index(2)
	// number_of_stream_input_ports(2) base_stream_input_port(2)
	// number_of_stream_output_ports(2) base_stream_output_port(2)
	// number_of_external_input_ports(2) base_external_input_port(2)
	// number_of_external_output_ports(2) base_external_output_port(2)
	// number_of_internal_input_ports(2) base_internal_input_port(2)
	// number_of_internal_output_ports(2) base_internal_output_port(2)
	// number_of_controls(2) base_control(2) number_of_signal_selectors(2)
	//...
	const base = 64 + 2 + 2
	need := base + 2*14
	if len(raw) < need {
		return &audioUnitInfo{}
	}
	f := func(idx int) uint16 { return getU16(raw[base+idx*2 : base+idx*2+2]) }
	return &audioUnitInfo{
		StreamPortInputCount:    f(0),
		StreamPortInputBase:     f(1),
		StreamPortOutputCount:   f(2),
		StreamPortOutputBase:    f(3),
		ExternalPortInputCount:  f(4),
		ExternalPortInputBase:   f(5),
		ExternalPortOutputCount: f(6),
		ExternalPortOutputBase:  f(7),
		ControlCount:            f(12),
		ControlBase:             f(13),
	}
}

func parseStreamPortInfo(raw []byte) *streamPortInfo {
	// clock_domain_index(2) port_flags(2) number_of_controls(2)
	// base_control(2) number_of_clusters(2) base_cluster(2)
	// number_of_maps(2) base_map(2)
	const off = 2 + 2
	need := off + 2*6
	if len(raw) < need {
		return &streamPortInfo{}
	}
	f := func(idx int) uint16 { return getU16(raw[off+idx*2 : off+idx*2+2]) }
	return &streamPortInfo{
		ControlCount: f(0),
		ControlBase:  f(1),
		ClusterCount: f(2),
		ClusterBase:  f(3),
		MapCount:     f(4),
		MapBase:      f(5),
	}
}

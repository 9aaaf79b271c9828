package avdecc

import "time"

// ConnectionStatus is an entity's liveness, driven purely by ADP validity.
type ConnectionStatus int

const (
	Disconnected ConnectionStatus = iota
	Connected
)

func (s ConnectionStatus) String() string {
	if s == Connected {
		return "Connected"
	}
	return "Disconnected"
}

// Entity is one discovered AVDECC node. Entities
// are created on first ADP advertisement and retained for process lifetime
// so that handles obtained by the host remain valid
// even after the entity departs.
type Entity struct {
	EntityID         EUI64
	MAC              MAC
	ConnectionStatus ConnectionStatus
	Advertisement    Advertisement

	CurrentEntityIndex uint16
	CurrentConfigIndex uint16

	tree map[DescriptorKey]*Descriptor

	// aaResponses holds Address-Access responses by sequence-id, opaque
	// TLV bytes and all; the core does not interpret register contents.
	aaResponses map[uint16]AAFrame

	// validityDeadline and enumeration bookkeeping are owned by the discovery
	// machine and the enumeration driver respectively; kept on the entity
	// because both need O(1) lookup by entity id and the facade already
	// holds a single mutex across all of it.
	validityDeadline time.Time
	enumerated       bool

	// enumPending/enumInflight are the two per-entity queues the
	// descriptor enumeration driver (C7) drives.
	enumPending  []DescriptorKey
	enumInflight []enumInflightEntry
}

// enumInflightEntry is one outstanding READ_DESCRIPTOR request tracked by
// the enumeration driver, independent of the AECP machine's own inflight
// table; its own deadline is strictly longer than the AECP 250ms timeout
// so that a retried READ_DESCRIPTOR still resolves to the same driver
// record.
type enumInflightEntry struct {
	Key      DescriptorKey
	Deadline time.Time
}

func newEntity(id EUI64, mac MAC) *Entity {
	return &Entity{
		EntityID:         id,
		MAC:              mac,
		ConnectionStatus: Connected,
		tree:             make(map[DescriptorKey]*Descriptor),
	}
}

// resetTree discards the descriptor tree; used on a re-enumeration
// trigger.
func (e *Entity) resetTree() {
	e.tree = make(map[DescriptorKey]*Descriptor)
	e.enumerated = false
	e.enumPending = nil
	e.enumInflight = nil
}

func (e *Entity) store(key DescriptorKey, raw []byte) *Descriptor {
	d := newDescriptor(key, raw)
	e.tree[key] = d
	return d
}

// Descriptor looks up a stored descriptor by (type, index). It returns nil
// if the descriptor has not been read yet — every dispatch path must
// tolerate a nil result here.
func (e *Entity) Descriptor(key DescriptorKey) *Descriptor {
	return e.tree[key]
}

// Descriptors returns every stored descriptor of a given type, ordered by
// index.
func (e *Entity) Descriptors(typ DescriptorType) []*Descriptor {
	var out []*Descriptor
	for k, d := range e.tree {
		if k.Type == typ {
			out = append(out, d)
		}
	}
	// indices are dense; a simple insertion sort keeps this allocation-free
	// for the small counts typical of AVDECC entities.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Key.Index < out[j-1].Key.Index; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func (e *Entity) DescriptorCount() int { return len(e.tree) }

// dispatchAEMResponse is the AEM half of proc_rcvd_aem_response: a flat
// switch on command-type selecting which descriptor (by type+index
// extracted from the frame) receives the response.
//
// It returns the operation-id and whether one was present, so the AECP
// machine can start tracking a long operation on START_OPERATION success.
func (e *Entity) dispatchAEMResponse(f AEMFrame) (opID uint16, opIDValid bool) {
	switch f.CommandType {
	case CmdReadDescriptor:
		hdr, data, err := ParseReadDescriptorResponse(f.Payload)
		if err != nil {
			return 0, false
		}
		e.store(DescriptorKey{Type: hdr.DescriptorType, Index: hdr.DescriptorIndex}, data)
		return 0, false
	case CmdSetName:
		e.applySetName(f.Payload)
		return 0, false
	case CmdGetName:
		e.applySetName(f.Payload)
		e.recordCommandResponse(f)
		return 0, false
	case CmdAcquireEntity:
		e.applyAcquire(f.Payload)
		return 0, false
	case CmdLockEntity:
		e.applyLock(f.Payload)
		return 0, false
	case CmdStartOperation:
		if len(f.Payload) >= 4 {
			id := getU16(f.Payload[2:4])
			e.recordCommandResponse(f)
			return id, true
		}
		return 0, false
	default:
		e.recordCommandResponse(f)
		return 0, false
	}
}

// recordCommandResponse stores the payload against the (type, index)
// descriptor the outgoing command addressed, when that descriptor exists
// and is command-capable. Descriptor type/index for
// non-READ_DESCRIPTOR commands are read from the first 4 bytes of the
// payload (READ_DESCRIPTOR itself differs: configuration index first,
// type/index at bytes 4..8).
func (e *Entity) recordCommandResponse(f AEMFrame) {
	if len(f.Payload) < 4 {
		return
	}
	typ := DescriptorType(getU16(f.Payload[0:2]))
	idx := getU16(f.Payload[2:4])
	d := e.tree[DescriptorKey{Type: typ, Index: idx}]
	if d == nil || d.Responses == nil {
		return // tolerate: the descriptor isn't in the tree
	}
	d.recordResponse(f.CommandType, f.Payload)
}

// applySetName mutates the stored name in place so subsequent reads see
// the change without another descriptor read.
func (e *Entity) applySetName(payload []byte) {
	if len(payload) < 10 {
		return
	}
	typ := DescriptorType(getU16(payload[0:2]))
	idx := getU16(payload[2:4])
	// payload[4:6] name_index, payload[6:8] configuration_index (ignored:
	// names are addressed per top-level configuration in this model)
	name := decodeName(payload[8:])
	if typ == DescriptorEntity && idx == 0 {
		if d := e.tree[DescriptorKey{Type: DescriptorEntity, Index: 0}]; d != nil {
			d.Name = name
		}
		return
	}
	if d := e.tree[DescriptorKey{Type: typ, Index: idx}]; d != nil {
		d.Name = name
	}
}

func decodeName(b []byte) string {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	if n > 64 {
		n = 64
	}
	return string(b[:n])
}

func (e *Entity) applyAcquire(payload []byte) {
	if len(payload) < 16 {
		return
	}
	flags := getU32(payload[0:4])
	owner := eui64FromBytes(payload[4:12])
	typ := DescriptorType(getU16(payload[12:14]))
	idx := getU16(payload[14:16])
	state := &LockState{Owner: owner, Flags: flags}
	if typ == DescriptorEntity && idx == 0 {
		if d := e.tree[DescriptorKey{Type: DescriptorEntity, Index: 0}]; d != nil {
			d.Acquire = state
		}
		return
	}
	if d := e.tree[DescriptorKey{Type: typ, Index: idx}]; d != nil {
		d.Acquire = state
	}
}

func (e *Entity) applyLock(payload []byte) {
	if len(payload) < 16 {
		return
	}
	flags := getU32(payload[0:4])
	owner := eui64FromBytes(payload[4:12])
	typ := DescriptorType(getU16(payload[12:14]))
	idx := getU16(payload[14:16])
	state := &LockState{Owner: owner, Flags: flags}
	if d := e.tree[DescriptorKey{Type: typ, Index: idx}]; d != nil {
		d.Lock = state
	}
}

// dispatchACMPResponse handles a matched ACMP response. ACMP has no
// descriptor tree to update; it only needs the facade's routing (done by
// the caller) plus the raw frame for notification purposes.
func (e *Entity) dispatchACMPResponse(ACMPFrame) {
	// connection state is surfaced to the host purely via notification;
	// no model data on Entity is mutated today.
}

// dispatchAAResponse handles a matched Address-Access response. The TLV
// is opaque to the core — only status and the raw bytes are recorded,
// keyed by sequence-id, so a host polling by handle can retrieve the
// result without the core having to understand any register layout.
func (e *Entity) dispatchAAResponse(f AAFrame) {
	if e.aaResponses == nil {
		e.aaResponses = make(map[uint16]AAFrame)
	}
	e.aaResponses[f.SequenceID] = f
}

// AAResponse returns the most recent Address-Access response recorded
// against a sequence-id, or false if none has arrived yet.
func (e *Entity) AAResponse(seq uint16) (AAFrame, bool) {
	f, ok := e.aaResponses[seq]
	return f, ok
}

package avdecc

import (
	"sync"

	"github.com/pkg/errors"
)

// entitySet is the mutex-protected collection of every entity the
// controller has ever seen. Entities are never removed, so indices and
// pointers handed to the host remain valid for process lifetime.
type entitySet struct {
	mu    sync.Mutex
	byID  map[EUI64]*Entity
	order []*Entity
}

func newEntitySet() *entitySet {
	return &entitySet{byID: make(map[EUI64]*Entity)}
}

func (s *entitySet) get(id EUI64) *Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id]
}

func (s *entitySet) add(e *Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[e.EntityID] = e
	s.order = append(s.order, e)
}

// all returns a snapshot slice, safe to range over after the lock is
// released.
func (s *entitySet) all() []*Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Entity, len(s.order))
	copy(out, s.order)
	return out
}

func (s *entitySet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

func (s *entitySet) byIndex(i int) *Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.order) {
		return nil
	}
	return s.order[i]
}

// ErrNoSuchEntity is returned by host calls that address an entity id the
// controller has never seen.
var ErrNoSuchEntity = errors.New("avdecc: no such entity")

// Controller is the facade NewController returns: it demultiplexes
// received frames to the three protocol machines, drives the enumeration
// driver, and exposes every host-facing operation.
//
// mu serialises every call that touches a protocol machine's mutable
// state (sequence-id counters, inflight tables, the operation table):
// Tick, HandleFrame and every Send*/Discover host call take it for their
// full duration, so a host calling concurrently from multiple goroutines
// never races the machines against each other or against frame receipt.
// entitySet has its own, narrower mutex purely to protect its map and
// slice; it is unaffected by and independent of this one.
type Controller struct {
	mu sync.Mutex

	entityID  EUI64
	transport Transport
	sink      *Sink
	clock     Clock

	entities   *entitySet
	discovery  *discoveryMachine
	aecp       *aecpMachine
	acmp       *acmpMachine
	enumerator *enumerationDriver
}

// Config bundles the host-supplied construction parameters for
// NewController.
type Config struct {
	Transport Transport
	Clock     Clock // defaults to SystemClock if nil

	Filters Filters

	NotifyCB     func(Notification)
	ACMPNotifyCB func(ACMPNotification)
	LogCB        func(LogEvent)
	LogLevel     LogLevel
}

// NewController derives the controller's own entity-id from the
// transport's MAC, and wires the three protocol machines and the
// enumeration driver to a shared entity set and sink.
func NewController(cfg Config) *Controller {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock
	}
	sink := NewSink(cfg.NotifyCB, cfg.ACMPNotifyCB, cfg.LogCB, cfg.LogLevel)
	entityID := ControllerEntityID(cfg.Transport.MACAddress())
	entities := newEntitySet()

	c := &Controller{
		entityID:  entityID,
		transport: cfg.Transport,
		sink:      sink,
		clock:     clock,
		entities:  entities,
	}

	c.discovery = newDiscoveryMachine(entities, sink, clock, cfg.Filters)
	c.aecp = newAECPMachine(entityID, sink, clock, c.transport.SendFrame)
	c.acmp = newACMPMachine(entityID, sink, clock, c.transport.SendFrame)
	c.enumerator = newEnumerationDriver(entities, sink, clock)
	c.enumerator.sendRead = c.sendReadDescriptor

	c.discovery.onArrival = c.enumerator.start
	c.discovery.onReEnumerate = c.enumerator.start

	return c
}

func (c *Controller) sendReadDescriptor(e *Entity, key DescriptorKey) error {
	payload := BuildReadDescriptorPayload(ReadDescriptorPayload{
		ConfigurationIndex: e.CurrentConfigIndex,
		DescriptorType:     key.Type,
		DescriptorIndex:    key.Index,
	})
	return c.aecp.sendCommand(e.MAC, e.EntityID, CmdReadDescriptor, key.Type, key.Index, payload, NoNotification, false)
}

// Tick drives every internal timer forward: discovery liveness sweep,
// AECP timeout sweep, ACMP timeout sweep, then the enumeration driver.
// The host is expected to call this on a steady period (the avdeccctl
// demo binary uses 10ms).
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discovery.sweep()
	c.aecp.sweepTimeouts()
	c.acmp.sweepTimeouts()
	c.enumerator.tick()
}

// HandleFrame demultiplexes a received frame by subtype: ADP to the
// discovery machine, AECP to the AECP machine (plus the
// CONTROLLER_AVAILABLE auto-responder), ACMP to the ACMP machine.
// Malformed or foreign frames are dropped with a DEBUG log, never
// panicking.
func (c *Controller) HandleFrame(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	eth, common, payload, err := parseEthernetAndCommon(frame)
	if err != nil {
		c.sink.log(LogDebug, "controller: dropping unparsable frame", c.nowMs())
		return
	}

	switch common.Subtype {
	case SubtypeADP:
		c.discovery.receiveADP(common, eth, payload)

	case SubtypeAECP:
		c.handleAECP(eth, common, payload)

	case SubtypeACMP:
		f, err := parseACMP(common, payload)
		if err != nil {
			c.sink.log(LogDebug, "controller: malformed acmp frame", c.nowMs())
			return
		}
		c.acmp.receiveResponse(common.MessageType, f)
		routingID := f.ListenerEntityID
		if common.MessageType == ACMPGetTXStateResponse || common.MessageType == ACMPGetTXConnectionResponse {
			routingID = f.TalkerEntityID
		}
		if e := c.entities.get(routingID); e != nil {
			e.dispatchACMPResponse(f)
		}

	default:
		c.sink.log(LogDebug, "controller: unknown subtype, dropping", c.nowMs())
	}
}

func (c *Controller) handleAECP(eth EthernetHeader, common CommonHeader, payload []byte) {
	switch common.MessageType {
	case AECPMessageAEMCommand:
		f, err := parseAEM(common, payload)
		if err != nil {
			c.sink.log(LogDebug, "controller: malformed aem command", c.nowMs())
			return
		}
		if f.CommandType == CmdControllerAvailable {
			c.replyControllerAvailable(eth, f)
		}

	case AECPMessageAEMResponse:
		f, err := parseAEM(common, payload)
		if err != nil {
			c.sink.log(LogDebug, "controller: malformed aem response", c.nowMs())
			return
		}
		e := c.entities.get(f.TargetEntityID)
		c.aecp.receiveAEM(f, func(resp AEMFrame) (uint16, bool) {
			if e == nil {
				return 0, false
			}
			opID, valid := e.dispatchAEMResponse(resp)
			if resp.CommandType == CmdReadDescriptor && resp.Status == AEMStatusSuccess {
				if d := e.tree[DescriptorKey{Type: mustReadDescriptorType(resp.Payload), Index: mustReadDescriptorIndex(resp.Payload)}]; d != nil {
					c.enumerator.onDescriptor(e, d)
				}
			}
			return opID, valid
		})

	case AECPMessageAddressAccessResponse:
		f, err := parseAA(common, payload)
		if err != nil {
			c.sink.log(LogDebug, "controller: malformed address-access response", c.nowMs())
			return
		}
		e := c.entities.get(f.TargetEntityID)
		c.aecp.receiveAA(f, func(resp AAFrame) {
			if e != nil {
				e.dispatchAAResponse(resp)
			}
		})

	default:
		// address-access commands and other AECP message types are
		// not dispatched; the frame is dropped.
	}
}

func mustReadDescriptorType(payload []byte) DescriptorType {
	hdr, _, err := ParseReadDescriptorResponse(payload)
	if err != nil {
		return 0
	}
	return hdr.DescriptorType
}

func mustReadDescriptorIndex(payload []byte) uint16 {
	hdr, _, err := ParseReadDescriptorResponse(payload)
	if err != nil {
		return 0
	}
	return hdr.DescriptorIndex
}

// replyControllerAvailable auto-responds to a CONTROLLER_AVAILABLE
// command: swap source/destination MACs and echo back the command as an
// AEM_RESPONSE with every other field unchanged, entirely independent
// of the inflight table (the entity initiated this exchange, not us).
func (c *Controller) replyControllerAvailable(eth EthernetHeader, f AEMFrame) {
	resp := BuildAEMResponse(f)
	putEthernetHeader(resp, EthernetHeader{Dest: eth.Source, Source: eth.Dest, EtherType: EtherTypeAVTP})
	if err := c.transport.SendFrame(resp); err != nil {
		c.sink.log(LogError, "controller: controller_available reply send failed", c.nowMs())
	}
}

// Discover builds and transmits an ENTITY_DISCOVER ADPDU, targeted or
// global (EUI64 zero value) per the host's request.
func (c *Controller) Discover(target EUI64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	frame, err := c.discovery.buildDiscover(target)
	if err != nil {
		return err
	}
	return c.transport.SendFrame(frame)
}

// SendAEMCommand sends an arbitrary AEM command: look up the target by
// entity-id, build and transmit via the AECP machine. handle is
// delivered back on the eventual RESPONSE_RECEIVED or COMMAND_TIMEOUT
// notification.
func (c *Controller) SendAEMCommand(target EUI64, commandType uint16, descType DescriptorType, descIndex uint16, payload []byte, handle NotificationHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entities.get(target)
	if e == nil {
		return ErrNoSuchEntity
	}
	return c.aecp.sendCommand(e.MAC, target, commandType, descType, descIndex, payload, handle, true)
}

// SendReadDescriptorCommand sends a READ_DESCRIPTOR command; the one
// host-facing call that also exists internally for the enumeration
// driver.
func (c *Controller) SendReadDescriptorCommand(target EUI64, configIndex uint16, descType DescriptorType, descIndex uint16, handle NotificationHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entities.get(target)
	if e == nil {
		return ErrNoSuchEntity
	}
	payload := BuildReadDescriptorPayload(ReadDescriptorPayload{
		ConfigurationIndex: configIndex,
		DescriptorType:     descType,
		DescriptorIndex:    descIndex,
	})
	return c.aecp.sendCommand(e.MAC, target, CmdReadDescriptor, descType, descIndex, payload, handle, true)
}

// SendAACommand sends an Address-Access command, registering it in the
// same AECP inflight table as AEM commands so it shares the retry and
// timeout path. The response TLV, once it arrives, is retrievable from
// the target Entity via AAResponse.
func (c *Controller) SendAACommand(target EUI64, tlv []byte, handle NotificationHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entities.get(target)
	if e == nil {
		return ErrNoSuchEntity
	}
	return c.aecp.sendAA(e.MAC, target, tlv, handle, true)
}

// SendACMPCommand sends an arbitrary ACMP command.
func (c *Controller) SendACMPCommand(messageType uint8, f ACMPFrame, handle NotificationHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acmp.sendCommand(messageType, f, handle)
}

// SetLoggingLevel implements set_logging_level.
func (c *Controller) SetLoggingLevel(l LogLevel) { c.sink.SetLevel(l) }

// ApplyEndStationCapabilitiesFilters replaces the discovery filters:
// future ADP traffic is filtered by the new mask; already-discovered
// entities are untouched.
func (c *Controller) ApplyEndStationCapabilitiesFilters(f Filters) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discovery.filters = f
}

// IsInflightCommandWithNotificationID reports whether a command sent
// with this handle is still outstanding, checking both the AECP and
// ACMP inflight tables.
func (c *Controller) IsInflightCommandWithNotificationID(h NotificationHandle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aecp.IsInflightWithHandle(h) || c.acmp.IsInflightWithHandle(h)
}

// IsActiveOperationWithNotificationID reports whether a long operation
// started with this handle is still in progress.
func (c *Controller) IsActiveOperationWithNotificationID(h NotificationHandle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aecp.IsActiveOperationWithHandle(h)
}

// GetEndStationCount implements get_end_station_count.
func (c *Controller) GetEndStationCount() int { return c.entities.count() }

// GetEndStationByIndex implements get_end_station_by_index; the
// index is the arrival order, stable for process lifetime.
func (c *Controller) GetEndStationByIndex(i int) *Entity { return c.entities.byIndex(i) }

// EntityID returns the controller's own derived entity-id.
func (c *Controller) EntityID() EUI64 { return c.entityID }

// Sink exposes the notification/log delivery point for polling consumers.
func (c *Controller) Sink() *Sink { return c.sink }

func (c *Controller) nowMs() int64 { return c.clock.Now().UnixMilli() }

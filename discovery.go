package avdecc

import "time"

// Filters holds the three end-station capability bitmasks the facade can
// be configured with. An advertisement is dropped before any
// further processing unless every required bit is set.
type Filters struct {
	EntityCapabilities   uint32
	TalkerCapabilities   uint16
	ListenerCapabilities uint16
}

func (f Filters) accepts(a Advertisement) bool {
	if a.EntityCapabilities&EntityCapEntityNotReady != 0 {
		return false
	}
	if a.EntityCapabilities&EntityCapGeneralControllerIgnore != 0 {
		return false
	}
	if f.EntityCapabilities != 0 && a.EntityCapabilities&f.EntityCapabilities != f.EntityCapabilities {
		return false
	}
	if f.TalkerCapabilities != 0 && a.TalkerCapabilities&f.TalkerCapabilities != f.TalkerCapabilities {
		return false
	}
	if f.ListenerCapabilities != 0 && a.ListenerCapabilities&f.ListenerCapabilities != f.ListenerCapabilities {
		return false
	}
	return true
}

// discoveryMachine is C3: ENTITY_DISCOVER frame building, endpoint
// liveness tracking, arrival/departure notification.
type discoveryMachine struct {
	entities *entitySet
	sink     *Sink
	clock    Clock
	filters  Filters

	// onArrival is invoked after a brand-new entity is added, so the
	// facade can kick off enumeration. onReEnumerate is invoked when an
	// existing entity's tree is discarded and must be walked again.
	onArrival     func(*Entity)
	onReEnumerate func(*Entity)
}

func newDiscoveryMachine(entities *entitySet, sink *Sink, clock Clock, filters Filters) *discoveryMachine {
	return &discoveryMachine{entities: entities, sink: sink, clock: clock, filters: filters}
}

// buildDiscover builds an ENTITY_DISCOVER frame; called only from
// Controller.Discover, on host request. The controller does not send
// ENTITY_DISCOVER on its own, neither at creation nor periodically.
func (m *discoveryMachine) buildDiscover(target EUI64) ([]byte, error) {
	return BuildEntityDiscover(target)
}

// receiveADP handles any ADPDU fed to the machine.
func (m *discoveryMachine) receiveADP(common CommonHeader, eth EthernetHeader, body []byte) {
	adv, err := parseADP(eth, common, body)
	if err != nil {
		m.sink.log(LogDebug, "adp: malformed frame", m.nowMs())
		return
	}
	switch common.MessageType {
	case ADPMessageEntityAvailable:
		m.handleAvailable(eth, adv)
	case ADPMessageEntityDeparting:
		// not used to remove entities in this design; departure is
		// deferred to the validity timer.
		m.sink.log(LogDebug, "adp: entity_departing ignored, awaiting validity timeout", m.nowMs())
	}
}

func (m *discoveryMachine) handleAvailable(eth EthernetHeader, adv Advertisement) {
	if adv.EntityID == 0 {
		m.sink.log(LogError, "adp: entity_available with entity-id 0, dropping (protocol-illegal)", m.nowMs())
		return
	}
	if !m.filters.accepts(adv) {
		return
	}
	now := m.clock.Now()
	deadline := now.Add(time.Duration(adv.ValidTimeSeconds()*2) * time.Second)

	existing := m.entities.get(adv.EntityID)
	if existing == nil {
		e := newEntity(adv.EntityID, eth.Source)
		e.Advertisement = adv
		e.validityDeadline = deadline
		m.entities.add(e)
		m.sink.emit(Notification{Kind: KindEndStationConnected, EntityID: e.EntityID})
		if m.onArrival != nil {
			m.onArrival(e)
		}
		return
	}

	reEnum := adv.AvailableIndex < existing.Advertisement.AvailableIndex ||
		adv.EntityModelID != existing.Advertisement.EntityModelID
	existing.Advertisement = adv
	existing.MAC = eth.Source
	existing.validityDeadline = deadline
	if existing.ConnectionStatus != Connected {
		existing.ConnectionStatus = Connected
	}
	if reEnum {
		existing.resetTree()
		m.sink.log(LogNotice, "adp: re-enumeration trigger (available_index decreased or model changed)", m.nowMs())
		if m.onReEnumerate != nil {
			m.onReEnumerate(existing)
		}
	}
}

// sweep marks any entity whose validity timer has expired as Disconnected.
// Inflights targeting the entity are not cancelled; they resolve on their
// own deadlines.
func (m *discoveryMachine) sweep() {
	now := m.clock.Now()
	for _, e := range m.entities.all() {
		if e.ConnectionStatus == Connected && !e.validityDeadline.After(now) {
			e.ConnectionStatus = Disconnected
			m.sink.emit(Notification{Kind: KindEndStationDisconnected, EntityID: e.EntityID})
		}
	}
}

func (m *discoveryMachine) nowMs() int64 {
	return m.clock.Now().UnixMilli()
}

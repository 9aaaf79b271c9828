package avdecc

import "time"

// descriptorReadTimeout is strictly longer than the AECP timeout so a
// retried READ_DESCRIPTOR still resolves to the same driver record.
const descriptorReadTimeout = 750 * time.Millisecond

// enumerationDriver is C7: a breadth-first walk of an entity's descriptor
// graph, serialised one descriptor (or one same-type batch) per round.
type enumerationDriver struct {
	entities *entitySet
	sink     *Sink
	clock    Clock

	// sendRead issues a background READ_DESCRIPTOR (CMD_WITHOUT_NOTIFICATION)
	// against an entity; wired to aecpMachine.sendCommand by the facade.
	sendRead func(entity *Entity, key DescriptorKey) error
}

func newEnumerationDriver(entities *entitySet, sink *Sink, clock Clock) *enumerationDriver {
	return &enumerationDriver{entities: entities, sink: sink, clock: clock}
}

// start enqueues (ENTITY, 0) for a freshly discovered (or re-enumerating)
// entity.
func (d *enumerationDriver) start(e *Entity) {
	e.enumPending = append(e.enumPending, DescriptorKey{Type: DescriptorEntity, Index: 0})
	d.submitPending(e)
}

// tick drives every entity's submit step; called from Controller.Tick.
func (d *enumerationDriver) tick() {
	now := d.clock.Now()
	for _, e := range d.entities.all() {
		d.sweepTimeouts(e, now)
		d.submitPending(e)
	}
}

// submitPending sends the next batch when idle: if inflight is empty and
// pending is non-empty, pop the head, send it, then batch-send any
// further pending entries of the same descriptor type.
func (d *enumerationDriver) submitPending(e *Entity) {
	if len(e.enumInflight) != 0 || len(e.enumPending) == 0 {
		d.checkCompletion(e)
		return
	}
	first := e.enumPending[0]
	e.enumPending = e.enumPending[1:]
	d.sendOne(e, first)

	for len(e.enumPending) > 0 && e.enumPending[0].Type == first.Type {
		next := e.enumPending[0]
		e.enumPending = e.enumPending[1:]
		d.sendOne(e, next)
	}
}

func (d *enumerationDriver) sendOne(e *Entity, key DescriptorKey) {
	deadline := d.clock.Now().Add(descriptorReadTimeout)
	e.enumInflight = append(e.enumInflight, enumInflightEntry{Key: key, Deadline: deadline})
	if d.sendRead == nil {
		return
	}
	if err := d.sendRead(e, key); err != nil {
		d.sink.log(LogError, "enumerate: transport send failed for "+key.Type.String(), d.clock.Now().UnixMilli())
	}
}

// onDescriptor handles a received descriptor response: store (already done
// by the caller via Entity.store before invoking this), remove the
// matching inflight entry, deduce and enqueue children, and resubmit.
func (d *enumerationDriver) onDescriptor(e *Entity, desc *Descriptor) {
	d.removeInflight(e, desc.Key)
	d.deduceChildren(e, desc)
	d.submitPending(e)
}

func (d *enumerationDriver) removeInflight(e *Entity, key DescriptorKey) {
	for i, entry := range e.enumInflight {
		if entry.Key == key {
			e.enumInflight = append(e.enumInflight[:i], e.enumInflight[i+1:]...)
			return
		}
	}
}

// deduceChildren implements the table exactly.
func (d *enumerationDriver) deduceChildren(e *Entity, desc *Descriptor) {
	enqueue := func(typ DescriptorType, base, count uint16) {
		for i := uint16(0); i < count; i++ {
			e.enumPending = append(e.enumPending, DescriptorKey{Type: typ, Index: base + i})
		}
	}

	switch desc.Key.Type {
	case DescriptorEntity:
		if desc.entity != nil {
			enqueue(DescriptorConfiguration, 0, desc.entity.ConfigurationsCount)
		}
	case DescriptorConfiguration:
		if desc.configuration != nil {
			for typ, count := range desc.configuration.Counts {
				enqueue(typ, 0, count)
			}
		}
	case DescriptorLocale:
		if desc.locale != nil {
			enqueue(DescriptorStrings, desc.locale.BaseStringsIndex, desc.locale.NumberOfStrings)
		}
	case DescriptorAudioUnit:
		if desc.audioUnit != nil {
			enqueue(DescriptorStreamPortInput, desc.audioUnit.StreamPortInputBase, desc.audioUnit.StreamPortInputCount)
			enqueue(DescriptorStreamPortOutput, desc.audioUnit.StreamPortOutputBase, desc.audioUnit.StreamPortOutputCount)
			enqueue(DescriptorExternalPortInput, desc.audioUnit.ExternalPortInputBase, desc.audioUnit.ExternalPortInputCount)
			enqueue(DescriptorExternalPortOutput, desc.audioUnit.ExternalPortOutputBase, desc.audioUnit.ExternalPortOutputCount)
			enqueue(DescriptorControl, desc.audioUnit.ControlBase, desc.audioUnit.ControlCount)
		}
	case DescriptorStreamPortInput, DescriptorStreamPortOutput:
		if desc.streamPort != nil {
			enqueue(DescriptorControl, desc.streamPort.ControlBase, desc.streamPort.ControlCount)
			enqueue(DescriptorAudioCluster, desc.streamPort.ClusterBase, desc.streamPort.ClusterCount)
			enqueue(DescriptorAudioMap, desc.streamPort.MapBase, desc.streamPort.MapCount)
		}
	}
}

// sweepTimeouts drops inflight entries whose 750ms deadline has passed
// with no response; no retry at this level (the AECP machine already
// retried once).
func (d *enumerationDriver) sweepTimeouts(e *Entity, now time.Time) {
	kept := e.enumInflight[:0]
	for _, entry := range e.enumInflight {
		if !entry.Deadline.After(now) {
			d.sink.log(LogError, "enumerate: descriptor read timed out for "+entry.Key.Type.String(), now.UnixMilli())
			continue
		}
		kept = append(kept, entry)
	}
	e.enumInflight = kept
}

// checkCompletion emits END_STATION_READ_COMPLETED exactly once, the
// moment both queues drain.
func (d *enumerationDriver) checkCompletion(e *Entity) {
	if e.enumerated {
		return
	}
	if len(e.enumPending) == 0 && len(e.enumInflight) == 0 && e.DescriptorCount() > 0 {
		e.enumerated = true
		d.sink.emit(Notification{Kind: KindEndStationReadCompleted, EntityID: e.EntityID})
	}
}

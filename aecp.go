package avdecc

import (
	"time"

	"github.com/google/uuid"
)

// aecpTimeout is the IEEE-defined AECP command timeout.
const aecpTimeout = 250 * time.Millisecond

// aecpMachine is C4: AEM/AA command/response matching, single-retry
// timeout, unsolicited-notification intake, long-operation tracking.
type aecpMachine struct {
	seqID      uint16
	inflight   InflightTable
	operations *operationTable

	controllerEntityID EUI64
	sink               *Sink
	clock              Clock
	send               func(frame []byte) error
}

func newAECPMachine(controllerEntityID EUI64, sink *Sink, clock Clock, send func([]byte) error) *aecpMachine {
	return &aecpMachine{
		controllerEntityID: controllerEntityID,
		operations:         newOperationTable(),
		sink:               sink,
		clock:              clock,
		send:               send,
	}
}

func (m *aecpMachine) nextSeq() uint16 {
	s := m.seqID
	m.seqID++
	return s
}

// sendCommand implements "Send (host-initiated)": assign
// sequence-id, serialise, register an inflight with a 250ms deadline, hand
// to the transport, log COMMAND_SENT.
func (m *aecpMachine) sendCommand(targetMAC MAC, target EUI64, commandType uint16, descType DescriptorType, descIndex uint16, payload []byte, handle NotificationHandle, notifyDesired bool) error {
	seq := m.nextSeq()
	frame := BuildAEMCommand(AEMFrame{
		TargetEntityID:     target,
		ControllerEntityID: m.controllerEntityID,
		SequenceID:         seq,
		CommandType:        commandType,
		Payload:            payload,
	})
	putEthernetHeader(frame, EthernetHeader{Dest: targetMAC, EtherType: EtherTypeAVTP})

	rec := &InflightRecord{
		SequenceID:      seq,
		Frame:           frame,
		Handle:          handle,
		Deadline:        m.clock.Now().Add(aecpTimeout),
		NotifyDesired:   notifyDesired,
		TraceID:         uuid.New(),
		EntityID:        target,
		CommandType:     commandType,
		DescriptorType:  descType,
		DescriptorIndex: descIndex,
	}
	m.inflight.Push(rec)

	err := m.send(frame)
	m.sink.logf(LogDebug, m.nowMs(), traceFields(rec), "aecp: command sent")
	if err != nil {
		m.sink.logf(LogError, m.nowMs(), traceFields(rec), "aecp: transport send failed")
	}
	return err
}

// sendAA is the Address-Access counterpart of sendCommand: same
// sequence-id counter, same inflight table, same 250ms deadline.
func (m *aecpMachine) sendAA(targetMAC MAC, target EUI64, tlv []byte, handle NotificationHandle, notifyDesired bool) error {
	seq := m.nextSeq()
	frame := BuildAACommand(AAFrame{
		TargetEntityID:     target,
		ControllerEntityID: m.controllerEntityID,
		SequenceID:         seq,
		TLV:                tlv,
	})
	putEthernetHeader(frame, EthernetHeader{Dest: targetMAC, EtherType: EtherTypeAVTP})

	rec := &InflightRecord{
		SequenceID:    seq,
		Frame:         frame,
		Handle:        handle,
		Deadline:      m.clock.Now().Add(aecpTimeout),
		NotifyDesired: notifyDesired,
		TraceID:       uuid.New(),
		EntityID:      target,
	}
	m.inflight.Push(rec)

	err := m.send(frame)
	m.sink.logf(LogDebug, m.nowMs(), traceFields(rec), "aecp: address-access command sent")
	if err != nil {
		m.sink.logf(LogError, m.nowMs(), traceFields(rec), "aecp: transport send failed")
	}
	return err
}

func traceFields(r *InflightRecord) map[string]interface{} {
	return map[string]interface{}{
		"trace_id":  r.TraceID.String(),
		"entity_id": r.EntityID.String(),
		"seq_id":    r.SequenceID,
		"command":   r.CommandType,
	}
}

// receiveAEM implements "Receive" for AEM_RESPONSE frames. The
// response callback (store descriptor / unsolicited sink) is invoked via
// applyResponse, passed in by the facade since it needs the Entity.
func (m *aecpMachine) receiveAEM(f AEMFrame, applyResponse func(AEMFrame) (opID uint16, opIDValid bool)) {
	rec := m.inflight.FindBySequenceID(f.SequenceID)
	if rec == nil {
		if f.Unsolicited {
			opID, valid := applyResponse(f)
			m.sink.emit(Notification{
				Kind:        KindUnsolicitedResponseReceived,
				EntityID:    f.TargetEntityID,
				CommandType: f.CommandType,
				Status:      f.Status,
				Handle:      NoNotification,
			})
			m.maybeTrackOperation(f, opID, valid)
			return
		}
		m.sink.log(LogDebug, "aecp: no inflight for sequence id, dropping (stale or spoofed)", m.nowMs())
		return
	}

	handle := rec.Handle
	m.inflight.Remove(f.SequenceID)

	opID, valid := applyResponse(f)
	if f.CommandType == CmdStartOperation && valid && f.Status == AEMStatusSuccess {
		operationType := uint16(0)
		if len(f.Payload) >= 2 {
			operationType = getU16(f.Payload[0:2])
		}
		m.startOperation(f.TargetEntityID, opID, operationType, handle)
	}
	m.maybeTrackOperation(f, opID, valid)

	m.sink.emit(Notification{
		Kind:            KindResponseReceived,
		EntityID:        f.TargetEntityID,
		CommandType:     f.CommandType,
		DescriptorType:  rec.DescriptorType,
		DescriptorIndex: rec.DescriptorIndex,
		Status:          f.Status,
		Handle:          handle,
	})

	// Dual-fire: an unsolicited response that also happens to match an
	// inflight record additionally notifies the unsolicited sink.
	if f.Unsolicited {
		m.sink.emit(Notification{
			Kind:        KindUnsolicitedResponseReceived,
			EntityID:    f.TargetEntityID,
			CommandType: f.CommandType,
			Status:      f.Status,
			Handle:      NoNotification,
		})
	}
}

// receiveAA implements "Receive" for ADDRESS_ACCESS_RESPONSE frames,
// sharing the AEM inflight table: the machine's sequence-id counter is
// common to both command kinds, so a response's sequence-id is enough to
// find and remove the right record regardless of whether it was an AEM
// or an AA send.
func (m *aecpMachine) receiveAA(f AAFrame, applyResponse func(AAFrame)) {
	rec := m.inflight.FindBySequenceID(f.SequenceID)
	if rec == nil {
		m.sink.log(LogDebug, "aecp: no inflight for sequence id, dropping (stale or spoofed)", m.nowMs())
		return
	}

	handle := rec.Handle
	m.inflight.Remove(f.SequenceID)
	applyResponse(f)

	m.sink.emit(Notification{
		Kind:            KindResponseReceived,
		EntityID:        f.TargetEntityID,
		DescriptorType:  rec.DescriptorType,
		DescriptorIndex: rec.DescriptorIndex,
		Status:          f.Status,
		Handle:          handle,
	})
}

// maybeTrackOperation updates an already-started Operation's
// percent-complete on an OPERATION_STATUS notification and removes it
// once it reaches a terminal value.
func (m *aecpMachine) maybeTrackOperation(f AEMFrame, opID uint16, opIDValid bool) {
	if f.CommandType != CmdOperationStatus || len(f.Payload) < 6 {
		return
	}
	statusOpID := getU16(f.Payload[2:4])
	percent := getU16(f.Payload[4:6])
	op := m.operations.get(f.TargetEntityID, statusOpID)
	if op == nil {
		return
	}
	op.PercentComplete = percent
	if op.terminal() {
		m.operations.remove(f.TargetEntityID, statusOpID)
		m.sink.emit(Notification{
			Kind:        KindResponseReceived,
			EntityID:    f.TargetEntityID,
			CommandType: CmdOperationStatus,
			Status:      f.Status,
			Handle:      op.Handle,
		})
	}
}

// startOperation registers a new Operation on a successful START_OPERATION
// response. Called from receiveAEM when a matched response has
// CommandType==CmdStartOperation, carries SUCCESS and yields a valid
// operation-id, since at that point the original inflight's handle and
// entity are both known.
func (m *aecpMachine) startOperation(entityID EUI64, operationID, operationType uint16, handle NotificationHandle) {
	m.operations.start(&Operation{
		OperationID:   operationID,
		OperationType: operationType,
		EntityID:      entityID,
		Handle:        handle,
	})
}

// IsInflightWithHandle answers is_inflight_cmd_with_notification_id.
func (m *aecpMachine) IsInflightWithHandle(h NotificationHandle) bool {
	return m.inflight.FindByHandle(h) != nil
}

// IsActiveOperationWithHandle answers is_active_operation_with_notification_id.
func (m *aecpMachine) IsActiveOperationWithHandle(h NotificationHandle) bool {
	return m.operations.activeForHandle(h)
}

// sweepTimeouts implements "Timeout sweep": first timeout
// retries once (same sequence-id, same bytes), second timeout is terminal.
func (m *aecpMachine) sweepTimeouts() {
	now := m.clock.Now()
	m.inflight.Sweep(now, func(rec *InflightRecord) bool {
		if !rec.Retried {
			rec.Retried = true
			rec.Deadline = now.Add(aecpTimeout)
			if err := m.send(rec.Frame); err != nil {
				m.sink.logf(LogError, m.nowMs(), traceFields(rec), "aecp: retry transport send failed")
			} else {
				m.sink.logf(LogDebug, m.nowMs(), traceFields(rec), "aecp: retrying command")
			}
			return true
		}
		m.sink.emit(Notification{
			Kind:            KindCommandTimeout,
			EntityID:        rec.EntityID,
			CommandType:     rec.CommandType,
			DescriptorType:  rec.DescriptorType,
			DescriptorIndex: rec.DescriptorIndex,
			Handle:          rec.Handle,
		})
		return false
	})
}

func (m *aecpMachine) nowMs() int64 { return m.clock.Now().UnixMilli() }

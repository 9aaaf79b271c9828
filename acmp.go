package avdecc

import (
	"github.com/google/uuid"
)

// acmpMachine is C5: ACMP command/response matching with a per-command
// timeout table, otherwise structurally identical to aecpMachine.
type acmpMachine struct {
	seqID    uint16
	inflight InflightTable

	controllerEntityID EUI64
	sink               *Sink
	clock              Clock
	send               func(frame []byte) error
}

func newACMPMachine(controllerEntityID EUI64, sink *Sink, clock Clock, send func([]byte) error) *acmpMachine {
	return &acmpMachine{controllerEntityID: controllerEntityID, sink: sink, clock: clock, send: send}
}

func (m *acmpMachine) nextSeq() uint16 {
	s := m.seqID
	m.seqID++
	return s
}

// sendCommand always targets the well-known ACMP/ADP multicast address,
// never the entity's unicast MAC.
func (m *acmpMachine) sendCommand(messageType uint8, f ACMPFrame, handle NotificationHandle) error {
	timeout, ok := ACMPTimeout(messageType)
	if !ok {
		timeout = aecpTimeout // defensive default; every real command type is in the table
	}
	seq := m.nextSeq()
	f.ControllerEntityID = m.controllerEntityID
	f.SequenceID = seq
	frame := BuildACMPCommand(messageType, f)

	rec := &InflightRecord{
		SequenceID:  seq,
		Frame:       frame,
		Handle:      handle,
		Deadline:    m.clock.Now().Add(timeout),
		TraceID:     uuid.New(),
		EntityID:    f.ListenerEntityID,
		CommandType: uint16(messageType),
	}
	m.inflight.Push(rec)

	err := m.send(frame)
	m.sink.logf(LogDebug, m.nowMs(), traceFields(rec), "acmp: command sent")
	return err
}

// receiveResponse matches a response by sequence-id only and does the
// inflight bookkeeping; routing to an endpoint by talker/listener id per
// message type is done separately by the facade after this returns.
func (m *acmpMachine) receiveResponse(messageType uint8, f ACMPFrame) {
	rec := m.inflight.FindBySequenceID(f.SequenceID)
	if rec == nil {
		// CONNECT_RX_RESPONSE and DISCONNECT_RX_RESPONSE may legitimately
		// arrive unsolicited, triggered by another controller; surface them
		// with no notification handle.
		if messageType == ACMPConnectRXResponse || messageType == ACMPDisconnectRXResponse {
			m.sink.emitACMP(ACMPNotification{
				Kind:             ACMPResponseReceived,
				MessageType:      messageType,
				TalkerEntityID:   f.TalkerEntityID,
				TalkerUniqueID:   f.TalkerUniqueID,
				ListenerEntityID: f.ListenerEntityID,
				ListenerUniqueID: f.ListenerUniqueID,
				Status:           f.Status,
				Handle:           NoNotification,
			})
			return
		}
		m.sink.log(LogDebug, "acmp: no inflight for sequence id, dropping", m.nowMs())
		return
	}
	handle := rec.Handle
	m.inflight.Remove(f.SequenceID)
	m.sink.emitACMP(ACMPNotification{
		Kind:             ACMPResponseReceived,
		MessageType:      messageType,
		TalkerEntityID:   f.TalkerEntityID,
		TalkerUniqueID:   f.TalkerUniqueID,
		ListenerEntityID: f.ListenerEntityID,
		ListenerUniqueID: f.ListenerUniqueID,
		Status:           f.Status,
		Handle:           handle,
	})
}

// IsInflightWithHandle answers is_inflight_cmd_with_notification_id for
// ACMP commands.
func (m *acmpMachine) IsInflightWithHandle(h NotificationHandle) bool {
	return m.inflight.FindByHandle(h) != nil
}

// sweepTimeouts mirrors aecpMachine.sweepTimeouts: one retry, verbatim
// re-send, subject to the per-command timeout.
func (m *acmpMachine) sweepTimeouts() {
	now := m.clock.Now()
	m.inflight.Sweep(now, func(rec *InflightRecord) bool {
		if !rec.Retried {
			rec.Retried = true
			timeout, ok := ACMPTimeout(uint8(rec.CommandType))
			if !ok {
				timeout = aecpTimeout
			}
			rec.Deadline = now.Add(timeout)
			if err := m.send(rec.Frame); err != nil {
				m.sink.logf(LogError, m.nowMs(), traceFields(rec), "acmp: retry transport send failed")
			}
			return true
		}
		m.sink.emitACMP(ACMPNotification{
			Kind:             ACMPCommandTimeout,
			MessageType:      uint8(rec.CommandType),
			ListenerEntityID: rec.EntityID,
			Handle:           rec.Handle,
		})
		return false
	})
}

func (m *acmpMachine) nowMs() int64 { return m.clock.Now().UnixMilli() }

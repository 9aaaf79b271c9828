package avdecc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAECPMachine(t *testing.T, clock Clock) (*aecpMachine, *Sink, *[][]byte) {
	t.Helper()
	sink := NewSink(nil, nil, nil, LogVerbose)
	var sent [][]byte
	m := newAECPMachine(0xaa, sink, clock, func(frame []byte) error {
		sent = append(sent, frame)
		return nil
	})
	return m, sink, &sent
}

// TestAECPRetryThenSuccess covers the case where a command times out
// once, is retried verbatim, and then a late response still resolves it.
func TestAECPRetryThenSuccess(t *testing.T) {
	clock := newFakeClock()
	m, sink, sent := newTestAECPMachine(t, clock)

	err := m.sendCommand(MAC{1}, 0x01, CmdAcquireEntity, DescriptorEntity, 0, nil, NotificationHandle(7), true)
	require.NoError(t, err)
	require.Len(t, *sent, 1)
	firstFrame := (*sent)[0]

	clock.advance(aecpTimeout + time.Millisecond)
	m.sweepTimeouts()

	require.Len(t, *sent, 2, "one retry should have been sent")
	assert.Equal(t, firstFrame, (*sent)[1], "retry must retransmit identical bytes")
	assert.Equal(t, 1, m.inflight.Len())

	_, common, body, err := parseEthernetAndCommon((*sent)[1])
	require.NoError(t, err)
	resp, err := parseAEM(common, body)
	require.NoError(t, err)
	resp.CommandType = CmdAcquireEntity
	resp.Status = AEMStatusSuccess

	var gotNotification Notification
	sink.notifCB = func(n Notification) { gotNotification = n }
	m.receiveAEM(resp, func(AEMFrame) (uint16, bool) { return 0, false })

	assert.Equal(t, KindResponseReceived, gotNotification.Kind)
	assert.Equal(t, NotificationHandle(7), gotNotification.Handle)
	assert.Equal(t, 0, m.inflight.Len())
}

// TestAECPTimeoutTerminal covers the second-timeout case: no further
// retry, a COMMAND_TIMEOUT notification, and the record removed.
func TestAECPTimeoutTerminal(t *testing.T) {
	clock := newFakeClock()
	m, sink, _ := newTestAECPMachine(t, clock)

	require.NoError(t, m.sendCommand(MAC{1}, 0x01, CmdLockEntity, DescriptorEntity, 0, nil, NotificationHandle(9), true))

	clock.advance(aecpTimeout + time.Millisecond)
	m.sweepTimeouts() // first timeout: retry

	var timeoutNotification *Notification
	sink.notifCB = func(n Notification) { timeoutNotification = &n }

	clock.advance(aecpTimeout + time.Millisecond)
	m.sweepTimeouts() // second timeout: terminal

	require.NotNil(t, timeoutNotification)
	assert.Equal(t, KindCommandTimeout, timeoutNotification.Kind)
	assert.Equal(t, NotificationHandle(9), timeoutNotification.Handle)
	assert.Equal(t, 0, m.inflight.Len())
}

// TestAECPUnsolicitedResponse covers an unsolicited response with no
// matching inflight record: it's handed to applyResponse and surfaced via
// KindUnsolicitedResponseReceived with NoNotification, never a panic.
func TestAECPUnsolicitedResponse(t *testing.T) {
	clock := newFakeClock()
	m, sink, _ := newTestAECPMachine(t, clock)

	var got Notification
	sink.notifCB = func(n Notification) { got = n }

	frame := BuildAEMResponse(AEMFrame{
		TargetEntityID: 0x01,
		CommandType:    CmdSetName,
		Unsolicited:    true,
		Status:         AEMStatusSuccess,
	})
	_, common, body, err := parseEthernetAndCommon(frame)
	require.NoError(t, err)
	resp, err := parseAEM(common, body)
	require.NoError(t, err)

	applied := false
	m.receiveAEM(resp, func(AEMFrame) (uint16, bool) { applied = true; return 0, false })

	assert.True(t, applied)
	assert.Equal(t, KindUnsolicitedResponseReceived, got.Kind)
	assert.Equal(t, NoNotification, got.Handle)
}

// TestAECPDualFire covers dual-fire case: an unsolicited
// response that also matches an outstanding inflight fires both
// RESPONSE_RECEIVED and UNSOLICITED_RESPONSE_RECEIVED.
func TestAECPDualFire(t *testing.T) {
	clock := newFakeClock()
	m, sink, sent := newTestAECPMachine(t, clock)

	require.NoError(t, m.sendCommand(MAC{1}, 0x01, CmdGetName, DescriptorEntity, 0, nil, NotificationHandle(3), true))
	_, common, body, err := parseEthernetAndCommon((*sent)[0])
	require.NoError(t, err)
	resp, err := parseAEM(common, body)
	require.NoError(t, err)
	resp.CommandType = CmdGetName
	resp.Unsolicited = true
	resp.Status = AEMStatusSuccess

	var kinds []NotificationKind
	sink.notifCB = func(n Notification) { kinds = append(kinds, n.Kind) }
	m.receiveAEM(resp, func(AEMFrame) (uint16, bool) { return 0, false })

	require.Len(t, kinds, 2)
	assert.Equal(t, KindResponseReceived, kinds[0])
	assert.Equal(t, KindUnsolicitedResponseReceived, kinds[1])
}

func TestAECPStartOperationTracksUntilTerminal(t *testing.T) {
	clock := newFakeClock()
	m, sink, sent := newTestAECPMachine(t, clock)

	startPayload := make([]byte, 4)
	putU16(startPayload[0:2], 0x0001) // operation_type
	require.NoError(t, m.sendCommand(MAC{1}, 0x01, CmdStartOperation, DescriptorMemoryObject, 0, startPayload, NotificationHandle(5), true))

	_, common, body, err := parseEthernetAndCommon((*sent)[0])
	require.NoError(t, err)
	resp, err := parseAEM(common, body)
	require.NoError(t, err)
	resp.CommandType = CmdStartOperation
	resp.Status = AEMStatusSuccess
	respPayload := make([]byte, 4)
	putU16(respPayload[0:2], 0x0001) // operation_type echoed back
	putU16(respPayload[2:4], 0x00aa) // operation_id assigned by the entity
	resp.Payload = respPayload

	applyResponse := func(f AEMFrame) (uint16, bool) {
		return getU16(f.Payload[2:4]), true
	}
	m.receiveAEM(resp, applyResponse)

	assert.True(t, m.IsActiveOperationWithHandle(NotificationHandle(5)))

	statusPayload := make([]byte, 6)
	putU16(statusPayload[0:2], 0x0001)
	putU16(statusPayload[2:4], 0x00aa)
	putU16(statusPayload[4:6], operationComplete)
	statusFrame := AEMFrame{
		TargetEntityID: 0x01,
		CommandType:    CmdOperationStatus,
		Unsolicited:    true,
		Status:         AEMStatusSuccess,
		Payload:        statusPayload,
	}
	var gotDone bool
	sink.notifCB = func(n Notification) {
		if n.CommandType == CmdOperationStatus {
			gotDone = true
		}
	}
	m.receiveAEM(statusFrame, func(AEMFrame) (uint16, bool) { return 0, false })

	assert.True(t, gotDone)
	assert.False(t, m.IsActiveOperationWithHandle(NotificationHandle(5)))
}

package avdecc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is a Transport stub that records every frame handed to
// SendFrame instead of touching a real socket.
type fakeTransport struct {
	mac  MAC
	sent [][]byte
}

func (t *fakeTransport) MACAddress() MAC { return t.mac }

func (t *fakeTransport) SendFrame(frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	t.sent = append(t.sent, cp)
	return nil
}

func newTestController(clock Clock) (*Controller, *fakeTransport) {
	tr := &fakeTransport{mac: MAC{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}}
	c := NewController(Config{Transport: tr, Clock: clock, LogLevel: LogVerbose})
	return c, tr
}

// buildAvailableFrame builds an ADP ENTITY_AVAILABLE frame from the given
// source MAC, the way a discovered entity's advertisement would arrive.
func buildAvailableFrame(t *testing.T, src MAC, adv Advertisement) []byte {
	t.Helper()
	frame, err := buildADP(ADPMessageEntityAvailable, adv)
	require.NoError(t, err)
	copy(frame[6:12], src[:])
	return frame
}

// TestNewControllerDerivesEntityIDFromMAC covers controller
// entity-id derivation: it must be deterministic given the transport's MAC,
// not a random or zero value.
func TestNewControllerDerivesEntityIDFromMAC(t *testing.T) {
	clock := newFakeClock()
	c, tr := newTestController(clock)

	assert.Equal(t, ControllerEntityID(tr.mac), c.EntityID())
	assert.NotZero(t, c.EntityID())
}

// TestControllerHandleFrameADPArrivalTriggersEnumeration covers the
// discovery-to-enumeration wiring: a brand-new entity's arrival must cause
// the facade to immediately send an ENTITY descriptor read.
func TestControllerHandleFrameADPArrivalTriggersEnumeration(t *testing.T) {
	clock := newFakeClock()
	c, tr := newTestController(clock)

	src := MAC{1, 2, 3, 4, 5, 6}
	frame := buildAvailableFrame(t, src, Advertisement{EntityID: 0x1234, AvailableIndex: 1, ValidTimeUnits: 5})
	c.HandleFrame(frame)

	require.Equal(t, 1, c.GetEndStationCount())
	e := c.GetEndStationByIndex(0)
	require.NotNil(t, e)
	assert.Equal(t, EUI64(0x1234), e.EntityID)
	assert.Equal(t, src, e.MAC)

	require.Len(t, tr.sent, 1, "arrival must trigger one READ_DESCRIPTOR command")
	_, common, body, err := parseEthernetAndCommon(tr.sent[0])
	require.NoError(t, err)
	cmd, err := parseAEM(common, body)
	require.NoError(t, err)
	assert.Equal(t, CmdReadDescriptor, cmd.CommandType)
	hdr, _, err := ParseReadDescriptorResponse(cmd.Payload)
	require.NoError(t, err)
	assert.Equal(t, DescriptorEntity, hdr.DescriptorType)
}

// TestControllerControllerAvailableAutoResponder covers the
// auto-responder: a CONTROLLER_AVAILABLE command received from an entity
// must be echoed back as a response with swapped MACs and the entity's own
// sequence-id, independent of any inflight record.
func TestControllerControllerAvailableAutoResponder(t *testing.T) {
	clock := newFakeClock()
	c, tr := newTestController(clock)

	entityMAC := MAC{9, 9, 9, 9, 9, 9}
	cmdFrame := BuildAEMCommand(AEMFrame{
		TargetEntityID:     c.EntityID(),
		ControllerEntityID: 0x99,
		SequenceID:         42,
		CommandType:        CmdControllerAvailable,
	})
	putEthernetHeader(cmdFrame, EthernetHeader{Dest: tr.mac, Source: entityMAC, EtherType: EtherTypeAVTP})

	c.HandleFrame(cmdFrame)

	require.Len(t, tr.sent, 1)
	eth, common, body, err := parseEthernetAndCommon(tr.sent[0])
	require.NoError(t, err)
	assert.Equal(t, entityMAC, eth.Dest, "reply goes back to the entity that asked")
	assert.Equal(t, tr.mac, eth.Source)
	assert.Equal(t, uint8(AECPMessageAEMResponse), common.MessageType)

	resp, err := parseAEM(common, body)
	require.NoError(t, err)
	assert.Equal(t, uint16(42), resp.SequenceID)
	assert.Equal(t, AEMStatusSuccess, resp.Status)
}

// TestControllerEnumerationDrivenThroughReadDescriptorResponse covers the
// full C8 wiring: a successful READ_DESCRIPTOR response delivered through
// HandleFrame must reach the enumeration driver's onDescriptor, store the
// descriptor on the entity, and (since this entity has zero configurations)
// complete enumeration.
func TestControllerEnumerationDrivenThroughReadDescriptorResponse(t *testing.T) {
	clock := newFakeClock()
	c, tr := newTestController(clock)

	src := MAC{1, 2, 3, 4, 5, 6}
	c.HandleFrame(buildAvailableFrame(t, src, Advertisement{EntityID: 0x1234, AvailableIndex: 1, ValidTimeUnits: 5}))
	require.Len(t, tr.sent, 1)

	_, common, body, err := parseEthernetAndCommon(tr.sent[0])
	require.NoError(t, err)
	cmd, err := parseAEM(common, body)
	require.NoError(t, err)

	respPayload := append(BuildReadDescriptorPayload(ReadDescriptorPayload{DescriptorType: DescriptorEntity}), buildEntityRaw(0)...)
	respFrame := BuildAEMResponse(AEMFrame{
		TargetEntityID:     0x1234,
		ControllerEntityID: c.EntityID(),
		SequenceID:         cmd.SequenceID,
		CommandType:        CmdReadDescriptor,
		Status:             AEMStatusSuccess,
		Payload:            respPayload,
	})
	putEthernetHeader(respFrame, EthernetHeader{Dest: tr.mac, Source: src, EtherType: EtherTypeAVTP})

	var completions int
	c.sink.notifCB = func(n Notification) {
		if n.Kind == KindEndStationReadCompleted {
			completions++
		}
	}

	c.HandleFrame(respFrame)

	e := c.GetEndStationByIndex(0)
	require.NotNil(t, e)
	assert.Equal(t, 1, e.DescriptorCount())
	assert.True(t, e.enumerated)
	assert.Equal(t, 1, completions)
}

// TestControllerAddressAccessCommandResponse covers the full
// Address-Access path: SendAACommand registers an inflight record in the
// same AECP table AEM commands use, and a matching
// ADDRESS_ACCESS_RESPONSE delivered through HandleFrame is matched by
// sequence-id, removed from the inflight table, and recorded on the
// target Entity for later retrieval.
func TestControllerAddressAccessCommandResponse(t *testing.T) {
	clock := newFakeClock()
	c, tr := newTestController(clock)

	src := MAC{1, 2, 3, 4, 5, 6}
	c.HandleFrame(buildAvailableFrame(t, src, Advertisement{EntityID: 0x1234, AvailableIndex: 1, ValidTimeUnits: 5}))
	require.Len(t, tr.sent, 1, "arrival triggers an ENTITY READ_DESCRIPTOR, not AA")

	tlv := []byte{0x00, 0x01, 0xca, 0xfe}
	require.NoError(t, c.SendAACommand(0x1234, tlv, NotificationHandle(7)))
	require.Len(t, tr.sent, 2)

	_, common, body, err := parseEthernetAndCommon(tr.sent[1])
	require.NoError(t, err)
	require.Equal(t, uint8(AECPMessageAddressAccessCommand), common.MessageType)
	cmd, err := parseAA(common, body)
	require.NoError(t, err)
	assert.True(t, c.IsInflightCommandWithNotificationID(NotificationHandle(7)))

	var received Notification
	c.sink.notifCB = func(n Notification) { received = n }

	respFrame := BuildAAResponse(AAFrame{
		TargetEntityID:     0x1234,
		ControllerEntityID: c.EntityID(),
		SequenceID:         cmd.SequenceID,
		Status:             AEMStatusSuccess,
		TLV:                []byte{0x00, 0x01, 0xde, 0xad},
	})
	putEthernetHeader(respFrame, EthernetHeader{Dest: tr.mac, Source: src, EtherType: EtherTypeAVTP})
	c.HandleFrame(respFrame)

	assert.False(t, c.IsInflightCommandWithNotificationID(NotificationHandle(7)))
	assert.Equal(t, KindResponseReceived, received.Kind)
	assert.Equal(t, NotificationHandle(7), received.Handle)

	e := c.GetEndStationByIndex(0)
	require.NotNil(t, e)
	stored, ok := e.AAResponse(cmd.SequenceID)
	require.True(t, ok)
	assert.Equal(t, []byte{0x00, 0x01, 0xde, 0xad}, stored.TLV)
}

// TestControllerSendReadDescriptorCommandNoSuchEntity covers the
// ErrNoSuchEntity error kind returned by SendReadDescriptorCommand and
// SendAEMCommand when they address an entity-id the controller has never
// seen.
func TestControllerSendReadDescriptorCommandNoSuchEntity(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestController(clock)

	err := c.SendReadDescriptorCommand(0xdead, 0, DescriptorEntity, 0, NotificationHandle(1))
	assert.ErrorIs(t, err, ErrNoSuchEntity)

	err = c.SendAEMCommand(0xdead, CmdAcquireEntity, DescriptorEntity, 0, nil, NotificationHandle(1))
	assert.ErrorIs(t, err, ErrNoSuchEntity)
}

// TestControllerDiscoverSendsEntityDiscover covers host-facing
// targeted discovery call.
func TestControllerDiscoverSendsEntityDiscover(t *testing.T) {
	clock := newFakeClock()
	c, tr := newTestController(clock)

	require.NoError(t, c.Discover(0x1234))
	require.Len(t, tr.sent, 1)

	_, common, body, err := parseEthernetAndCommon(tr.sent[0])
	require.NoError(t, err)
	assert.Equal(t, SubtypeADP, common.Subtype)
	adv, err := parseADP(EthernetHeader{}, common, body)
	require.NoError(t, err)
	assert.Equal(t, EUI64(0x1234), adv.EntityID)
}

// TestControllerTickDrainsAECPTimeout covers the Tick() ordering: a
// timed-out AECP command surfaces a COMMAND_TIMEOUT notification by the
// second Tick() after its deadline, driven entirely through the facade
// rather than the machine directly.
func TestControllerTickDrainsAECPTimeout(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestController(clock)

	src := MAC{1, 2, 3, 4, 5, 6}
	c.HandleFrame(buildAvailableFrame(t, src, Advertisement{EntityID: 0x1234, AvailableIndex: 1, ValidTimeUnits: 5}))

	var timedOut bool
	c.sink.notifCB = func(n Notification) {
		if n.Kind == KindCommandTimeout {
			timedOut = true
		}
	}

	clock.advance(aecpTimeout + time.Millisecond)
	c.Tick() // first timeout: retry, no notification yet
	assert.False(t, timedOut)

	clock.advance(aecpTimeout + time.Millisecond)
	c.Tick() // second timeout: terminal
	assert.True(t, timedOut)
}

package avdecc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildEntityRaw(configurationsCount uint16) []byte {
	raw := make([]byte, 306)
	putU16(raw[304:306], configurationsCount)
	return raw
}

func buildConfigurationRaw(counts map[DescriptorType]uint16) []byte {
	raw := make([]byte, 70+4*len(counts))
	putU16(raw[66:68], uint16(len(counts)))
	pos := 70
	// deterministic order for the test: iterate a fixed slice, not the map
	for _, typ := range []DescriptorType{DescriptorStreamInput, DescriptorStreamOutput} {
		if cnt, ok := counts[typ]; ok {
			putU16(raw[pos:pos+2], uint16(typ))
			putU16(raw[pos+2:pos+4], cnt)
			pos += 4
		}
	}
	return raw
}

func TestEnumerationDriverWalksEntityThenConfigurations(t *testing.T) {
	clock := newFakeClock()
	entities := newEntitySet()
	sink := NewSink(nil, nil, nil, LogVerbose)
	drv := newEnumerationDriver(entities, sink, clock)

	var sentKeys []DescriptorKey
	drv.sendRead = func(e *Entity, key DescriptorKey) error {
		sentKeys = append(sentKeys, key)
		return nil
	}

	e := newEntity(0x01, MAC{1})
	entities.add(e)

	drv.start(e)
	require.Equal(t, []DescriptorKey{{DescriptorEntity, 0}}, sentKeys)
	require.Len(t, e.enumInflight, 1)
	require.Empty(t, e.enumPending)

	entityDesc := e.store(DescriptorKey{DescriptorEntity, 0}, buildEntityRaw(2))
	drv.onDescriptor(e, entityDesc)

	// both CONFIGURATION descriptors are same-type, so both go out in one batch
	require.Equal(t, []DescriptorKey{
		{DescriptorEntity, 0},
		{DescriptorConfiguration, 0},
		{DescriptorConfiguration, 1},
	}, sentKeys)
	assert.Len(t, e.enumInflight, 2)
	assert.Empty(t, e.enumPending)

	cfg0 := e.store(DescriptorKey{DescriptorConfiguration, 0}, buildConfigurationRaw(map[DescriptorType]uint16{DescriptorStreamInput: 1}))
	drv.onDescriptor(e, cfg0)
	// CONFIGURATION(1) is still outstanding, so the new STREAM_INPUT(0)
	// child stays queued rather than being sent early: at most one
	// inflight batch per entity at a time.
	assert.NotContains(t, sentKeys, DescriptorKey{DescriptorStreamInput, 0})
	assert.Len(t, e.enumInflight, 1)
	assert.Equal(t, []DescriptorKey{{DescriptorStreamInput, 0}}, e.enumPending)

	cfg1 := e.store(DescriptorKey{DescriptorConfiguration, 1}, buildConfigurationRaw(nil))
	drv.onDescriptor(e, cfg1)

	require.Contains(t, sentKeys, DescriptorKey{DescriptorStreamInput, 0})
	assert.Empty(t, e.enumPending)
	assert.Len(t, e.enumInflight, 1)

	streamIn := e.store(DescriptorKey{DescriptorStreamInput, 0}, nil)
	drv.onDescriptor(e, streamIn)

	assert.Empty(t, e.enumPending)
	assert.Empty(t, e.enumInflight)
	assert.True(t, e.enumerated, "both queues drained, so completion fires as soon as the last response is processed")
}

func TestEnumerationDriverCompletionFiresOnce(t *testing.T) {
	clock := newFakeClock()
	entities := newEntitySet()
	sink := NewSink(nil, nil, nil, LogVerbose)
	drv := newEnumerationDriver(entities, sink, clock)
	drv.sendRead = func(*Entity, DescriptorKey) error { return nil }

	var completions int
	sink.notifCB = func(n Notification) {
		if n.Kind == KindEndStationReadCompleted {
			completions++
		}
	}

	e := newEntity(0x01, MAC{1})
	entities.add(e)
	drv.start(e)
	entityDesc := e.store(DescriptorKey{DescriptorEntity, 0}, buildEntityRaw(0))
	drv.onDescriptor(e, entityDesc)
	drv.tick()
	drv.tick()
	drv.tick()

	assert.Equal(t, 1, completions)
}

func TestEnumerationDriverTimeoutDropsWithoutRetry(t *testing.T) {
	clock := newFakeClock()
	entities := newEntitySet()
	sink := NewSink(nil, nil, nil, LogVerbose)
	drv := newEnumerationDriver(entities, sink, clock)
	drv.sendRead = func(*Entity, DescriptorKey) error { return nil }

	e := newEntity(0x01, MAC{1})
	entities.add(e)
	drv.start(e)
	require.Len(t, e.enumInflight, 1)

	clock.advance(descriptorReadTimeout + time.Millisecond)
	drv.tick()

	assert.Empty(t, e.enumInflight)
	assert.Empty(t, e.enumPending)
}

func TestEnumerationDriverReEnumerationRestartsFromEntity(t *testing.T) {
	clock := newFakeClock()
	entities := newEntitySet()
	sink := NewSink(nil, nil, nil, LogVerbose)
	drv := newEnumerationDriver(entities, sink, clock)
	var sentKeys []DescriptorKey
	drv.sendRead = func(e *Entity, key DescriptorKey) error {
		sentKeys = append(sentKeys, key)
		return nil
	}

	e := newEntity(0x01, MAC{1})
	entities.add(e)
	drv.start(e)
	entityDesc := e.store(DescriptorKey{DescriptorEntity, 0}, buildEntityRaw(0))
	drv.onDescriptor(e, entityDesc)
	drv.tick()
	require.True(t, e.enumerated)

	e.resetTree()
	sentKeys = nil
	drv.start(e)

	assert.False(t, e.enumerated)
	assert.Equal(t, []DescriptorKey{{DescriptorEntity, 0}}, sentKeys)
}

package ratelimit

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLog_BoundedAndOrdered(t *testing.T) {
	log := NewEventLog(3)

	// Append keeps up to max*eventLogHeadroom events until cleanup truncates.
	for i := 0; i < 15; i++ {
		log.Append(newEvent(EventLimited, fmt.Sprintf("id-%d", i), KindIP, epoch, nil))
	}

	events := log.Events()
	require.Len(t, events, 3*eventLogHeadroom)
	assert.Equal(t, "id-3", events[0].Identifier)
	assert.Equal(t, "id-14", events[len(events)-1].Identifier)
	assert.NotEqual(t, events[0].ID, events[1].ID)

	assert.Equal(t, 9, log.Truncate(3))
	events = log.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "id-12", events[0].Identifier)
	assert.Equal(t, "id-14", events[2].Identifier)
}

func TestEventLog_Truncate(t *testing.T) {
	log := NewEventLog(10)
	for i := 0; i < 6; i++ {
		log.Append(newEvent(EventExhausted, fmt.Sprintf("id-%d", i), KindUser, epoch, nil))
	}

	assert.Equal(t, 4, log.Truncate(2))
	assert.Equal(t, 2, log.Len())
	assert.Equal(t, 0, log.Truncate(5))
	assert.Equal(t, "id-5", log.Events()[1].Identifier)
}

func TestEventLog_EventsReturnsCopy(t *testing.T) {
	log := NewEventLog(5)
	log.Append(newEvent(EventLimited, "a", KindUser, epoch, nil))

	events := log.Events()
	events[0].Identifier = "changed"
	assert.Equal(t, "a", log.Events()[0].Identifier)
}

func TestEventLog_Subscribe(t *testing.T) {
	log := NewEventLog(0)

	var got []EventType
	unsubscribe := log.Subscribe(func(ev Event) {
		got = append(got, ev.Type)
	})

	log.Append(
		newEvent(EventLimited, "a", KindUser, epoch, nil),
		newEvent(EventExhausted, "a", KindUser, epoch, nil),
	)
	assert.Equal(t, []EventType{EventLimited, EventExhausted}, got)
	assert.Equal(t, 0, log.Len(), "zero max retains nothing")

	unsubscribe()
	unsubscribe()
	log.Append(newEvent(EventRecovered, "a", KindUser, epoch, nil))
	assert.Len(t, got, 2)
}

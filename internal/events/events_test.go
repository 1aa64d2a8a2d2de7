package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()

	var got []Event
	bus.Subscribe(ReminderCreated, func(e Event) {
		got = append(got, e)
	})

	bus.Publish(Event{Type: ReminderCreated, Row: 5, Text: "Купить молоко"})
	bus.Publish(Event{Type: ReminderFired, Row: 5})

	assert.Len(t, got, 1)
	assert.Equal(t, 5, got[0].Row)
	assert.Equal(t, "Купить молоко", got[0].Text)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus()

	calls := 0
	bus.Subscribe(StatusChanged, func(Event) { calls++ })
	bus.Subscribe(StatusChanged, func(Event) { calls++ })

	bus.Publish(Event{Type: StatusChanged, Row: 2, Detail: "done"})

	assert.Equal(t, 2, calls)
}

func TestBus_NoSubscribers(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() {
		bus.Publish(Event{Type: TranscriptionDone})
	})
}

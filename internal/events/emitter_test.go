package events

import (
	"testing"
)

func TestEmitDeliversInRegistrationOrder(t *testing.T) {
	emitter := NewEmitter()

	var order []int
	emitter.On("scene", func(payload interface{}) { order = append(order, 1) })
	emitter.On("scene", func(payload interface{}) { order = append(order, 2) })
	emitter.On("scene", func(payload interface{}) { order = append(order, 3) })

	emitter.Emit("scene", nil)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("Handlers ran out of order: %v", order)
	}
}

func TestEmitOnlyMatchingEvent(t *testing.T) {
	emitter := NewEmitter()

	calls := 0
	emitter.On("connected", func(payload interface{}) { calls++ })
	emitter.On("disconnected", func(payload interface{}) { calls += 10 })

	emitter.Emit("connected", nil)

	if calls != 1 {
		t.Errorf("Expected only the matching handler to run, calls=%d", calls)
	}
}

func TestOffRemovesSubscription(t *testing.T) {
	emitter := NewEmitter()

	calls := 0
	id := emitter.On("tick", func(payload interface{}) { calls++ })
	emitter.On("tick", func(payload interface{}) { calls += 10 })

	emitter.Emit("tick", nil)
	emitter.Off(id)
	emitter.Emit("tick", nil)

	if calls != 21 {
		t.Errorf("Expected removed handler to be skipped, calls=%d", calls)
	}
}

func TestEmitPassesPayload(t *testing.T) {
	emitter := NewEmitter()

	var got interface{}
	emitter.On("update", func(payload interface{}) { got = payload })

	emitter.Emit("update", "hello")

	if got != "hello" {
		t.Errorf("Expected payload to reach handler, got %v", got)
	}
}

func TestEmitWithNoSubscribersIsNoOp(t *testing.T) {
	emitter := NewEmitter()
	emitter.Emit("nobody-listening", nil)
}

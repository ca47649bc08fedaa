package services_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/lorrc/liveops/internal/core/services"
	"github.com/stretchr/testify/assert"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcher_HandlerIsolation(t *testing.T) {
	d := services.NewDispatcher(discardLogger())

	var h1Called, h2Called bool
	d.On("call:update", func(json.RawMessage) {
		h1Called = true
		panic("boom")
	})
	d.On("call:update", func(json.RawMessage) {
		h2Called = true
	})

	assert.NotPanics(t, func() {
		d.Emit("call:update", json.RawMessage(`{}`))
	})
	assert.True(t, h1Called)
	assert.True(t, h2Called)
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	d := services.NewDispatcher(discardLogger())

	var removed, kept int
	sub := d.On("ticket:update", func(json.RawMessage) { removed++ })
	d.On("ticket:update", func(json.RawMessage) { kept++ })

	d.Emit("ticket:update", nil)
	sub.Unsubscribe()
	d.Emit("ticket:update", nil)

	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, kept)
	assert.Equal(t, 1, d.HandlerCount("ticket:update"))
}

func TestDispatcher_Off(t *testing.T) {
	d := services.NewDispatcher(discardLogger())

	calls := 0
	sub := d.On("org:update", func(json.RawMessage) { calls++ })
	d.Off(sub)
	d.Off(sub)
	d.Emit("org:update", nil)

	assert.Zero(t, calls)
	assert.Zero(t, d.HandlerCount("org:update"))
}

func TestDispatcher_RegistrationOrder(t *testing.T) {
	d := services.NewDispatcher(discardLogger())

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		d.On("dashboard:update", func(json.RawMessage) { order = append(order, i) })
	}
	d.Emit("dashboard:update", nil)

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestDispatcher_DuplicateRegistration(t *testing.T) {
	d := services.NewDispatcher(discardLogger())

	calls := 0
	handler := func(json.RawMessage) { calls++ }
	first := d.On("call:end", handler)
	d.On("call:end", handler)

	d.Emit("call:end", nil)
	assert.Equal(t, 2, calls)

	first.Unsubscribe()
	d.Emit("call:end", nil)
	assert.Equal(t, 3, calls)
}

func TestDispatcher_EmitWithoutHandlers(t *testing.T) {
	d := services.NewDispatcher(discardLogger())
	assert.NotPanics(t, func() {
		d.Emit("nobody:listens", json.RawMessage(`{"x":1}`))
	})
}

func TestDispatcher_HandlerMayUnsubscribeDuringEmit(t *testing.T) {
	d := services.NewDispatcher(discardLogger())

	var second int
	var sub interface{ Unsubscribe() }
	sub = d.On("ai:response", func(json.RawMessage) { sub.Unsubscribe() })
	d.On("ai:response", func(json.RawMessage) { second++ })

	d.Emit("ai:response", nil)
	d.Emit("ai:response", nil)

	assert.Equal(t, 2, second)
	assert.Equal(t, 1, d.HandlerCount("ai:response"))
}

func TestDispatcher_PassesData(t *testing.T) {
	d := services.NewDispatcher(discardLogger())

	var got json.RawMessage
	d.On("call:update", func(data json.RawMessage) { got = data })
	d.Emit("call:update", json.RawMessage(`{"id":"A"}`))

	assert.JSONEq(t, `{"id":"A"}`, string(got))
}

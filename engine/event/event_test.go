package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatcher_SubscribeDispatchUnsubscribe(t *testing.T) {
	d := NewDispatcher[string]()

	var got []string
	unsub := d.Subscribe(func(s string) { got = append(got, "a:"+s) })
	d.Subscribe(func(s string) { got = append(got, "b:"+s) })

	d.Dispatch("x")
	assert.Equal(t, []string{"a:x", "b:x"}, got)

	unsub()
	unsub()
	assert.Equal(t, 1, d.Len())

	got = nil
	d.Dispatch("y")
	assert.Equal(t, []string{"b:y"}, got)
}

func TestDispatcher_UnsubscribeDuringDispatch(t *testing.T) {
	d := NewDispatcher[int]()

	calls := 0
	var unsub func()
	unsub = d.Subscribe(func(int) {
		calls++
		unsub()
	})

	d.Dispatch(1)
	d.Dispatch(2)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, d.Len())
}

func TestDispatcher_NilHandler(t *testing.T) {
	d := NewDispatcher[int]()
	unsub := d.Subscribe(nil)
	unsub()
	assert.Equal(t, 0, d.Len())
}

package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type ping struct{ N int }
type pong struct{}

func TestBusDispatchByType(t *testing.T) {
	b := New()
	var a, c []int
	unsubA := On(b, func(_ context.Context, p ping) { a = append(a, p.N) })
	On(b, func(_ context.Context, p ping) { c = append(c, p.N) })
	pongs := 0
	On(b, func(_ context.Context, _ pong) { pongs++ })

	Emit(context.Background(), b, ping{N: 1})
	unsubA()
	unsubA()
	Emit(context.Background(), b, ping{N: 2})
	Emit(context.Background(), b, pong{})

	require.Equal(t, []int{1}, a)
	require.Equal(t, []int{1, 2}, c)
	require.Equal(t, 1, pongs)
}

func TestNilBusDropsEvents(t *testing.T) {
	var b *Bus
	require.NotPanics(t, func() { Emit(context.Background(), b, ping{}) })
}

func TestGlobalBus(t *testing.T) {
	t.Cleanup(func() { Use(nil) })

	Use(nil)
	unsub := Subscribe(func(context.Context, ping) {})
	unsub()
	Publish(context.Background(), ping{})

	Use(New())
	got := 0
	Subscribe(func(_ context.Context, p ping) { got += p.N })
	Publish(context.Background(), ping{N: 3})
	require.Equal(t, 3, got)
}

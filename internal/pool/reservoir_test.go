package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConn(ep Endpoint) *Connection {
	return newConnection(ep, &fakeConn{})
}

func TestReservoir_LIFOOrder(t *testing.T) {
	ep := testEndpoint()
	r := &reservoir{order: LIFO}
	c1, c2, c3 := newTestConn(ep), newTestConn(ep), newTestConn(ep)
	r.offer(c1)
	r.offer(c2)
	r.offer(c3)

	assert.Equal(t, 3, r.len())
	got, ok := r.take()
	require.True(t, ok)
	assert.Same(t, c3, got)
	got, ok = r.take()
	require.True(t, ok)
	assert.Same(t, c2, got)
	got, ok = r.take()
	require.True(t, ok)
	assert.Same(t, c1, got)
	got, ok = r.take()
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestReservoir_FIFOOrder(t *testing.T) {
	ep := testEndpoint()
	r := &reservoir{order: FIFO}
	c1, c2, c3 := newTestConn(ep), newTestConn(ep), newTestConn(ep)
	r.offer(c1)
	r.offer(c2)
	r.offer(c3)

	got, ok := r.take()
	require.True(t, ok)
	assert.Same(t, c1, got)
	got, ok = r.take()
	require.True(t, ok)
	assert.Same(t, c2, got)
	got, ok = r.take()
	require.True(t, ok)
	assert.Same(t, c3, got)
}

func TestReservoir_TakeAll(t *testing.T) {
	ep := testEndpoint()
	r := &reservoir{order: LIFO}
	r.offer(newTestConn(ep))
	r.offer(newTestConn(ep))

	all := r.takeAll()
	assert.Len(t, all, 2)
	assert.Equal(t, 0, r.len())
	_, ok := r.take()
	assert.False(t, ok)
}

func TestReservoir_TakeEmpty(t *testing.T) {
	r := &reservoir{order: FIFO}
	_, ok := r.take()
	assert.False(t, ok)
	assert.Equal(t, 0, r.len())
}

// ABOUTME: Tests for the event multiplexer ordering and shutdown behaviour
// ABOUTME: Uses an in-memory Conn that records frames as JSON

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	frames   []string
	control  []int
	failAt   int // fail the nth WriteJSON (1-based); 0 never fails
	writes   int
	blockFor time.Duration
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) WriteJSON(v any) error {
	if c.blockFor > 0 {
		time.Sleep(c.blockFor)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	if c.failAt > 0 && c.writes == c.failAt {
		return errors.New("broken pipe")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.frames = append(c.frames, string(data))
	return nil
}

func (c *fakeConn) WriteMessage(messageType int, _ []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.control = append(c.control, messageType)
	return nil
}

func (c *fakeConn) Frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.frames...)
}

func (c *fakeConn) Control() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.control...)
}

func startMux(t *testing.T, conn Conn, opts Options) (*Multiplexer, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	m := New(conn, opts)
	go func() { _ = m.Run(ctx) }()
	t.Cleanup(cancel)
	return m, cancel
}

func TestMultiplexer_WireFormat(t *testing.T) {
	conn := &fakeConn{}
	m, _ := startMux(t, conn, Options{})
	ctx := context.Background()

	require.NoError(t, m.Emit(ctx, TextChunk("hello")))
	require.NoError(t, m.Emit(ctx, Plot("<html></html>")))
	require.NoError(t, m.Emit(ctx, Refresh()))
	require.NoError(t, m.Emit(ctx, Audio([]byte("mp3"), "mp3")))
	require.NoError(t, m.Emit(ctx, Done()))

	frames := conn.Frames()
	require.Len(t, frames, 5)
	assert.JSONEq(t, `{"type":"chat.message","payload":{"content":"hello"}}`, frames[0])
	assert.JSONEq(t, `{"type":"chat.plot","payload":{"html":"<html></html>"}}`, frames[1])
	assert.JSONEq(t, `{"type":"data.refresh","payload":{}}`, frames[2])
	assert.JSONEq(t, `{"type":"chat.audio","payload":{"audio":"bXAz","format":"mp3"}}`, frames[3])
	assert.JSONEq(t, `{"type":"chat.done","payload":{}}`, frames[4])
}

func TestMultiplexer_PreservesCallOrder(t *testing.T) {
	conn := &fakeConn{}
	m, _ := startMux(t, conn, Options{})
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		require.NoError(t, m.Emit(ctx, TextChunk(fmt.Sprintf("chunk-%d", i))))
	}

	frames := conn.Frames()
	require.Len(t, frames, 50)
	for i, f := range frames {
		assert.Contains(t, f, fmt.Sprintf(`"chunk-%d"`, i))
	}
}

func TestMultiplexer_ConcurrentEmittersAllDelivered(t *testing.T) {
	conn := &fakeConn{}
	m, _ := startMux(t, conn, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Emit(ctx, Refresh()))
		}()
	}
	wg.Wait()

	assert.Len(t, conn.Frames(), 10)
}

func TestMultiplexer_EmitBlocksUntilWritten(t *testing.T) {
	conn := &fakeConn{blockFor: 50 * time.Millisecond}
	m, _ := startMux(t, conn, Options{})

	start := time.Now()
	require.NoError(t, m.Emit(context.Background(), TextChunk("slow")))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Len(t, conn.Frames(), 1)
}

func TestMultiplexer_WriteErrorStopsWriter(t *testing.T) {
	conn := &fakeConn{failAt: 2}
	m, _ := startMux(t, conn, Options{})
	ctx := context.Background()

	require.NoError(t, m.Emit(ctx, TextChunk("one")))
	err := m.Emit(ctx, TextChunk("two"))
	require.Error(t, err)

	<-m.Done()
	assert.ErrorIs(t, m.Emit(ctx, TextChunk("three")), ErrClosed)
	assert.Error(t, m.Err())
}

func TestMultiplexer_CloseSendsCloseFrame(t *testing.T) {
	conn := &fakeConn{}
	m, _ := startMux(t, conn, Options{})

	m.Close()
	m.Close()

	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("writer did not stop after Close")
	}
	assert.Equal(t, []int{websocket.CloseMessage}, conn.Control())
	assert.ErrorIs(t, m.Emit(context.Background(), Done()), ErrClosed)
}

func TestMultiplexer_ContextCancelStopsWriter(t *testing.T) {
	conn := &fakeConn{}
	m, cancel := startMux(t, conn, Options{})

	cancel()
	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("writer did not stop on cancel")
	}
	assert.ErrorIs(t, m.Emit(context.Background(), Done()), ErrClosed)
}

func TestMultiplexer_EmitHonorsCallerContext(t *testing.T) {
	conn := &fakeConn{}
	m := New(conn, Options{}) // writer never started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Emit(ctx, Done()), context.DeadlineExceeded)
}

func TestMultiplexer_Pings(t *testing.T) {
	conn := &fakeConn{}
	startMux(t, conn, Options{PingInterval: 10 * time.Millisecond})

	assert.Eventually(t, func() bool {
		for _, c := range conn.Control() {
			if c == websocket.PingMessage {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestEmitterFunc(t *testing.T) {
	var got []Event
	e := EmitterFunc(func(_ context.Context, ev Event) error {
		got = append(got, ev)
		return nil
	})
	require.NoError(t, e.Emit(context.Background(), Done()))
	assert.Equal(t, []Event{Done()}, got)
}

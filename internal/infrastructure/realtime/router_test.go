package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct{ closed atomic.Int32 }

func (f *fakeStream) Close() { f.closed.Add(1) }

// pair returns the server side of a live websocket plus the dialed client.
func pair(t *testing.T, userID string) (*Connection, *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- ws
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case ws := <-conns:
		return NewConnection(userID, ws), client
	case <-time.After(2 * time.Second):
		t.Fatal("upgrade timed out")
		return nil, nil
	}
}

func TestAttachReplacesPreviousSession(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	first, _ := pair(t, "u1")
	r.Attach(first)
	s := &fakeStream{}
	require.True(t, r.Follow(first, "u1_u2", s))

	second, _ := pair(t, "u1")
	r.Attach(second)

	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("previous session not closed")
	}
	assert.EqualValues(t, 1, s.closed.Load())
	assert.Equal(t, 1, r.Sessions())
	assert.False(t, r.Detach(first), "stale session is not current")
	assert.True(t, r.Detach(second))
}

func TestFollowReplaceAndUnfollow(t *testing.T) {
	r := NewRouter()
	defer r.Close()
	conn, _ := pair(t, "u1")
	r.Attach(conn)

	a, b := &fakeStream{}, &fakeStream{}
	require.True(t, r.Follow(conn, "c1", a))
	require.True(t, r.Follow(conn, "c1", b))
	assert.EqualValues(t, 1, a.closed.Load())
	assert.Equal(t, []string{"c1"}, r.Following(conn))

	assert.True(t, r.Unfollow(conn, "c1"))
	assert.EqualValues(t, 1, b.closed.Load())
	assert.False(t, r.Unfollow(conn, "c1"))
	assert.Empty(t, r.Following(conn))
}

func TestFollowUnknownSessionClosesStream(t *testing.T) {
	r := NewRouter()
	conn, _ := pair(t, "u1")
	s := &fakeStream{}
	assert.False(t, r.Follow(conn, "c1", s))
	assert.EqualValues(t, 1, s.closed.Load())
}

func TestDetachClosesStreams(t *testing.T) {
	r := NewRouter()
	conn, _ := pair(t, "u1")
	r.Attach(conn)
	s1, s2 := &fakeStream{}, &fakeStream{}
	r.Follow(conn, "c1", s1)
	r.Follow(conn, "c2", s2)

	r.Release(conn, "c2", s2)
	assert.True(t, r.Detach(conn))
	assert.EqualValues(t, 1, s1.closed.Load())
	assert.EqualValues(t, 0, s2.closed.Load(), "released stream is not closed by the router")
	assert.Zero(t, r.Sessions())
}

func TestSendAfterCloseFails(t *testing.T) {
	conn, _ := pair(t, "u1")
	conn.Start()
	conn.Close(websocket.CloseNormalClosure, "bye")
	assert.ErrorIs(t, conn.Send([]byte("x")), ErrConnectionClosed)
	assert.ErrorIs(t, conn.SendJSON(map[string]string{"a": "b"}), ErrConnectionClosed)
}

package realtime

import (
	"sync"
)

// CloseSessionReplaced is sent to a socket pushed out by a newer one of the same user.
const CloseSessionReplaced = 4001

// Stream is a live feed owned by a session; the router closes it when the session ends.
type Stream interface {
	Close()
}

// Router coordinates websocket sessions and the conversation streams each one follows.
// It keeps one active Connection per user, which makes per-user presence and
// per-session presence the same thing.
type Router struct {
	mu           sync.Mutex
	sessions     map[string]*Connection       // sessionID -> connection
	userSessions map[string]string            // userID -> sessionID
	streams      map[string]map[string]Stream // sessionID -> conversationID -> stream
}

// NewRouter constructs an initialized Router.
func NewRouter() *Router {
	return &Router{
		sessions:     make(map[string]*Connection),
		userSessions: make(map[string]string),
		streams:      make(map[string]map[string]Stream),
	}
}

// Attach registers a connection for the given user. If a previous session exists,
// it is removed and closed after the swap to enforce one active socket per user.
func (r *Router) Attach(conn *Connection) {
	var previous *Connection
	var stale []Stream

	r.mu.Lock()
	if existingID, ok := r.userSessions[conn.UserID]; ok {
		if existing := r.sessions[existingID]; existing != nil {
			previous = existing
			stale = r.detachLocked(existingID)
		}
	}

	r.sessions[conn.ID] = conn
	r.userSessions[conn.UserID] = conn.ID
	r.streams[conn.ID] = make(map[string]Stream)
	r.mu.Unlock()

	conn.Start()

	closeAll(stale)
	if previous != nil {
		previous.Close(CloseSessionReplaced, "session replaced")
	}
}

// Detach removes a connection and stops its streams. It reports whether conn was still
// the user's current session.
func (r *Router) Detach(conn *Connection) bool {
	r.mu.Lock()
	current := r.userSessions[conn.UserID] == conn.ID
	stale := r.detachLocked(conn.ID)
	r.mu.Unlock()
	closeAll(stale)
	return current
}

// Follow attaches stream to the session under conversationID, replacing (and closing)
// any previous stream for it. A stream for an untracked session is closed at once.
func (r *Router) Follow(conn *Connection, conversationID string, stream Stream) bool {
	r.mu.Lock()
	streams, ok := r.streams[conn.ID]
	if !ok {
		r.mu.Unlock()
		stream.Close()
		return false
	}
	previous := streams[conversationID]
	streams[conversationID] = stream
	r.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
	return true
}

// Unfollow stops the session's stream for conversationID.
func (r *Router) Unfollow(conn *Connection, conversationID string) bool {
	r.mu.Lock()
	stream := r.streams[conn.ID][conversationID]
	delete(r.streams[conn.ID], conversationID)
	r.mu.Unlock()

	if stream == nil {
		return false
	}
	stream.Close()
	return true
}

// Release forgets stream without closing it, if it is still the one registered.
// Used when a stream ends on its own.
func (r *Router) Release(conn *Connection, conversationID string, stream Stream) {
	r.mu.Lock()
	if r.streams[conn.ID][conversationID] == stream {
		delete(r.streams[conn.ID], conversationID)
	}
	r.mu.Unlock()
}

// Following lists the conversations the session currently streams.
func (r *Router) Following(conn *Connection) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.streams[conn.ID]))
	for id := range r.streams[conn.ID] {
		out = append(out, id)
	}
	return out
}

// Sessions returns the number of attached connections.
func (r *Router) Sessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close terminates all tracked connections and clears router state.
func (r *Router) Close() {
	r.mu.Lock()
	sessions := make([]*Connection, 0, len(r.sessions))
	var stale []Stream
	for _, conn := range r.sessions {
		sessions = append(sessions, conn)
		for _, s := range r.streams[conn.ID] {
			stale = append(stale, s)
		}
	}
	r.sessions = make(map[string]*Connection)
	r.userSessions = make(map[string]string)
	r.streams = make(map[string]map[string]Stream)
	r.mu.Unlock()

	closeAll(stale)
	for _, conn := range sessions {
		conn.Close(1001, "router shutdown")
	}
}

func (r *Router) detachLocked(sessionID string) []Stream {
	conn, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	delete(r.sessions, sessionID)

	if current, ok := r.userSessions[conn.UserID]; ok && current == sessionID {
		delete(r.userSessions, conn.UserID)
	}

	stale := make([]Stream, 0, len(r.streams[sessionID]))
	for _, s := range r.streams[sessionID] {
		stale = append(stale, s)
	}
	delete(r.streams, sessionID)
	return stale
}

func closeAll(streams []Stream) {
	for _, s := range streams {
		s.Close()
	}
}

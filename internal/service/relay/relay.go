// Package relay multiplexes consultation connections into per-session
// broadcast groups and brokers WebRTC signaling and chat between them.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	model "github.com/physioconnect/consult/backend/internal/model/consultation"
	"github.com/physioconnect/consult/backend/internal/model/signal"
	"github.com/physioconnect/consult/backend/internal/service/consultation"
)

var ErrClosed = errors.New("relay closed")

// MessageLog persists chat lines before they are fanned out.
type MessageLog interface {
	AppendMessage(ctx context.Context, in consultation.AppendMessageInput) (model.Message, error)
}

// Stats is a point-in-time view of relay membership.
type Stats struct {
	Sessions    int `json:"sessions"`
	Connections int `json:"connections"`
}

// Relay owns the session → fan-out set mapping. All membership changes go
// through mu; broadcasts copy the target set and enqueue without the lock.
type Relay struct {
	messages   MessageLog
	log        logrus.FieldLogger
	sendBuffer int

	mu       sync.RWMutex
	sessions map[string]map[*Conn]struct{}
	conns    map[*Conn]struct{}
	closed   bool

	// active counts connections whose transport has not called Leave yet.
	active sync.WaitGroup
}

// New creates a relay whose connections buffer up to sendBuffer outbound frames.
func New(messages MessageLog, log logrus.FieldLogger, sendBuffer int) *Relay {
	if sendBuffer < 1 {
		sendBuffer = 1
	}
	return &Relay{
		messages:   messages,
		log:        log.WithField("component", "relay"),
		sendBuffer: sendBuffer,
		sessions:   make(map[string]map[*Conn]struct{}),
		conns:      make(map[*Conn]struct{}),
	}
}

// Connect registers a new, not yet joined connection.
func (r *Relay) Connect() (*Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	c := newConn(r.sendBuffer)
	r.conns[c] = struct{}{}
	r.active.Add(1)
	r.log.WithField("conn", c.id).Debug("connection opened")
	return c, nil
}

// Handle processes one inbound text frame from c. Malformed frames are
// logged and dropped; unknown frame types are ignored.
func (r *Relay) Handle(ctx context.Context, c *Conn, frame []byte) {
	msg, err := signal.Decode(frame)
	switch {
	case errors.Is(err, signal.ErrUnknownType):
		r.log.WithField("conn", c.id).Debugf("ignoring frame: %v", err)
		return
	case err != nil:
		r.log.WithField("conn", c.id).Warnf("dropping frame: %v", err)
		return
	}

	switch m := msg.(type) {
	case signal.JoinSession:
		r.join(c, m)
	case signal.Relayed:
		sessionID := c.SessionID()
		if sessionID == "" {
			r.log.WithField("conn", c.id).Debugf("dropping %s before join", m.Kind)
			return
		}
		r.log.WithFields(logrus.Fields{"conn": c.id, "session": sessionID}).Debugf("forwarding %s", m.Kind)
		r.broadcast(sessionID, m.Raw, c)
	case signal.ChatMessage:
		r.chat(ctx, c, m)
	}
}

func (r *Relay) join(c *Conn, m signal.JoinSession) {
	sessionID := strings.TrimSpace(m.SessionID)
	entry := r.log.WithField("conn", c.id)
	if sessionID == "" {
		entry.Warn("dropping join-session without sessionId")
		return
	}

	r.mu.Lock()
	if _, live := r.conns[c]; !live {
		r.mu.Unlock()
		return
	}

	// A second join moves the connection; the old session gets no user-left.
	// Leaving it in the old set too would deliver two sessions' traffic to
	// one socket, so a connection belongs to at most one set.
	if prev := c.SessionID(); prev != "" && prev != sessionID {
		r.removeLocked(prev, c)
		entry.WithField("session", prev).Info("connection rebound to another session")
	}

	members, ok := r.sessions[sessionID]
	if !ok {
		members = make(map[*Conn]struct{})
		r.sessions[sessionID] = members
	}
	members[c] = struct{}{}
	c.bind(sessionID)
	targets := lo.Without(lo.Keys(members), c)
	r.mu.Unlock()

	entry.WithFields(logrus.Fields{
		"session":  sessionID,
		"userName": m.UserName,
		"userType": m.UserType,
	}).Info("joined session")
	r.send(targets, signal.NewUserJoined(sessionID, m))
}

func (r *Relay) chat(ctx context.Context, c *Conn, m signal.ChatMessage) {
	sessionID := c.SessionID()
	entry := r.log.WithField("conn", c.id)
	if sessionID == "" {
		entry.Debug("dropping chat-message before join")
		return
	}
	if !r.live(c) {
		entry.Debug("dropping chat-message from closed connection")
		return
	}

	saved, err := r.messages.AppendMessage(ctx, consultation.AppendMessageInput{
		SessionID:  sessionID,
		SenderName: m.SenderName,
		SenderType: m.SenderType,
		Message:    m.Message,
	})
	if err != nil {
		var verr *consultation.ValidationError
		if errors.As(err, &verr) {
			entry.WithField("session", sessionID).Warnf("dropping chat-message: %v", err)
		} else {
			entry.WithField("session", sessionID).Errorf("store chat-message: %v", err)
		}
		return
	}

	// The sender also receives the stored form so every client renders the
	// same id and timestamp.
	r.send(r.members(sessionID, nil), signal.NewChatBroadcast(saved))
}

// Leave removes c from its session and notifies the remaining members. It is
// safe to call more than once; only the first call has an effect.
func (r *Relay) Leave(c *Conn) {
	c.released.Do(r.active.Done)

	r.mu.Lock()
	if _, live := r.conns[c]; !live {
		r.mu.Unlock()
		return
	}
	delete(r.conns, c)

	sessionID := c.SessionID()
	var remaining []*Conn
	if sessionID != "" {
		remaining = r.removeLocked(sessionID, c)
	}
	r.mu.Unlock()

	c.Close()

	entry := r.log.WithField("conn", c.id)
	if sessionID == "" {
		entry.Debug("connection closed before joining")
		return
	}
	entry.WithField("session", sessionID).Info("left session")
	r.send(remaining, signal.NewUserLeft(sessionID))
}

// removeLocked drops c from the session's set, discarding the set once it is
// empty, and returns the members left behind. Caller holds r.mu.
func (r *Relay) removeLocked(sessionID string, c *Conn) []*Conn {
	members, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	delete(members, c)
	if len(members) == 0 {
		delete(r.sessions, sessionID)
		return nil
	}
	return lo.Keys(members)
}

// Shutdown closes every connection and refuses new ones. Later calls do
// nothing.
func (r *Relay) Shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	conns := lo.Keys(r.conns)
	r.conns = make(map[*Conn]struct{})
	r.sessions = make(map[string]map[*Conn]struct{})
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	r.log.WithField("connections", len(conns)).Info("relay shut down")
}

// Drain waits until every connection handed out by Connect has been passed
// to Leave, or ctx ends. Call it after Shutdown and before closing storage.
func (r *Relay) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relay) live(c *Conn) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[c]
	return ok
}

// Stats reports how many sessions have live members and how many
// connections are open.
func (r *Relay) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Sessions: len(r.sessions), Connections: len(r.conns)}
}

// MemberCount reports the size of a session's fan-out set.
func (r *Relay) MemberCount(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[sessionID])
}

func (r *Relay) members(sessionID string, exclude *Conn) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	return lo.Without(lo.Keys(members), exclude)
}

func (r *Relay) broadcast(sessionID string, frame []byte, exclude *Conn) {
	r.deliver(r.members(sessionID, exclude), frame)
}

func (r *Relay) send(targets []*Conn, payload any) {
	if len(targets) == 0 {
		return
	}
	frame, err := json.Marshal(payload)
	if err != nil {
		r.log.Errorf("encode outbound frame: %v", err)
		return
	}
	r.deliver(targets, frame)
}

func (r *Relay) deliver(targets []*Conn, frame []byte) {
	for _, target := range targets {
		if !target.enqueue(frame) {
			r.log.WithField("conn", target.id).Debug("skipping closed or saturated connection")
		}
	}
}

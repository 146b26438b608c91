package match

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/mcdev12/pongarena/go/internal/events"
	"github.com/mcdev12/pongarena/go/internal/protocol"
)

var errSocketGone = errors.New("socket gone")

type fakeConn struct {
	mu     sync.Mutex
	binary [][]byte
	text   []protocol.ControlEvent
	closed bool
	fail   bool
}

func (c *fakeConn) SendBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail || c.closed {
		return errSocketGone
	}
	c.binary = append(c.binary, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) SendText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail || c.closed {
		return errSocketGone
	}
	var ev protocol.ControlEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	c.text = append(c.text, ev)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) eventTypes() []protocol.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.EventType, 0, len(c.text))
	for _, ev := range c.text {
		out = append(out, ev.Type)
	}
	return out
}

func (c *fakeConn) lastEvent(t protocol.EventType) (protocol.ControlEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.text) - 1; i >= 0; i-- {
		if c.text[i].Type == t {
			return c.text[i], true
		}
	}
	return protocol.ControlEvent{}, false
}

func (c *fakeConn) packetTypes() []protocol.PacketType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.PacketType, 0, len(c.binary))
	for _, b := range c.binary {
		out = append(out, protocol.PacketType(b[0]))
	}
	return out
}

func (c *fakeConn) setFail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = true
}

type fakeHistory struct {
	mu      sync.Mutex
	records []HistoryRecord
}

func (h *fakeHistory) SaveMatchToHistory(_ context.Context, rec HistoryRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return nil
}

func (h *fakeHistory) all() []HistoryRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]HistoryRecord(nil), h.records...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []events.Event
}

func (n *fakeNotifier) Notify(_ context.Context, ev events.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *fakeNotifier) ended() []events.MatchEndedPayload {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []events.MatchEndedPayload
	for _, ev := range n.events {
		if p, ok := ev.Payload.(events.MatchEndedPayload); ok {
			out = append(out, p)
		}
	}
	return out
}

func (n *fakeNotifier) types() []events.Type {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]events.Type, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}

type fakeMetrics struct {
	mu     sync.Mutex
	active int
	ended  map[string]int
}

func (m *fakeMetrics) SetActiveMatches(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = n
}

func (m *fakeMetrics) MatchEnded(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended == nil {
		m.ended = make(map[string]int)
	}
	m.ended[reason]++
}

func (m *fakeMetrics) endedCount(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ended[reason]
}

type fakeHook struct {
	mu      sync.Mutex
	results []Result
}

func (h *fakeHook) OnTournamentMatchEnd(_ context.Context, res Result) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, res)
	return nil
}

func (h *fakeHook) all() []Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Result(nil), h.results...)
}

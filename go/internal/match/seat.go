package match

import (
	"context"

	"github.com/mcdev12/pongarena/go/internal/protocol"
	"github.com/mcdev12/pongarena/go/internal/simulation"
)

// Seat is a socket bound to one side of a running session.
type Seat struct {
	session *Session
	side    simulation.Side
	conn    Conn

	Player PlayerRef
	Code   string
}

func (s *Seat) Side() simulation.Side { return s.side }

// Input queues a decoded client packet for the next tick.
func (s *Seat) Input(ctx context.Context, p protocol.ClientPacket) error {
	return s.session.submit(ctx, inputCmd{side: s.side, packet: p})
}

// Leave reports that the socket closed. A leave from a socket that is no
// longer bound to the seat is ignored.
func (s *Seat) Leave(ctx context.Context) error {
	return s.session.submit(ctx, leaveCmd{side: s.side, conn: s.conn})
}

// Done is closed once the session stops.
func (s *Seat) Done() <-chan struct{} { return s.session.done }

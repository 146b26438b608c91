package match

import (
	"github.com/mcdev12/pongarena/go/internal/protocol"
	"github.com/mcdev12/pongarena/go/internal/simulation"
)

// attachCmd binds a socket to a side; issued once per player.
type attachCmd struct {
	side  simulation.Side
	conn  Conn
	reply chan<- error
}

// joinCmd fills the second seat after JoinMatch.
type joinCmd struct {
	player PlayerRef
}

// inputCmd carries a decoded client packet.
type inputCmd struct {
	side   simulation.Side
	packet protocol.ClientPacket
}

// leaveCmd is issued when a socket closes.
type leaveCmd struct {
	side simulation.Side
	conn Conn
}

// forfeitCmd ends the match against loser.
type forfeitCmd struct {
	loser  simulation.Side
	reason EndReason
}

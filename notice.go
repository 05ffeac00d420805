package main

// Notice texts that are shared between the hub and the engine.
const (
	noticeInvalidAction = "Invalid action or command."
	noticeInvalidVote   = "Invalid vote target name."
	noticeDeadPlayer    = "(You are dead, so nothing happen)"
	noticeSpectator     = "(You are watching, so nothing happen)"
)

// notice is one pending delivery. A nil conn means everyone.
type notice struct {
	conn Sender
	msg  Message
}

// outbox collects deliveries produced inside a registry batch so they can
// be sent once the lock is released, in the order they were produced.
type outbox []notice

func (o *outbox) private(p *Player, text string) {
	if p == nil || p.conn == nil {
		return
	}
	*o = append(*o, notice{conn: p.conn, msg: Announcement(text)})
}

func (o *outbox) public(text string) {
	*o = append(*o, notice{msg: Announcement(text)})
}

// flush delivers everything in o. Must be called without the registry lock.
func (g *Game) flush(o outbox) {
	for _, n := range o {
		if n.conn == nil {
			g.Broadcast(n.msg)
			continue
		}
		LogWireMessage("OUT", "private", n.msg.String())
		n.conn.Send(n.msg)
	}
}

// sendNotice sends a private announcement to one player by name.
func (g *Game) sendNotice(name, text string) {
	var conn Sender
	g.players.Batch(func(r *Roster) {
		if p := r.Get(name); p != nil {
			conn = p.conn
		}
	})
	if conn == nil {
		return
	}
	LogWireMessage("OUT", name, text)
	conn.Send(Announcement(text))
}

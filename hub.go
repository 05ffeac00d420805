package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Conn is one client transport. Every frame is either a length-prefixed
// string (handshake) or an encoded Message.
type Conn interface {
	ReadString() (string, error)
	WriteString(s string) error
	ReadMessage() (Message, error)
	WriteMessage(m Message) error
	SetWriteDeadline(t time.Time) error
	Close() error
	RemoteAddr() string
}

// tcpConn speaks the wire format directly over a byte stream.
type tcpConn struct {
	c net.Conn
	r *bufio.Reader
}

func newTCPConn(c net.Conn) *tcpConn {
	return &tcpConn{c: c, r: bufio.NewReader(c)}
}

func (t *tcpConn) ReadString() (string, error)        { return ReadString(t.r) }
func (t *tcpConn) WriteString(s string) error         { return WriteString(t.c, s) }
func (t *tcpConn) ReadMessage() (Message, error)      { return ReadMessage(t.r) }
func (t *tcpConn) WriteMessage(m Message) error       { return WriteMessage(t.c, m) }
func (t *tcpConn) SetWriteDeadline(d time.Time) error { return t.c.SetWriteDeadline(d) }
func (t *tcpConn) Close() error                       { return t.c.Close() }
func (t *tcpConn) RemoteAddr() string                 { return t.c.RemoteAddr().String() }

// wsConn carries exactly one frame per binary WebSocket message.
type wsConn struct {
	c *websocket.Conn
}

func newWSConn(c *websocket.Conn) *wsConn {
	return &wsConn{c: c}
}

func (w *wsConn) next() (io.Reader, error) {
	kind, data, err := w.c.ReadMessage()
	if err != nil {
		return nil, err
	}
	if kind != websocket.BinaryMessage && kind != websocket.TextMessage {
		return nil, ErrBadLength
	}
	return bytes.NewReader(data), nil
}

func (w *wsConn) ReadString() (string, error) {
	r, err := w.next()
	if err != nil {
		return "", err
	}
	return ReadString(r)
}

func (w *wsConn) ReadMessage() (Message, error) {
	r, err := w.next()
	if err != nil {
		return Message{}, err
	}
	return ReadMessage(r)
}

func (w *wsConn) WriteString(s string) error {
	var buf bytes.Buffer
	if err := WriteString(&buf, s); err != nil {
		return err
	}
	return w.c.WriteMessage(websocket.BinaryMessage, buf.Bytes())
}

func (w *wsConn) WriteMessage(m Message) error {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, m); err != nil {
		return err
	}
	return w.c.WriteMessage(websocket.BinaryMessage, buf.Bytes())
}

func (w *wsConn) SetWriteDeadline(d time.Time) error { return w.c.SetWriteDeadline(d) }
func (w *wsConn) Close() error                       { return w.c.Close() }
func (w *wsConn) RemoteAddr() string                 { return w.c.RemoteAddr().String() }

const (
	sendQueueSize = 256
	drainTimeout  = time.Second
)

// Client is one connected player. Sends are queued and written by the
// client's own goroutine, so the game never blocks on the network.
type Client struct {
	id     string
	name   string
	conn   Conn
	send   chan Message
	ctx    context.Context
	cancel context.CancelFunc
}

func newClient(parent context.Context, name string, conn Conn) *Client {
	ctx, cancel := context.WithCancel(parent)
	return &Client{
		id:     uuid.NewString(),
		name:   name,
		conn:   conn,
		send:   make(chan Message, sendQueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Send enqueues m. A full queue is treated as a dead connection.
func (c *Client) Send(m Message) {
	select {
	case <-c.ctx.Done():
	case c.send <- m:
	default:
		log.Printf("Send queue full for %s (%s), dropping connection", c.name, c.id)
		c.cancel()
	}
}

// writePump writes queued messages until the client is cancelled, then
// flushes what is left and closes the connection.
func (c *Client) writePump() {
	defer c.conn.Close()
	for {
		select {
		case m := <-c.send:
			if err := c.conn.WriteMessage(m); err != nil {
				DebugLog("writePump", "write to '%s' failed: %v", c.name, err)
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(drainTimeout))
			for {
				select {
				case m := <-c.send:
					if err := c.conn.WriteMessage(m); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// Broadcast sends msg to every connected player not named in exclude.
func (g *Game) Broadcast(msg Message, exclude ...string) {
	g.broadcastTo(msg, func(p *Player) bool {
		return !slices.Contains(exclude, p.Name)
	})
}

// broadcastTo snapshots the matching connections under the registry lock
// and delivers after releasing it.
func (g *Game) broadcastTo(msg Message, include func(p *Player) bool) {
	var conns []Sender
	g.players.Batch(func(r *Roster) {
		for _, p := range r.All() {
			if p.conn != nil && include(p) {
				conns = append(conns, p.conn)
			}
		}
	})
	LogWireMessage("OUT", "broadcast", msg.String())
	for _, c := range conns {
		c.Send(msg)
	}
}

// Server accepts player connections over TCP and, optionally, WebSocket.
type Server struct {
	ctx      context.Context
	game     *Game
	upgrader websocket.Upgrader

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func NewServer(ctx context.Context, game *Game) *Server {
	return &Server{ctx: ctx, game: game}
}

// ServeTCP accepts connections on ln until the server context ends.
func (s *Server) ServeTCP(ln net.Listener) error {
	go func() {
		<-s.ctx.Done()
		ln.Close()
	}()

	log.Printf("Listening for players on %s", ln.Addr())
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !s.track() {
			c.Close()
			return nil
		}
		go func() {
			defer s.wg.Done()
			s.handleConn(newTCPConn(c))
		}()
	}
}

// WSHandler serves the WebSocket gateway on /ws.
func (s *Server) WSHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	if appLogger != nil && appLogger.logRequests {
		return &LoggingHandler{Handler: mux, Logger: appLogger}
	}
	return mux
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error from %s: %v", r.RemoteAddr, err)
		return
	}
	DebugLog("handleWebSocket", "WebSocket upgraded successfully for %s", r.RemoteAddr)
	s.handleConn(newWSConn(conn))
}

// track registers a new connection handler. It refuses once the server
// context has ended or Wait has been called.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.ctx.Err() != nil {
		return false
	}
	s.wg.Add(1)
	return true
}

// Wait stops accepting new handlers and blocks until every running one
// has returned.
func (s *Server) Wait() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.wg.Wait()
}

// handleConn runs the join handshake and then reads from the player until
// they leave or the connection fails.
func (s *Server) handleConn(conn Conn) {
	// Unblock a handshake that never arrives when the server stops.
	stopClose := context.AfterFunc(s.ctx, func() { conn.Close() })
	name, err := conn.ReadString()
	stopClose()
	if err != nil {
		DebugLog("handleConn", "handshake from %s failed: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}

	c := newClient(s.ctx, name, conn)
	if err := s.game.Join(name, c); err != nil {
		log.Printf("Rejected %q from %s: %v", name, conn.RemoteAddr(), err)
		conn.WriteString(err.Error())
		conn.Close()
		c.cancel()
		return
	}
	if err := conn.WriteString("Ok"); err != nil {
		logError("handleConn: write handshake reply", err)
		c.cancel()
		conn.Close()
		s.game.Leave(name)
		return
	}

	log.Printf("Player %s connected from %s (%s)", name, conn.RemoteAddr(), c.id)
	go c.writePump()
	s.game.Broadcast(Announcement(name + " joined."))

	s.readLoop(c)
	s.disconnect(c)
}

func (s *Server) readLoop(c *Client) {
	for {
		m, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Printf("Read from %s failed: %v", c.name, err)
			}
			return
		}
		LogWireMessage("IN", c.name, m.String())

		switch m.Type {
		case MsgDisconnect:
			return
		case MsgChat:
			s.handleChat(c, m.Content)
		default:
			DebugLog("readLoop", "Ignoring %s from '%s'", m.Type, c.name)
		}
	}
}

// disconnect removes the player, echoes the disconnect and lets the
// writer close the connection.
func (s *Server) disconnect(c *Client) {
	s.game.Leave(c.name)
	c.Send(DisconnectMessage())
	c.cancel()
}

// handleChat routes one line typed by a player according to the phase.
func (s *Server) handleChat(c *Client, text string) {
	g := s.game
	if !g.Started() {
		s.relayChat(c, text)
		return
	}

	switch g.Phase() {
	case PhaseVote:
		if s.silenced(c) {
			return
		}
		fields := strings.Fields(text)
		if len(fields) > 0 && fields[0] == "/vote" {
			if len(fields) != 2 || !g.CastVote(c.name, fields[1]) {
				g.sendNotice(c.name, noticeInvalidVote)
			}
			return
		}
		s.relayChat(c, text)

	case PhaseNight:
		if s.silenced(c) {
			return
		}
		fields := strings.Fields(text)
		if len(fields) > 0 && (isCommand(text) || fields[0] == cancelKeyword) {
			g.SubmitNightAction(c.name, strings.TrimPrefix(fields[0], "/"), fields[1:])
			return
		}
		if f, ok := g.players.FactionOf(c.name); ok && f == Woof {
			g.broadcastTo(Chat(text, c.name), func(p *Player) bool {
				return p.Name != c.name && p.Seated() && p.Faction() == Woof
			})
		}

	default:
		s.relayChat(c, text)
	}
}

// relayChat sends plain chat to everyone but the author. A command typed
// outside its phase is an invalid action and is never relayed.
func (s *Server) relayChat(c *Client, text string) {
	if isCommand(text) {
		s.game.sendNotice(c.name, noticeInvalidAction)
		return
	}
	s.game.Broadcast(Chat(text, c.name), c.name)
}

func isCommand(text string) bool {
	fields := strings.Fields(text)
	return len(fields) > 0 && strings.HasPrefix(fields[0], "/")
}

// silenced tells players who cannot act right now why, and reports
// whether they were.
func (s *Server) silenced(c *Client) bool {
	text := ""
	s.game.players.Batch(func(r *Roster) {
		p := r.Get(c.name)
		switch {
		case p == nil:
			text = noticeInvalidAction
		case !p.Seated():
			text = noticeSpectator
		case p.Dead:
			text = noticeDeadPlayer
		}
	})
	if text == "" {
		return false
	}
	s.game.sendNotice(c.name, text)
	return true
}

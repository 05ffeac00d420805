package main

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// startTestServer serves tc's game on a local TCP port.
func startTestServer(t *testing.T, tc *TestContext) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(ctx, tc.game)
	go srv.ServeTCP(ln)
	return ln.Addr().String(), func() {
		cancel()
		srv.Wait()
	}
}

// dialPlayer connects and performs the join handshake.
func dialPlayer(t *testing.T, addr, name string) (net.Conn, string) {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c.SetDeadline(time.Now().Add(5 * time.Second))
	if err := WriteString(c, name); err != nil {
		t.Fatalf("write name: %v", err)
	}
	reply, err := ReadString(c)
	if err != nil {
		t.Fatalf("read handshake reply: %v", err)
	}
	return c, reply
}

// readUntil reads messages until match accepts one.
func readUntil(t *testing.T, c net.Conn, match func(Message) bool) Message {
	t.Helper()
	for {
		m, err := ReadMessage(c)
		if err != nil {
			t.Fatalf("waiting for message: %v", err)
		}
		if match(m) {
			return m
		}
	}
}

func announcement(text string) func(Message) bool {
	return func(m Message) bool {
		return m.Type == MsgAnnouncement && m.Content == text
	}
}

func TestTCPJoinAndChat(t *testing.T) {
	tc := newTestContext(t)
	defer tc.cleanup()
	addr, stop := startTestServer(t, tc)
	defer stop()

	alice, reply := dialPlayer(t, addr, "alice")
	defer alice.Close()
	if reply != "Ok" {
		t.Fatalf("handshake reply = %q, want Ok", reply)
	}
	readUntil(t, alice, announcement("alice joined."))

	bob, reply := dialPlayer(t, addr, "bob")
	defer bob.Close()
	if reply != "Ok" {
		t.Fatalf("handshake reply = %q, want Ok", reply)
	}
	readUntil(t, alice, announcement("bob joined."))

	if err := WriteMessage(alice, Chat("hello", "alice")); err != nil {
		t.Fatal(err)
	}
	m := readUntil(t, bob, func(m Message) bool { return m.Type == MsgChat })
	if m.Content != "hello" || m.Sender != "alice" || m.Target != "-" {
		t.Errorf("bob got %+v", m)
	}

	// alice must not get her own chat back; the next thing she sees is
	// bob's reply.
	if err := WriteMessage(bob, Chat("hi", "bob")); err != nil {
		t.Fatal(err)
	}
	m = readUntil(t, alice, func(m Message) bool { return m.Type == MsgChat })
	if m.Sender != "bob" {
		t.Errorf("alice received %+v, want bob's chat", m)
	}
}

func TestTCPJoinRejected(t *testing.T) {
	tc := newTestContext(t)
	defer tc.cleanup()
	addr, stop := startTestServer(t, tc)
	defer stop()

	first, _ := dialPlayer(t, addr, "alice")
	defer first.Close()

	dup, reply := dialPlayer(t, addr, "alice")
	defer dup.Close()
	if reply != string(ErrNameUsed) {
		t.Errorf("duplicate name reply = %q", reply)
	}
	if _, err := ReadMessage(dup); err == nil {
		t.Error("a rejected connection should be closed")
	}

	bad, reply := dialPlayer(t, addr, "no spaces")
	defer bad.Close()
	if reply != string(ErrNameChars) {
		t.Errorf("bad name reply = %q", reply)
	}
}

func TestTCPDisconnect(t *testing.T) {
	tc := newTestContext(t)
	defer tc.cleanup()
	addr, stop := startTestServer(t, tc)
	defer stop()

	alice, _ := dialPlayer(t, addr, "alice")
	defer alice.Close()
	bob, _ := dialPlayer(t, addr, "bob")
	defer bob.Close()
	readUntil(t, alice, announcement("bob joined."))

	if err := WriteMessage(alice, DisconnectMessage()); err != nil {
		t.Fatal(err)
	}
	readUntil(t, alice, func(m Message) bool { return m.Type == MsgDisconnect })
	readUntil(t, bob, announcement("alice disconnected."))

	if !waitUntil(2*time.Second, func() bool { return !tc.game.players.Contains("alice") }) {
		t.Error("alice should be removed from the registry")
	}

	// A dropped connection counts as a disconnect too.
	bob.Close()
	if !waitUntil(2*time.Second, func() bool { return tc.game.players.Count() == 0 }) {
		t.Error("bob should be removed after closing the connection")
	}
}

func TestWebSocketGateway(t *testing.T) {
	tc := newTestContext(t)
	defer tc.cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(ctx, tc.game)
	hs := httptest.NewServer(srv.WSHandler())
	defer func() {
		cancel()
		hs.Close()
		srv.Wait()
	}()

	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	var buf bytes.Buffer
	WriteString(&buf, "carol")
	if err := ws.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		t.Fatal(err)
	}
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	reply, err := ReadString(bytes.NewReader(data))
	if err != nil || reply != "Ok" {
		t.Fatalf("handshake reply = %q, %v", reply, err)
	}

	_, data, err = ws.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	m, err := ReadMessage(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if m.Type != MsgAnnouncement || m.Content != "carol joined." {
		t.Errorf("first message = %+v, want the join announcement", m)
	}
}

func chatServer(tc *TestContext) (*Server, func(name, text string)) {
	s := &Server{game: tc.game}
	return s, func(name, text string) {
		s.handleChat(&Client{name: name}, text)
	}
}

func TestNightChatReachesOnlyWoofs(t *testing.T) {
	tc := newTestContext(t)
	defer tc.cleanup()
	tc.seat(map[string]Role{"K": Killer, "F": Freezer, "D": Doctor}, "K", "F", "D")
	tc.openNight()
	_, say := chatServer(tc)

	say("K", "who tonight?")
	say("D", "anyone awake?")

	if !tc.conn("F").Has("who tonight?") {
		t.Error("the other woof should receive night chat")
	}
	if tc.conn("D").Has("who tonight?") {
		t.Error("town must not receive woof night chat")
	}
	if tc.conn("K").Has("anyone awake?") || tc.conn("F").Has("anyone awake?") {
		t.Error("town night chat is dropped")
	}

	say("K", "/kill D")
	tc.game.players.Batch(func(r *Roster) {
		if !r.Get("K").HasAction {
			t.Error("/kill should stage a night action")
		}
	})
	say("K", "cancel")
	tc.game.players.Batch(func(r *Roster) {
		if r.Get("K").HasAction {
			t.Error("cancel should clear the night action")
		}
	})

	say("D", "/kill K")
	if !tc.conn("D").Has(noticeInvalidAction) {
		t.Error("a command of another role is invalid")
	}
}

func TestVotePhaseCommands(t *testing.T) {
	tc := newTestContext(t)
	defer tc.cleanup()
	tc.seat(map[string]Role{"K": Killer, "D": Doctor, "S": Sheriff, "X": Spy}, "K", "D", "S", "X", "W")
	tc.game.players.Batch(func(r *Roster) {
		r.Get("X").Dead = true
		r.setIntake(PhaseVote)
	})
	tc.game.setPhase(PhaseVote, 1)
	_, say := chatServer(tc)

	say("D", "/vote K")
	if votesFor(tc, "K") != 1 {
		t.Error("/vote should cast a vote")
	}

	say("D", "/vote nobody")
	if !tc.conn("D").Has(noticeInvalidVote) {
		t.Error("an invalid vote target should be reported")
	}

	say("X", "I am not dead")
	if !tc.conn("X").Has(noticeDeadPlayer) {
		t.Error("the dead are told nothing happens")
	}
	if tc.conn("K").Has("I am not dead") {
		t.Error("chat from the dead is not relayed during the vote")
	}

	say("W", "/vote K")
	if !tc.conn("W").Has(noticeSpectator) {
		t.Error("a spectator cannot vote")
	}

	say("S", "K is suspicious")
	if !tc.conn("K").Has("K is suspicious") || tc.conn("S").Has("K is suspicious") {
		t.Error("vote chat goes to everyone but the author")
	}
}

func TestServerRefusesConnectionsAfterWait(t *testing.T) {
	tc := newTestContext(t)
	defer tc.cleanup()

	srv := NewServer(context.Background(), tc.game)
	srv.Wait()
	if srv.track() {
		t.Fatal("no handler may be registered once Wait has been called")
	}

	hs := httptest.NewServer(srv.WSHandler())
	defer hs.Close()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		ws.Close()
		t.Fatal("the gateway should refuse upgrades after Wait")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("refused upgrade response = %v, want 503", resp)
	}
	if tc.game.players.Count() != 0 {
		t.Error("nobody should have joined")
	}
}

func TestCommandsOutsideTheirPhaseAreNotRelayed(t *testing.T) {
	tc := newTestContext(t)
	defer tc.cleanup()
	tc.join("a", "b")
	_, say := chatServer(tc)

	say("a", "/vote b")
	if !tc.conn("a").Has(noticeInvalidAction) {
		t.Error("a command in the lobby is an invalid action")
	}
	if tc.conn("b").Has("/vote b") {
		t.Error("a lobby command must not be relayed as chat")
	}

	tc.game.players.Batch(func(r *Roster) {
		r.Get("a").Role = Killer
		r.Get("b").Role = Doctor
	})
	tc.game.setStarted(true)
	tc.game.setPhase(PhaseDay, 1)

	say("a", "/kill b")
	if tc.conn("b").Has("/kill b") {
		t.Error("a night command typed during the day must not be relayed")
	}
	say("a", "cancel that plan")
	if !tc.conn("b").Has("cancel that plan") {
		t.Error("plain day chat should still be relayed")
	}

	tc.game.setPhase(PhaseVote, 1)
	tc.game.players.Batch(func(r *Roster) {
		r.setIntake(PhaseVote)
	})
	tc.conn("a").Reset()
	say("a", "/kill b")
	if !tc.conn("a").Has(noticeInvalidAction) || tc.conn("b").Has("/kill b") {
		t.Error("a night command during the vote is an invalid action")
	}
}

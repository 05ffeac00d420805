package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// MessageType is the leading tag byte of every in-game frame.
type MessageType byte

const (
	MsgAnnouncement MessageType = iota
	MsgChat
	MsgDisconnect
	MsgVote
	MsgEnd
)

func (t MessageType) String() string {
	switch t {
	case MsgAnnouncement:
		return "announcement"
	case MsgChat:
		return "chat"
	case MsgDisconnect:
		return "disconnect"
	case MsgVote:
		return "vote"
	case MsgEnd:
		return "end"
	default:
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
}

// emptyField is what the peer expects in a field that carries nothing.
const emptyField = "-"

// Message is the only value exchanged with a connected player.
type Message struct {
	Type    MessageType
	Content string
	Sender  string
	Target  string
}

func newMessage(t MessageType, content, sender, target string) Message {
	return Message{Type: t, Content: content, Sender: sender, Target: target}
}

func Announcement(text string) Message {
	return newMessage(MsgAnnouncement, text, emptyField, emptyField)
}

func Chat(text, sender string) Message {
	return newMessage(MsgChat, text, sender, emptyField)
}

func DisconnectMessage() Message {
	return newMessage(MsgDisconnect, emptyField, emptyField, emptyField)
}

func VoteMessage(sender, target string) Message {
	return newMessage(MsgVote, emptyField, sender, target)
}

func EndMessage() Message {
	return newMessage(MsgEnd, emptyField, emptyField, emptyField)
}

func (m Message) String() string {
	return fmt.Sprintf("%s content=%q sender=%q target=%q", m.Type, m.Content, m.Sender, m.Target)
}

const (
	lengthPrefixSize = 16
	maxStringLength  = 1 << 20
)

var (
	ErrBadLength  = errors.New("wire: malformed length prefix")
	ErrTooLong    = errors.New("wire: string exceeds size limit")
	ErrUnknownTag = errors.New("wire: unknown message tag")
)

// WriteString writes s as a 16-digit zero padded byte count followed by the
// bytes of s.
func WriteString(w io.Writer, s string) error {
	if len(s) > maxStringLength {
		return ErrTooLong
	}
	if _, err := fmt.Fprintf(w, "%0*d%s", lengthPrefixSize, len(s), s); err != nil {
		return fmt.Errorf("write string: %w", err)
	}
	return nil
}

// ReadString reads one length-prefixed string.
func ReadString(r io.Reader) (string, error) {
	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return "", err
	}
	for _, c := range prefix {
		if c < '0' || c > '9' {
			return "", ErrBadLength
		}
	}
	n, err := strconv.ParseInt(string(prefix[:]), 10, 64)
	if err != nil {
		return "", ErrBadLength
	}
	if n > maxStringLength {
		return "", ErrTooLong
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// WriteMessage writes the tag byte then content, sender and target.
func WriteMessage(w io.Writer, m Message) error {
	bw := bufio.NewWriter(w)
	if err := bw.WriteByte(byte(m.Type)); err != nil {
		return fmt.Errorf("write tag: %w", err)
	}
	for _, s := range []string{m.Content, m.Sender, m.Target} {
		if err := WriteString(bw, s); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadMessage reads one tagged frame.
func ReadMessage(r io.Reader) (Message, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return Message{}, err
	}
	if MessageType(tag[0]) > MsgEnd {
		return Message{}, fmt.Errorf("%w: %d", ErrUnknownTag, tag[0])
	}
	m := Message{Type: MessageType(tag[0])}
	for _, dst := range []*string{&m.Content, &m.Sender, &m.Target} {
		s, err := ReadString(r)
		if err != nil {
			return Message{}, err
		}
		*dst = s
	}
	return m, nil
}

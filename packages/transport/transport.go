// Package transport moves protocol messages between clients and the
// command handler. a Listener hands out connections; a Conn reads one
// message at a time and writes replies. TCP (one message per line),
// WebSocket (one message per text frame) and in-memory implementations
// are provided.
package transport

import (
	"errors"

	"github.com/vogtb/sheetd/packages/cell"
)

// ErrListenerClosed is returned by Accept once the listener is closed
var ErrListenerClosed = errors.New("listener closed")

// ErrConnClosed is returned by writes on a closed connection
var ErrConnClosed = errors.New("connection closed")

// Listener accepts client connections
type Listener interface {
	// Accept blocks until a client connects. it returns ErrListenerClosed
	// after Close.
	Accept() (Conn, error)
	Close() error
	Addr() string
	// Kind names the transport ("tcp", "ws", "mem") for logs and metrics
	Kind() string
}

// Conn is one client connection. ReadMessage returns io.EOF at end of
// stream. ReadMessage and WriteMessage may be called from different
// goroutines, but each only from one at a time.
type Conn interface {
	ReadMessage() (string, error)
	WriteMessage(reply Reply) error
	Close() error
	RemoteAddr() string
}

// ReplyKind tags a Reply
type ReplyKind uint8

const (
	ReplyValue ReplyKind = iota
	ReplyError
)

// Reply is a response to a client command: either a cell value or an error
// message
type Reply struct {
	Kind    ReplyKind
	Cell    string
	Value   cell.Value
	Message string
}

func ValueReply(name string, value cell.Value) Reply {
	return Reply{Kind: ReplyValue, Cell: name, Value: value}
}

func ErrorReply(message string) Reply {
	return Reply{Kind: ReplyError, Message: message}
}

// String renders the reply as sent on the wire, "A1 = 5" or
// "Error: invalid command"
func (r Reply) String() string {
	if r.Kind == ReplyError {
		return "Error: " + r.Message
	}
	return r.Cell + " = " + r.Value.String()
}

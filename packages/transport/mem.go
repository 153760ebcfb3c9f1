package transport

import (
	"io"
	"sync"
)

// MemListener is an in-process listener. Dial returns the client side of a
// new connection whose server side is handed to Accept.
type MemListener struct {
	conns chan *MemConn
	done  chan struct{}
	once  sync.Once
}

func NewMemListener() *MemListener {
	return &MemListener{
		conns: make(chan *MemConn),
		done:  make(chan struct{}),
	}
}

// Dial connects a new client. it blocks until the server accepts or the
// listener is closed.
func (l *MemListener) Dial() (*MemClient, error) {
	server, client := Pipe()
	select {
	case l.conns <- server:
		return client, nil
	case <-l.done:
		return nil, ErrListenerClosed
	}
}

func (l *MemListener) Accept() (Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, ErrListenerClosed
	}
}

func (l *MemListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func (l *MemListener) Addr() string {
	return "mem"
}

func (l *MemListener) Kind() string {
	return "mem"
}

// pipeState is shared by both ends of a pipe
type pipeState struct {
	toServer chan string
	toClient chan Reply
	done     chan struct{}
	once     sync.Once
}

func (p *pipeState) close() {
	p.once.Do(func() { close(p.done) })
}

// MemConn is the server side of an in-memory pipe
type MemConn struct {
	p *pipeState
}

// MemClient is the client side of an in-memory pipe
type MemClient struct {
	p *pipeState
}

// Pipe returns the two ends of an in-memory connection. messages and
// replies are buffered so that a test can send several commands before
// reading replies.
func Pipe() (*MemConn, *MemClient) {
	p := &pipeState{
		toServer: make(chan string, 64),
		toClient: make(chan Reply, 64),
		done:     make(chan struct{}),
	}
	return &MemConn{p: p}, &MemClient{p: p}
}

func (c *MemConn) ReadMessage() (string, error) {
	// drain what the client sent before it hung up
	select {
	case msg := <-c.p.toServer:
		return msg, nil
	default:
	}
	select {
	case msg := <-c.p.toServer:
		return msg, nil
	case <-c.p.done:
		return "", io.EOF
	}
}

func (c *MemConn) WriteMessage(reply Reply) error {
	select {
	case <-c.p.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.p.toClient <- reply:
		return nil
	case <-c.p.done:
		return ErrConnClosed
	}
}

func (c *MemConn) Close() error {
	c.p.close()
	return nil
}

func (c *MemConn) RemoteAddr() string {
	return "mem"
}

// Send queues a message for the server
func (c *MemClient) Send(msg string) error {
	select {
	case <-c.p.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.p.toServer <- msg:
		return nil
	case <-c.p.done:
		return ErrConnClosed
	}
}

// Receive waits for the next reply
func (c *MemClient) Receive() (Reply, error) {
	select {
	case r := <-c.p.toClient:
		return r, nil
	default:
	}
	select {
	case r := <-c.p.toClient:
		return r, nil
	case <-c.p.done:
		return Reply{}, io.EOF
	}
}

// Close hangs up. messages already sent are still delivered to the server.
func (c *MemClient) Close() error {
	c.p.close()
	return nil
}

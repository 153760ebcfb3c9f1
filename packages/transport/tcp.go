package transport

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
)

// maxLineSize bounds a single protocol message on every transport
const maxLineSize = 1 << 20

// TCPListener accepts newline-delimited text clients
type TCPListener struct {
	ln net.Listener
}

// ListenTCP starts listening on addr, e.g. "127.0.0.1:5050" or ":0"
func ListenTCP(addr string) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &TCPListener{ln: ln}, nil
}

func (l *TCPListener) Accept() (Conn, error) {
	c, err := l.ln.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrListenerClosed
		}
		return nil, err
	}
	return NewLineConn(c, c.RemoteAddr().String()), nil
}

func (l *TCPListener) Close() error {
	return l.ln.Close()
}

func (l *TCPListener) Addr() string {
	return l.ln.Addr().String()
}

func (l *TCPListener) Kind() string {
	return "tcp"
}

// LineConn frames messages as lines over any byte stream
type LineConn struct {
	rwc     io.ReadWriteCloser
	scanner *bufio.Scanner
	remote  string

	mu     sync.Mutex // serializes writes
	closed bool
}

func NewLineConn(rwc io.ReadWriteCloser, remote string) *LineConn {
	scanner := bufio.NewScanner(rwc)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	return &LineConn{rwc: rwc, scanner: scanner, remote: remote}
}

// ReadMessage returns the next line without its terminator
func (c *LineConn) ReadMessage() (string, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimRight(c.scanner.Text(), "\r"), nil
}

func (c *LineConn) WriteMessage(reply Reply) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	_, err := io.WriteString(c.rwc, reply.String()+"\n")
	return err
}

func (c *LineConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.rwc.Close()
}

func (c *LineConn) RemoteAddr() string {
	return c.remote
}

package transport

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WSListener turns upgraded HTTP requests into connections. it does not
// listen itself; mount Handler on an HTTP router.
type WSListener struct {
	upgrader websocket.Upgrader
	conns    chan *WSConn
	done     chan struct{}
	once     sync.Once
	path     string
}

// NewWSListener creates a listener for upgrades served at path. origins are
// not checked; the admin surface is expected to be bound to a trusted
// interface.
func NewWSListener(path string) *WSListener {
	return &WSListener{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		conns: make(chan *WSConn),
		done:  make(chan struct{}),
		path:  path,
	}
}

func (l *WSListener) Accept() (Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, ErrListenerClosed
	}
}

func (l *WSListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func (l *WSListener) Addr() string {
	return l.path
}

func (l *WSListener) Kind() string {
	return "ws"
}

// Handler upgrades the request and hands the connection to Accept. the
// request stays open until the connection is closed so that HTTP server
// shutdown waits for it.
func (l *WSListener) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		select {
		case <-l.done:
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "listener closed"})
			return
		default:
		}

		ws, err := l.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// the upgrader has already written an error response
			return
		}

		conn := newWSConn(ws)
		select {
		case l.conns <- conn:
		case <-l.done:
			conn.Close()
			return
		}
		<-conn.closed
	}
}

// WSConn carries one protocol message per text frame
type WSConn struct {
	ws     *websocket.Conn
	closed chan struct{}
	once   sync.Once
	mu     sync.Mutex // serializes writes
}

func newWSConn(ws *websocket.Conn) *WSConn {
	// an oversized frame fails the read and closes the connection
	ws.SetReadLimit(maxLineSize)
	return &WSConn{ws: ws, closed: make(chan struct{})}
}

func (c *WSConn) ReadMessage() (string, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", io.EOF
			}
			return "", err
		}
		if kind == websocket.TextMessage {
			return strings.TrimRight(string(data), "\r\n"), nil
		}
		// binary frames are not part of the protocol
	}
}

func (c *WSConn) WriteMessage(reply Reply) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	return c.ws.WriteMessage(websocket.TextMessage, []byte(reply.String()))
}

func (c *WSConn) Close() error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		_ = c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.mu.Unlock()
		err = c.ws.Close()
		close(c.closed)
	})
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

func (c *WSConn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

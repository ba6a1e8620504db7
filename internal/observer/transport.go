package observer

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// WebsocketDialer connects to the feed server's /ws endpoint.
type WebsocketDialer struct {
	URL    string
	Header http.Header
	*websocket.Dialer
}

// NewWebsocketDialer creates a dialer for url using websocket.DefaultDialer.
func NewWebsocketDialer(url string) *WebsocketDialer {
	return &WebsocketDialer{URL: url, Dialer: websocket.DefaultDialer}
}

func (d *WebsocketDialer) Dial(ctx context.Context) (Stream, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		return nil, err
	}
	return &websocketStream{conn: conn}, nil
}

// websocketStream serializes writes; reads happen on the engine goroutine
// only. Control frames such as pings are answered while Read is blocked.
type websocketStream struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (s *websocketStream) Read(ctx context.Context) ([]byte, error) {
	// Unblock ReadMessage when ctx ends.
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	for {
		op, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		if op == websocket.TextMessage {
			return data, nil
		}
	}
}

func (s *websocketStream) Write(ctx context.Context, frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	s.conn.SetWriteDeadline(deadline)
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *websocketStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}

package hub

import (
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// WSSink adapts a gorilla websocket connection to the hub's Sink.
type WSSink struct {
	conn *websocket.Conn
}

// NewWSSink wraps an upgraded websocket connection.
func NewWSSink(conn *websocket.Conn) *WSSink {
	return &WSSink{conn: conn}
}

// Send writes one event frame with a bounded deadline.
func (s *WSSink) Send(data []byte) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and tears the connection down.
func (s *WSSink) Close() error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}

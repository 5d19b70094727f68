package websocket

// Conn is the minimal transport surface the hub writes to. A
// *gorilla/websocket.Conn satisfies it; tests substitute in-memory fakes.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

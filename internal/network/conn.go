package network

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	readLimit    = 64 * 1024
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

type frameKind uint8

const (
	kindText   frameKind = 1
	kindBinary frameKind = 2
)

// link is one established connection to the overlay.
type link interface {
	Read() (frameKind, []byte, error)
	Write(kind frameKind, data []byte) error
	Ping() error
	Close() error
}

// wsLink carries frames as websocket text and binary messages.
type wsLink struct {
	conn *websocket.Conn
}

func dialWebsocket(url, token string) (link, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	return &wsLink{conn: conn}, nil
}

func (l *wsLink) Read() (frameKind, []byte, error) {
	for {
		mt, data, err := l.conn.ReadMessage()
		if err != nil {
			return 0, nil, err
		}
		switch mt {
		case websocket.TextMessage:
			return kindText, data, nil
		case websocket.BinaryMessage:
			return kindBinary, data, nil
		}
	}
}

func (l *wsLink) Write(kind frameKind, data []byte) error {
	mt := websocket.TextMessage
	if kind == kindBinary {
		mt = websocket.BinaryMessage
	}
	l.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return l.conn.WriteMessage(mt, data)
}

func (l *wsLink) Ping() error {
	l.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return l.conn.WriteMessage(websocket.PingMessage, nil)
}

func (l *wsLink) Close() error { return l.conn.Close() }

// streamLink frames messages over a byte stream such as a named pipe:
// [kind(1)] [length(4)] [data].
type streamLink struct {
	conn net.Conn
	r    *bufio.Reader
	wmu  sync.Mutex
}

var errFrameTooLarge = errors.New("network: frame exceeds read limit")

func newStreamLink(conn net.Conn) *streamLink {
	return &streamLink{conn: conn, r: bufio.NewReader(conn)}
}

func (l *streamLink) Read() (frameKind, []byte, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(l.r, hdr[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(hdr[1:])
	if n > readLimit {
		return 0, nil, errFrameTooLarge
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(l.r, data); err != nil {
		return 0, nil, err
	}
	return frameKind(hdr[0]), data, nil
}

func (l *streamLink) Write(kind frameKind, data []byte) error {
	buf := make([]byte, 5+len(data))
	buf[0] = byte(kind)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(data)))
	copy(buf[5:], data)

	l.wmu.Lock()
	defer l.wmu.Unlock()
	l.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_, err := l.conn.Write(buf)
	return err
}

// Ping is a no-op; a broken pipe surfaces on the next read or write.
func (l *streamLink) Ping() error { return nil }

func (l *streamLink) Close() error { return l.conn.Close() }

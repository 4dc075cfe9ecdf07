package websocket

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/robotalks/ringlog/pkg/transport"
)

func TestPacketsOverWebsocket(t *testing.T) {
	received := make(chan []byte, 2)
	server := httptest.NewServer(websocket.Handler(func(conn *websocket.Conn) {
		rw := New(conn)
		for {
			pkt, err := rw.ReadPacket()
			if err != nil {
				close(received)
				return
			}
			received <- pkt
		}
	}))
	defer server.Close()

	rw, err := Dial("ws"+strings.TrimPrefix(server.URL, "http"), server.URL)
	require.NoError(t, err)
	require.NoError(t, transport.WritePacket(rw, []byte("first\n"), time.Second))
	require.NoError(t, rw.WritePacket([]byte{0, 1, 2}))
	require.Equal(t, "first\n", string(<-received))
	require.Equal(t, []byte{0, 1, 2}, <-received)
	require.NoError(t, rw.Close())
	_, ok := <-received
	require.False(t, ok)
}

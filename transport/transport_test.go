package transport_test

import (
	"bytes"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/transport"
	"github.com/stretchr/testify/require"
)

// pipeConn adapts a bytes.Buffer pair into an io.ReadWriteCloser for
// single-sided framing tests that don't need a real duplex link.
type pipeConn struct {
	r io.Reader
	w io.Writer
}

func (p pipeConn) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p pipeConn) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p pipeConn) Close() error                { return nil }

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	c := transport.New(pipeConn{r: &buf, w: &buf})

	require.NoError(t, c.WriteFrame([]byte("hello")))
	require.NoError(t, c.WriteFrame([]byte{}))
	require.NoError(t, c.WriteFrame([]byte("world")))

	got, err := c.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)

	got, err = c.ReadFrame()
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = c.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, []byte("world"), got)
}

func TestWriteFrameRejectsOversized(t *testing.T) {
	var buf bytes.Buffer
	c := transport.New(pipeConn{r: &buf, w: &buf})

	err := c.WriteFrame(make([]byte, transport.MaxFrameSize+1))
	require.Error(t, err)
	require.Equal(t, errs.InvalidMessage, errs.CodeOf(err))
}

func TestReadFrameRejectsOversizedLengthPrefix(t *testing.T) {
	var buf bytes.Buffer
	// Hand-craft a length prefix above MaxFrameSize without ever
	// allocating the claimed payload.
	buf.Write([]byte{0, 0, 0, 0xFF})
	c := transport.New(pipeConn{r: &buf, w: io.Discard})

	_, err := c.ReadFrame()
	require.Error(t, err)
	require.Equal(t, errs.InvalidMessage, errs.CodeOf(err))
}

func TestReadFrameReturnsConnectionLostOnEOF(t *testing.T) {
	var buf bytes.Buffer
	c := transport.New(pipeConn{r: &buf, w: io.Discard})

	_, err := c.ReadFrame()
	require.Error(t, err)
	require.Equal(t, errs.ConnectionLost, errs.CodeOf(err))
}

func TestWriteFrameConcurrentSafe(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sc := transport.New(server)
	cc := transport.New(client)

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			require.NoError(t, cc.WriteFrame([]byte("x")))
		}()
	}

	received := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for received < n {
			_, err := sc.ReadFrame()
			if err != nil {
				return
			}
			received++
		}
	}()

	wg.Wait()
	<-done
	require.Equal(t, n, received)
}

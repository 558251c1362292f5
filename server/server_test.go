package server

import (
	"bufio"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hulld/config"
	"hulld/geo"
	"hulld/graph"
	"hulld/out"
)

func startServer(t *testing.T, mode, policy string) (*Server, *graph.Store, string) {
	t.Helper()
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.Mode = mode
	cfg.Policy = policy

	store := graph.NewStore()
	srv := New(cfg, store, out.NewLogger(log.New(io.Discard, "", 0)))

	ln, err := net.Listen("tcp", cfg.Addr)
	require.NoError(t, err)
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })
	return srv, store, ln.Addr().String()
}

type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
}

func (c *testClient) recv() string {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimSuffix(line, "\n")
}

func (c *testClient) roundTrip(line string) string {
	c.t.Helper()
	c.send(line)
	return c.recv()
}

var modes = []string{config.ModeWorkers, config.ModeReactor}

func TestConversation(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode, func(t *testing.T) {
			_, _, addr := startServer(t, mode, config.PolicyStrict)
			c := dial(t, addr)

			assert.Equal(t, "0", c.roundTrip("CH"))
			assert.Equal(t, "OK", c.roundTrip("Newpoint 0,0"))
			assert.Equal(t, "OK", c.roundTrip("Newpoint 0,10"))
			assert.Equal(t, "OK", c.roundTrip("Newpoint 10,10"))
			assert.Equal(t, "OK", c.roundTrip("Newpoint 10,0"))
			assert.Equal(t, "100", c.roundTrip("CH"))
			assert.Equal(t, "ERROR: Unknown command.", c.roundTrip("hello"))
			assert.Equal(t, "ERROR: Invalid number.", c.roundTrip("Newgraph abc"))
		})
	}
}

func TestPipelinedLines(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode, func(t *testing.T) {
			_, _, addr := startServer(t, mode, config.PolicyStrict)
			c := dial(t, addr)

			// several lines in one write, including an empty one that
			// must yield no response
			_, err := c.conn.Write([]byte("Newpoint 0,0\n\nNewpoint 4,0\nNewpoint 0,3\nCH\n"))
			require.NoError(t, err)

			assert.Equal(t, "OK", c.recv())
			assert.Equal(t, "OK", c.recv())
			assert.Equal(t, "OK", c.recv())
			assert.Equal(t, "6", c.recv())
		})
	}
}

func TestUploadBlocksOtherClients(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode, func(t *testing.T) {
			_, store, addr := startServer(t, mode, config.PolicyStrict)
			owner := dial(t, addr)
			other := dial(t, addr)

			require.Equal(t, "OK", owner.roundTrip("Newgraph 3"))
			assert.Equal(t, "BUSY", other.roundTrip("CH"))
			assert.Equal(t, "BUSY", other.roundTrip("Newpoint 1,1"))

			assert.Equal(t, "OK", owner.roundTrip("0,0"))
			assert.Equal(t, "OK", owner.roundTrip("10,0"))
			assert.Equal(t, "GRAPH_LOADED", owner.roundTrip("5,8"))

			assert.Equal(t, []geo.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 5, Y: 8}}, store.Points())
			assert.Equal(t, "40", other.roundTrip("CH"))
		})
	}
}

func TestSharedPolicyOverTCP(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode, func(t *testing.T) {
			_, _, addr := startServer(t, mode, config.PolicyShared)
			owner := dial(t, addr)
			other := dial(t, addr)

			require.Equal(t, "OK", owner.roundTrip("Newgraph 2"))
			assert.Equal(t, "OK", other.roundTrip("Newpoint 1,1"))
			assert.Equal(t, "0", other.roundTrip("CH"))
			assert.Equal(t, "BUSY", other.roundTrip("Newgraph 1"))
			assert.Equal(t, "BUSY", other.roundTrip("5,5"))
		})
	}
}

func TestOwnerDisconnectReleasesUpload(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode, func(t *testing.T) {
			_, store, addr := startServer(t, mode, config.PolicyStrict)
			store.AddPoint(geo.Point{X: 7, Y: 7})

			owner := dial(t, addr)
			other := dial(t, addr)

			require.Equal(t, "OK", owner.roundTrip("Newgraph 3"))
			require.Equal(t, "OK", owner.roundTrip("1,1"))
			require.Equal(t, "BUSY", other.roundTrip("CH"))

			require.NoError(t, owner.conn.Close())

			// ownership release races with the next command, poll until
			// the abandoned session has been cleaned up
			deadline := time.Now().Add(2 * time.Second)
			for {
				resp := other.roundTrip("Newgraph 1")
				if resp == "OK" {
					break
				}
				require.Equal(t, "BUSY", resp)
				require.True(t, time.Now().Before(deadline), "upload ownership was not released")
				time.Sleep(10 * time.Millisecond)
			}

			// the abandoned upload left the prior graph intact
			assert.Equal(t, []geo.Point{{X: 7, Y: 7}}, store.Points())
			assert.Equal(t, "GRAPH_LOADED", other.roundTrip("3,3"))
			assert.Equal(t, []geo.Point{{X: 3, Y: 3}}, store.Points())
		})
	}
}

func TestCloseUnblocksServe(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode, func(t *testing.T) {
			cfg := config.Default()
			cfg.Addr = "127.0.0.1:0"
			cfg.Mode = mode

			srv := New(cfg, graph.NewStore(), out.NewLogger(log.New(io.Discard, "", 0)))
			ln, err := net.Listen("tcp", cfg.Addr)
			require.NoError(t, err)

			done := make(chan error, 1)
			go func() { done <- srv.Serve(ln) }()

			c := dial(t, ln.Addr().String())
			require.Equal(t, "OK", c.roundTrip("Newpoint 1,1"))

			require.NoError(t, srv.Close())
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(3 * time.Second):
				t.Fatal("Serve did not return after Close")
			}
		})
	}
}

// lateListener models a connection whose Accept returns concurrently with
// Close: the first Accept hands out its conn only once released, ignoring
// the listener close, and every later Accept fails as a closed listener
// would.
type lateListener struct {
	conn    net.Conn
	release chan struct{}
	closed  chan struct{}

	mu    sync.Mutex
	taken bool
	once  sync.Once
}

func newLateListener(conn net.Conn) *lateListener {
	return &lateListener{conn: conn, release: make(chan struct{}), closed: make(chan struct{})}
}

func (l *lateListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	first := !l.taken
	l.taken = true
	l.mu.Unlock()
	if first {
		<-l.release
		return l.conn, nil
	}
	<-l.closed
	return nil, net.ErrClosed
}

func (l *lateListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *lateListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

func TestConnAcceptedDuringCloseIsDropped(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode, func(t *testing.T) {
			cfg := config.Default()
			cfg.Mode = mode

			srv := New(cfg, graph.NewStore(), out.NewLogger(log.New(io.Discard, "", 0)))
			serverSide, clientSide := net.Pipe()
			t.Cleanup(func() { clientSide.Close() })
			ln := newLateListener(serverSide)

			done := make(chan error, 1)
			go func() { done <- srv.Serve(ln) }()
			time.Sleep(50 * time.Millisecond) // let the dispatcher block in Accept

			require.NoError(t, srv.Close())

			// deliver the connection whose Accept raced Close; it must be
			// dropped, never handed to a worker
			close(ln.release)

			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(3 * time.Second):
				t.Fatal("Serve did not return after Close")
			}

			require.NoError(t, clientSide.SetReadDeadline(time.Now().Add(time.Second)))
			_, err := clientSide.Read(make([]byte, 1))
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestPartialLineIsNotProcessed(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode, func(t *testing.T) {
			_, _, addr := startServer(t, mode, config.PolicyStrict)
			c := dial(t, addr)

			// split one line across two writes; only the completed line
			// gets a response
			_, err := c.conn.Write([]byte("Newpoint 1"))
			require.NoError(t, err)
			time.Sleep(50 * time.Millisecond)
			_, err = c.conn.Write([]byte(",2\nCH\n"))
			require.NoError(t, err)

			assert.Equal(t, "OK", c.recv())
			assert.Equal(t, "0", c.recv())
		})
	}
}

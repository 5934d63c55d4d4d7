// Package ftptest provides a small in-process FTP server for testing
// directory traversals.
//
// The server speaks just enough of the protocol for a read-only walk:
// login, navigation, FEAT, passive data connections and the LIST, NLST
// and MLSD listing commands. It serves a fixture tree described by a
// Dir and listens on a loopback port chosen by the kernel:
//
//	srv := ftptest.New(ftptest.Dir{
//	    "readme.txt": "hello",
//	    "pub": ftptest.Dir{
//	        "data.csv": "a,b,c",
//	    },
//	})
//	defer srv.Close()
//
//	w := ftpwalk.Walk(srv.URL())
//	...
//
// Directory entries are listed in name order, so traversal order is
// deterministic.
package ftptest

import (
	"fmt"
	"log/slog"
	"maps"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Dir describes a directory to serve: string values are file contents
// and nested Dir values are subdirectories.
type Dir map[string]any

// fixtureTime is the modification time reported for every fixture entry.
var fixtureTime = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// node is a materialized fixture entry.
type node struct {
	name     string
	dir      bool
	content  string
	children []*node // in name order
}

func (n *node) child(name string) *node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// buildTree materializes a Dir fixture into a node tree rooted at "/".
func buildTree(d Dir) *node {
	root := &node{name: "/", dir: true}
	fill(root, d)
	return root
}

func fill(n *node, d Dir) {
	for _, name := range slices.Sorted(maps.Keys(d)) {
		switch v := d[name].(type) {
		case string:
			n.children = append(n.children, &node{name: name, content: v})
		case Dir:
			child := &node{name: name, dir: true}
			fill(child, v)
			n.children = append(n.children, child)
		default:
			panic(fmt.Sprintf("ftptest: entry %q must be a string or a Dir, got %T", name, v))
		}
	}
}

// Server is an FTP server listening on a local loopback port.
type Server struct {
	root   *node
	logger *slog.Logger

	// auth, when set, is the only accepted login
	auth *credentials

	// disableMLSD hides MLSD from FEAT and rejects the command
	disableMLSD bool

	// disableEPSV rejects EPSV with 502, forcing clients onto PASV
	disableEPSV bool

	// failCWD lists absolute paths that answer CWD with 550 even though
	// they exist, simulating permission problems
	failCWD map[string]bool

	// extraList holds raw lines appended to every LIST response
	extraList []string

	ln     net.Listener
	addr   string
	closed atomic.Bool
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

type credentials struct {
	user     string
	password string
}

// Option configures a test server.
type Option func(*Server)

// WithAuth makes the server accept only the given login. By default any
// username and password are accepted.
func WithAuth(user, password string) Option {
	return func(s *Server) {
		s.auth = &credentials{user: user, password: password}
	}
}

// WithoutMLSD drops MLSD from the advertised features and rejects the
// command, for testing the LIST fallback.
func WithoutMLSD() Option {
	return func(s *Server) {
		s.disableMLSD = true
	}
}

// WithoutEPSV rejects EPSV with a 502 reply, for testing the client's
// fallback to PASV.
func WithoutEPSV() Option {
	return func(s *Server) {
		s.disableEPSV = true
	}
}

// WithFailCWD makes CWD to the given absolute path fail with a 550
// reply even though the directory exists, simulating a directory the
// server refuses to enter.
func WithFailCWD(path string) Option {
	return func(s *Server) {
		s.failCWD[path] = true
	}
}

// WithExtraListLines appends raw lines to every LIST response, for
// exercising client behavior on entries the fixture cannot express,
// such as symlinks or summary lines.
func WithExtraListLines(lines ...string) Option {
	return func(s *Server) {
		s.extraList = append(s.extraList, lines...)
	}
}

// WithLogger enables debug logging of the server's protocol exchanges.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New starts a server for the given fixture tree on a loopback address.
// The caller must Close it when done. New panics if it cannot listen,
// which in a test is only ever an environment problem.
func New(root Dir, options ...Option) *Server {
	s := &Server{
		root:    buildTree(root),
		logger:  slog.New(slog.DiscardHandler),
		failCWD: make(map[string]bool),
		conns:   make(map[net.Conn]struct{}),
	}

	for _, opt := range options {
		opt(s)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(fmt.Sprintf("ftptest: failed to listen: %v", err))
	}
	s.ln = ln
	s.addr = ln.Addr().String()

	s.wg.Add(1)
	go s.acceptLoop()

	return s
}

// Addr returns the server's address in host:port form.
func (s *Server) Addr() string {
	return s.addr
}

// ActiveConns returns the number of control connections currently open.
// Tests use it to verify that clients release their connections.
func (s *Server) ActiveConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// URL returns the server's address as an FTP URL.
func (s *Server) URL() string {
	return "ftp://" + s.addr
}

// Close stops the server: it closes the listener and every open
// connection and waits for the session goroutines to finish. Close is
// idempotent.
func (s *Server) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	s.ln.Close()

	s.mu.Lock()
	for conn := range maps.Keys(s.conns) {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		if !s.trackConn(conn, true) {
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.trackConn(conn, false)
			newSession(s, conn).serve()
		}()
	}
}

// trackConn returns false when the server is shutting down.
func (s *Server) trackConn(conn net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return false
	}
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
	return true
}

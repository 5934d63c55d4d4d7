package ftpwalk

import (
	"iter"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gonzalop/ftpwalk/internal/pacer"
)

// DefaultPause is the delay between directory listings when WithPause
// is not given.
const DefaultPause = 500 * time.Millisecond

// Walker traverses a remote directory tree in depth-first pre-order,
// producing one Listing per visited directory: a parent always comes
// before its subdirectories, and subdirectories of a parent appear in
// server listing order.
//
// Records are produced lazily. Walk performs no network activity; each
// call to Next does the round-trips for exactly one directory (plus the
// connection setup on the first call). A Walker is not restartable; for
// a fresh traversal, call Walk again.
//
// Next, Listing and Err belong to a single consuming goroutine. Close
// may be called from any goroutine.
type Walker struct {
	// configuration, fixed once Walk returns
	rawurl     string
	depth      int
	pause      time.Duration
	useMLSD    bool
	user       string
	password   string
	hasCreds   bool
	client     *Client
	clientOpts []Option

	// pace inserts the delay between listings
	pace *pacer.Pacer

	// traversal state, touched only by the consuming goroutine
	target   *Target
	stack    []frame
	cur      *Listing
	err      error
	started  bool
	done     bool
	paceNext bool
	mlsdOn   bool

	// connection in use; owned reports whether the walker must close it
	mu    sync.Mutex
	conn  *Client
	owned bool

	// close protocol
	quit      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

// frame is one pending directory on the traversal stack.
type frame struct {
	// url is the directory's record URL, the caller's root URL plus
	// slash-joined names
	url string

	// path is the absolute remote path used for CWD
	path string

	// depth is how many levels below this directory may still be
	// descended into; negative means unbounded
	depth int
}

// Walk starts a lazy depth-first traversal of the directory tree rooted
// at rawurl.
//
// The URL has the form ftp://[user[:password]@]host[:port][/path]; the
// scheme may be omitted. Embedded credentials are used to log in (or
// overridden with WithCredentials), anonymous login otherwise. Nothing
// is dialed until the first call to Next, and errors, including a
// malformed URL, surface through Err.
//
// The traversal visits every directory under the root by default; bound
// it with WithDepth. Listings come from LIST unless WithMLSD is given
// and the server supports it. Between listings the walker pauses for
// DefaultPause, tunable with WithPause.
//
// Example:
//
//	w := ftpwalk.Walk("ftp://ftp.example.com/pub", ftpwalk.WithDepth(2))
//	defer w.Close()
//	for w.Next() {
//	    l := w.Listing()
//	    fmt.Println(l.URL, l.Dirs, l.Files)
//	}
//	if err := w.Err(); err != nil {
//	    log.Fatal(err)
//	}
func Walk(rawurl string, options ...WalkOption) *Walker {
	w := &Walker{
		rawurl: rawurl,
		depth:  -1,
		pause:  DefaultPause,
		quit:   make(chan struct{}),
	}

	for _, opt := range options {
		if err := opt(w); err != nil {
			w.err = err
			w.done = true
			return w
		}
	}

	w.pace = pacer.New(w.pause)
	return w
}

// Next advances the traversal to the next directory. It returns true
// when a record is available from Listing, false when the traversal is
// exhausted, failed or closed; consult Err to tell the cases apart.
//
// Advancing blocks on the network: Next changes into the directory,
// fetches and parses its listing, and pushes its subdirectories for
// later visits. The inter-listing pause is also served here, before the
// fetch, so two consecutive listings are at least the configured pause
// apart.
func (w *Walker) Next() bool {
	if w.done {
		return false
	}
	if w.closed.Load() {
		w.finish(nil)
		return false
	}

	if !w.started {
		w.started = true
		if err := w.start(); err != nil {
			if w.closed.Load() {
				w.finish(nil)
			} else {
				w.finish(err)
			}
			return false
		}
	}

	if len(w.stack) == 0 {
		w.finish(nil)
		return false
	}

	if w.paceNext && !w.pace.Pause(w.quit) {
		// interrupted by Close
		w.finish(nil)
		return false
	}

	fr := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]

	listing, err := w.list(fr)
	if err != nil {
		if w.closed.Load() {
			// the command failed because Close tore down the
			// connection, not because the server objected
			w.finish(nil)
		} else {
			w.finish(err)
		}
		return false
	}
	w.paceNext = true

	if fr.depth != 0 {
		childDepth := fr.depth - 1
		if fr.depth < 0 {
			childDepth = fr.depth
		}
		// Push in reverse so the first subdirectory is popped next,
		// keeping siblings in listing order under pre-order.
		for i := len(listing.Dirs) - 1; i >= 0; i-- {
			name := listing.Dirs[i]
			w.stack = append(w.stack, frame{
				url:   fr.url + "/" + name,
				path:  path.Join(fr.path, name),
				depth: childDepth,
			})
		}
	}

	w.cur = listing
	return true
}

// start parses the URL and acquires the control connection, either the
// borrowed one or a freshly dialed and authenticated one. It seeds the
// stack with the root directory.
func (w *Walker) start() error {
	target, err := ParseURL(w.rawurl)
	if err != nil {
		return &WalkError{Op: "parse", URL: w.rawurl, Err: err}
	}
	w.target = target

	if w.client != nil {
		w.mu.Lock()
		w.conn = w.client
		w.mu.Unlock()
	} else {
		conn, err := Dial(target.Addr(), w.clientOpts...)
		if err != nil {
			return &WalkError{Op: "connect", URL: w.rawurl, Err: err}
		}

		user, password := target.Credentials()
		if w.hasCreds {
			user, password = w.user, w.password
		}
		if err := conn.Login(user, password); err != nil {
			conn.Quit()
			return &WalkError{Op: "login", URL: w.rawurl, Err: err}
		}

		w.mu.Lock()
		interrupted := w.closed.Load()
		if !interrupted {
			w.conn = conn
			w.owned = true
		}
		w.mu.Unlock()
		if interrupted {
			// Close raced with the dial and never saw this connection
			conn.Quit()
			return &WalkError{Op: "connect", URL: w.rawurl, Err: errClosed}
		}
	}

	if w.useMLSD && w.conn.HasFeature("MLSD") {
		w.mlsdOn = true
	}

	w.stack = append(w.stack, frame{
		url:   normalizeURL(w.rawurl),
		path:  target.Path,
		depth: w.depth,
	})
	return nil
}

// list changes into the directory and fetches and classifies its listing.
func (w *Walker) list(fr frame) (*Listing, error) {
	w.conn.logger.Debug("visiting directory", "url", fr.url, "path", fr.path)

	if err := w.conn.ChangeDir(fr.path); err != nil {
		return nil, &WalkError{Op: "cwd", URL: fr.url, Err: err}
	}

	if w.mlsdOn {
		lines, err := w.conn.MLSDLines("")
		if err != nil {
			return nil, &WalkError{Op: "mlsd", URL: fr.url, Err: err}
		}
		entries, err := parseMLSDLines(lines)
		if err != nil {
			return nil, &WalkError{Op: "mlsd", URL: fr.url, Err: err}
		}
		dirs, files := mlsdNames(entries)
		return &Listing{URL: fr.url, Dirs: dirs, Files: files, Entries: entries}, nil
	}

	lines, err := w.conn.ListLines("")
	if err != nil {
		return nil, &WalkError{Op: "list", URL: fr.url, Err: err}
	}
	dirs, files, err := listNames(lines)
	if err != nil {
		return nil, &WalkError{Op: "list", URL: fr.url, Err: err}
	}
	return &Listing{URL: fr.url, Dirs: dirs, Files: files}, nil
}

// finish ends the traversal, recording err and releasing an owned
// connection. Further calls are no-ops, so the release happens once.
func (w *Walker) finish(err error) {
	if w.done {
		return
	}
	w.done = true
	w.err = err
	w.release()
}

// release sends QUIT and closes the connection if the walker opened it.
// A connection supplied by the caller stays open for its owner.
func (w *Walker) release() {
	w.mu.Lock()
	conn, owned := w.conn, w.owned
	w.mu.Unlock()

	if owned && conn != nil {
		_ = conn.Quit()
	}
}

// Listing returns the record produced by the most recent successful call
// to Next. It is only valid after Next has returned true.
func (w *Walker) Listing() *Listing {
	return w.cur
}

// Err returns the first error encountered by the traversal, or nil. It
// stays nil when the traversal completed or was stopped by Close before
// anything failed.
func (w *Walker) Err() error {
	return w.err
}

// Close stops the traversal and releases its resources. After Close,
// Next returns false; records already produced remain valid.
//
// Close is safe to call from any goroutine and at any time, including
// while Next is blocked on the network in another goroutine: a
// connection the walker opened is then shut down immediately, aborting
// the command in flight. A connection supplied via WithClient is never
// closed, only the traversal state is discarded.
func (w *Walker) Close() error {
	w.closed.Store(true)
	w.closeOnce.Do(func() {
		close(w.quit)
	})

	w.mu.Lock()
	conn, owned := w.conn, w.owned
	w.mu.Unlock()

	if owned && conn != nil {
		_ = conn.Close()
	}
	return nil
}

// All returns the remaining records as an iterator. The walker is closed
// when the loop ends, however it ends, so a plain range loop needs no
// separate cleanup:
//
//	for listing, err := range ftpwalk.Walk(url).All() {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(listing.URL)
//	}
//
// A traversal error is yielded as the final pair, with a nil listing.
func (w *Walker) All() iter.Seq2[*Listing, error] {
	return func(yield func(*Listing, error) bool) {
		defer w.Close()
		for w.Next() {
			if !yield(w.cur, nil) {
				return
			}
		}
		if err := w.Err(); err != nil {
			yield(nil, err)
		}
	}
}

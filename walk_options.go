package ftpwalk

import (
	"errors"
	"fmt"
	"time"
)

// WalkOption is a functional option for configuring a traversal.
type WalkOption func(*Walker) error

// WithDepth bounds how many levels below the root the traversal descends.
// Negative means unbounded (the default), 0 lists only the root directory
// itself, and k > 0 descends at most k levels below the root.
func WithDepth(depth int) WalkOption {
	return func(w *Walker) error {
		w.depth = depth
		return nil
	}
}

// WithPause sets the delay between directory listings. The default is
// DefaultPause; zero disables the delay entirely.
func WithPause(pause time.Duration) WalkOption {
	return func(w *Walker) error {
		if pause < 0 {
			return fmt.Errorf("pause must not be negative: %v", pause)
		}
		w.pause = pause
		return nil
	}
}

// WithClient runs the traversal over an existing, already-authenticated
// connection instead of dialing a new one. The walker borrows the client:
// it is never closed, however the traversal ends, and credentials (from
// the URL or WithCredentials) are not used. The caller must not issue
// commands on the client until the traversal is over, and should note
// that the traversal changes the client's working directory.
func WithClient(client *Client) WalkOption {
	return func(w *Walker) error {
		if client == nil {
			return errors.New("client must not be nil")
		}
		w.client = client
		return nil
	}
}

// WithCredentials logs in with the given username and password,
// overriding any credentials embedded in the URL.
func WithCredentials(user, password string) WalkOption {
	return func(w *Walker) error {
		w.user = user
		w.password = password
		w.hasCreds = true
		return nil
	}
}

// WithMLSD requests machine-readable MLSD listings instead of LIST. Each
// record then carries the full per-entry metadata in Listing.Entries.
// When the server does not advertise MLSD in its FEAT response, the
// traversal falls back to LIST.
func WithMLSD() WalkOption {
	return func(w *Walker) error {
		w.useMLSD = true
		return nil
	}
}

// WithClientOptions passes client options through to the connection the
// walker dials, for timeouts, logging and the like. It has no effect
// when the connection is supplied via WithClient.
func WithClientOptions(options ...Option) WalkOption {
	return func(w *Walker) error {
		w.clientOpts = append(w.clientOpts, options...)
		return nil
	}
}

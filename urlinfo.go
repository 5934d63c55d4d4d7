package ftpwalk

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// DefaultPort is the control-connection port used when a URL does not name one.
const DefaultPort = "21"

// Target is the decomposed, validated form of an FTP URL. It is produced
// once at the start of a traversal so the rest of the code never has to
// pick hosts, ports or credentials out of strings.
type Target struct {
	// Host is the server hostname or IP address
	Host string

	// Port is the control-connection port (DefaultPort when the URL has none)
	Port string

	// User is the username embedded in the URL, empty for none
	User string

	// Password is the password embedded in the URL, empty for none
	Password string

	// Path is the remote directory path ("/" for the server root)
	Path string
}

// Addr returns the dial address in "host:port" form.
func (t *Target) Addr() string {
	return net.JoinHostPort(t.Host, t.Port)
}

// Credentials returns the username and password to log in with.
// An empty username selects the conventional anonymous login pair.
func (t *Target) Credentials() (user, password string) {
	if t.User == "" {
		return "anonymous", "anonymous@"
	}
	return t.User, t.Password
}

// ParseURL parses and validates an FTP URL of the form
//
//	ftp://[user[:password]@]host[:port][/path]
//
// The scheme may be omitted, in which case "ftp" is assumed. A single
// trailing slash is stripped from the path, and an empty path means the
// server root. Only plain "ftp" is supported.
func ParseURL(rawurl string) (*Target, error) {
	raw := rawurl
	if !strings.Contains(raw, "://") {
		raw = "ftp://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawurl, err)
	}

	if !strings.EqualFold(u.Scheme, "ftp") {
		return nil, fmt.Errorf("unsupported scheme %q in %q", u.Scheme, rawurl)
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("missing host in %q", rawurl)
	}

	port := u.Port()
	if port == "" {
		port = DefaultPort
	}

	t := &Target{
		Host: host,
		Port: port,
		Path: normalizePath(u.Path),
	}

	if u.User != nil {
		t.User = u.User.Username()
		t.Password, _ = u.User.Password()
	}

	return t, nil
}

// normalizePath strips a single trailing slash and maps the empty path to
// the server root.
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = p[:len(p)-1]
	}
	return p
}

// normalizeURL strips a single trailing slash from a directory URL so that
// record URLs have one canonical spelling.
func normalizeURL(rawurl string) string {
	if strings.HasSuffix(rawurl, "/") && !strings.HasSuffix(rawurl, "://") {
		return rawurl[:len(rawurl)-1]
	}
	return rawurl
}

package ftpwalk

import "fmt"

// ListDir fetches the listing of a single directory: the names of its
// subdirectories and files, classified from the server's LIST output
// (or MLSD with WithMLSD). It is equivalent to a depth-zero traversal.
//
// Example:
//
//	l, err := ftpwalk.ListDir("ftp://ftp.example.com/pub")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, name := range l.Files {
//	    fmt.Println(name)
//	}
func ListDir(rawurl string, options ...WalkOption) (*Listing, error) {
	opts := make([]WalkOption, 0, len(options)+2)
	opts = append(opts, options...)
	opts = append(opts, WithDepth(0), WithPause(0))

	w := Walk(rawurl, opts...)
	defer w.Close()

	if !w.Next() {
		if err := w.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("ftpwalk: no listing produced for %s", rawurl)
	}
	return w.Listing(), nil
}

// MLSD fetches the machine-readable listing of a single directory and
// returns every entry the server reported, in listing order, including
// the cdir and pdir entries for the directory itself and its parent.
// It fails when the server does not advertise MLSD support.
func MLSD(rawurl string, options ...WalkOption) ([]*Entry, error) {
	opts := make([]WalkOption, 0, len(options)+3)
	opts = append(opts, options...)
	opts = append(opts, WithDepth(0), WithPause(0), WithMLSD())

	w := Walk(rawurl, opts...)
	defer w.Close()

	if !w.Next() {
		if err := w.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("ftpwalk: no listing produced for %s", rawurl)
	}

	l := w.Listing()
	if l.Entries == nil {
		return nil, fmt.Errorf("ftpwalk: server does not support MLSD for %s", rawurl)
	}
	return l.Entries, nil
}

// IsDir reports whether the URL names an accessible directory, by probing
// it with a change-directory command. A 550 reply (no such directory, or
// not accessible) reports false with a nil error; connection and login
// failures are returned as errors.
//
// Of the traversal options, only WithClient, WithCredentials and
// WithClientOptions are meaningful here. With a borrowed client, the
// probe changes its working directory.
func IsDir(rawurl string, options ...WalkOption) (bool, error) {
	w := Walk(rawurl, options...)
	defer w.release()

	if w.err != nil {
		return false, w.err
	}

	w.started = true
	if err := w.start(); err != nil {
		return false, err
	}

	if err := w.conn.ChangeDir(w.target.Path); err != nil {
		if IsNotExist(err) {
			return false, nil
		}
		return false, &WalkError{Op: "cwd", URL: normalizeURL(w.rawurl), Err: err}
	}
	return true, nil
}

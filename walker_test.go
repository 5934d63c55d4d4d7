package ftpwalk_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonzalop/ftpwalk"
	"github.com/gonzalop/ftpwalk/ftptest"
)

// walkTree is the fixture used by the traversal tests:
//
//	/
//	├── a/
//	│   ├── f1.txt
//	│   └── x/
//	├── b/
//	│   └── y/
//	│       └── deep.txt
//	└── top.txt
func walkTree() ftptest.Dir {
	return ftptest.Dir{
		"a": ftptest.Dir{
			"f1.txt": "one",
			"x":      ftptest.Dir{},
		},
		"b": ftptest.Dir{
			"y": ftptest.Dir{
				"deep.txt": "deep",
			},
		},
		"top.txt": "top",
	}
}

// collect drains the walker and returns every record.
func collect(t *testing.T, w *ftpwalk.Walker) []*ftpwalk.Listing {
	t.Helper()
	var listings []*ftpwalk.Listing
	for w.Next() {
		listings = append(listings, w.Listing())
	}
	return listings
}

func urls(listings []*ftpwalk.Listing) []string {
	out := make([]string, 0, len(listings))
	for _, l := range listings {
		out = append(out, l.URL)
	}
	return out
}

// waitReleased asserts that every control connection to srv is closed soon.
func waitReleased(t *testing.T, srv *ftptest.Server) {
	t.Helper()
	require.Eventually(t, func() bool { return srv.ActiveConns() == 0 },
		2*time.Second, 10*time.Millisecond, "control connection not released")
}

func TestWalkPreOrder(t *testing.T) {
	t.Parallel()
	srv := ftptest.New(walkTree())
	defer srv.Close()

	w := ftpwalk.Walk(srv.URL(), ftpwalk.WithPause(0))
	defer w.Close()

	listings := collect(t, w)
	require.NoError(t, w.Err())

	// Parent before children, siblings in listing order, each directory
	// exactly once, a's subtree complete before b starts.
	root := srv.URL()
	want := []string{root, root + "/a", root + "/a/x", root + "/b", root + "/b/y"}
	assert.Equal(t, want, urls(listings))

	byURL := make(map[string]*ftpwalk.Listing, len(listings))
	for _, l := range listings {
		byURL[l.URL] = l
	}
	assert.Equal(t, []string{"a", "b"}, byURL[root].Dirs)
	assert.Equal(t, []string{"top.txt"}, byURL[root].Files)
	assert.Equal(t, []string{"x"}, byURL[root+"/a"].Dirs)
	assert.Equal(t, []string{"f1.txt"}, byURL[root+"/a"].Files)
	assert.Empty(t, byURL[root+"/a/x"].Dirs)
	assert.Empty(t, byURL[root+"/a/x"].Files)
	assert.Equal(t, []string{"deep.txt"}, byURL[root+"/b/y"].Files)
	for _, l := range listings {
		assert.Nil(t, l.Entries, "LIST mode must not carry MLSD entries")
	}
}

func TestWalkDepth(t *testing.T) {
	t.Parallel()
	srv := ftptest.New(ftptest.Dir{
		"d1": ftptest.Dir{
			"d2": ftptest.Dir{
				"d3": ftptest.Dir{},
			},
		},
	})
	defer srv.Close()

	root := srv.URL()
	tests := []struct {
		name  string
		depth int
		want  []string
	}{
		{
			name:  "depth 0 lists only the root",
			depth: 0,
			want:  []string{root},
		},
		{
			name:  "depth 1 descends one level",
			depth: 1,
			want:  []string{root, root + "/d1"},
		},
		{
			name:  "depth 2 descends two levels",
			depth: 2,
			want:  []string{root, root + "/d1", root + "/d1/d2"},
		},
		{
			name:  "negative depth is unbounded",
			depth: -1,
			want:  []string{root, root + "/d1", root + "/d1/d2", root + "/d1/d2/d3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ftpwalk.Walk(root, ftpwalk.WithDepth(tt.depth), ftpwalk.WithPause(0))
			defer w.Close()

			listings := collect(t, w)
			require.NoError(t, w.Err())
			assert.Equal(t, tt.want, urls(listings))
		})
	}
}

func TestWalkDepthZeroStillListsEntries(t *testing.T) {
	t.Parallel()
	srv := ftptest.New(walkTree())
	defer srv.Close()

	w := ftpwalk.Walk(srv.URL(), ftpwalk.WithDepth(0), ftpwalk.WithPause(0))
	defer w.Close()

	listings := collect(t, w)
	require.NoError(t, w.Err())
	require.Len(t, listings, 1)

	// No recursion, but the root record still names its entries.
	assert.Equal(t, []string{"a", "b"}, listings[0].Dirs)
	assert.Equal(t, []string{"top.txt"}, listings[0].Files)
}

func TestWalkEmptyTree(t *testing.T) {
	t.Parallel()
	srv := ftptest.New(ftptest.Dir{})
	defer srv.Close()

	w := ftpwalk.Walk(srv.URL(), ftpwalk.WithPause(0))
	defer w.Close()

	listings := collect(t, w)
	require.NoError(t, w.Err())
	require.Len(t, listings, 1)
	assert.Empty(t, listings[0].Dirs)
	assert.Empty(t, listings[0].Files)

	waitReleased(t, srv)
}

func TestWalkTrailingSlashNormalized(t *testing.T) {
	t.Parallel()
	srv := ftptest.New(ftptest.Dir{"pub": ftptest.Dir{"sub": ftptest.Dir{}}})
	defer srv.Close()

	w := ftpwalk.Walk(srv.URL()+"/pub/", ftpwalk.WithPause(0))
	defer w.Close()

	listings := collect(t, w)
	require.NoError(t, w.Err())

	want := []string{srv.URL() + "/pub", srv.URL() + "/pub/sub"}
	assert.Equal(t, want, urls(listings))
}

func TestWalkNotRestartable(t *testing.T) {
	t.Parallel()
	srv := ftptest.New(ftptest.Dir{"f.txt": "x"})
	defer srv.Close()

	w := ftpwalk.Walk(srv.URL(), ftpwalk.WithPause(0))
	defer w.Close()

	first := collect(t, w)
	require.Len(t, first, 1)
	require.NoError(t, w.Err())

	// The sequence is exhausted for good; records already produced
	// stay valid.
	assert.False(t, w.Next())
	assert.False(t, w.Next())
	assert.Equal(t, []string{"f.txt"}, first[0].Files)
}

func TestWalkMLSD(t *testing.T) {
	t.Parallel()
	srv := ftptest.New(walkTree())
	defer srv.Close()

	w := ftpwalk.Walk(srv.URL(), ftpwalk.WithMLSD(), ftpwalk.WithPause(0))
	defer w.Close()

	listings := collect(t, w)
	require.NoError(t, w.Err())
	require.Len(t, listings, 5)

	root := listings[0]
	assert.Equal(t, []string{"a", "b"}, root.Dirs)
	assert.Equal(t, []string{"top.txt"}, root.Files)

	// MLSD mode carries the machine-readable entries, cdir included,
	// without changing the classified names.
	require.NotNil(t, root.Entries)
	assert.Equal(t, "cdir", root.Entries[0].Type)
	var fileEntry *ftpwalk.Entry
	for _, e := range root.Entries {
		if e.Name == "top.txt" {
			fileEntry = e
		}
	}
	require.NotNil(t, fileEntry)
	assert.Equal(t, "file", fileEntry.Type)
	assert.Equal(t, int64(len("top")), fileEntry.Size)
	assert.False(t, fileEntry.ModTime.IsZero())
}

func TestWalkMLSDFallsBackToLIST(t *testing.T) {
	t.Parallel()
	srv := ftptest.New(walkTree(), ftptest.WithoutMLSD())
	defer srv.Close()

	w := ftpwalk.Walk(srv.URL(), ftpwalk.WithMLSD(), ftpwalk.WithPause(0))
	defer w.Close()

	listings := collect(t, w)
	require.NoError(t, w.Err())
	require.Len(t, listings, 5)

	// The server has no MLSD, so the traversal quietly used LIST.
	for _, l := range listings {
		assert.Nil(t, l.Entries)
	}
	assert.Equal(t, []string{"a", "b"}, listings[0].Dirs)
}

func TestWalkMissingRoot(t *testing.T) {
	t.Parallel()
	srv := ftptest.New(ftptest.Dir{"pub": ftptest.Dir{}})
	defer srv.Close()

	w := ftpwalk.Walk(srv.URL()+"/no/such/dir", ftpwalk.WithPause(0))
	defer w.Close()

	assert.False(t, w.Next(), "no record may be produced for a missing root")

	err := w.Err()
	require.Error(t, err)
	assert.True(t, ftpwalk.IsNotExist(err), "missing root should satisfy IsNotExist, got %v", err)

	var werr *ftpwalk.WalkError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "cwd", werr.Op)
	assert.Equal(t, srv.URL()+"/no/such/dir", werr.URL)

	waitReleased(t, srv)
}

func TestWalkErrorAbortsTraversal(t *testing.T) {
	t.Parallel()
	srv := ftptest.New(walkTree(), ftptest.WithFailCWD("/b"))
	defer srv.Close()

	w := ftpwalk.Walk(srv.URL(), ftpwalk.WithPause(0))
	defer w.Close()

	listings := collect(t, w)

	// Everything before the failure was yielded; nothing after it.
	root := srv.URL()
	assert.Equal(t, []string{root, root + "/a", root + "/a/x"}, urls(listings))

	err := w.Err()
	require.Error(t, err)
	var werr *ftpwalk.WalkError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "cwd", werr.Op)
	assert.Equal(t, root+"/b", werr.URL, "error must be tagged with the offending URL")

	waitReleased(t, srv)
}

func TestWalkBadCredentials(t *testing.T) {
	t.Parallel()
	srv := ftptest.New(ftptest.Dir{}, ftptest.WithAuth("alice", "secret"))
	defer srv.Close()

	w := ftpwalk.Walk(srv.URL(), ftpwalk.WithCredentials("alice", "wrong"), ftpwalk.WithPause(0))
	defer w.Close()

	assert.False(t, w.Next())

	var werr *ftpwalk.WalkError
	require.ErrorAs(t, w.Err(), &werr)
	assert.Equal(t, "login", werr.Op)

	waitReleased(t, srv)
}

func TestWalkCredentialsOverrideURL(t *testing.T) {
	t.Parallel()
	srv := ftptest.New(ftptest.Dir{"f.txt": "x"}, ftptest.WithAuth("alice", "secret"))
	defer srv.Close()

	// The URL carries stale credentials; WithCredentials wins.
	rawurl := "ftp://bob:oldpass@" + srv.Addr()
	w := ftpwalk.Walk(rawurl, ftpwalk.WithCredentials("alice", "secret"), ftpwalk.WithPause(0))
	defer w.Close()

	listings := collect(t, w)
	require.NoError(t, w.Err())
	require.Len(t, listings, 1)
	assert.Equal(t, []string{"f.txt"}, listings[0].Files)
}

func TestWalkBadURL(t *testing.T) {
	t.Parallel()

	w := ftpwalk.Walk("http://not-ftp.example.com/pub")
	defer w.Close()

	assert.False(t, w.Next())

	var werr *ftpwalk.WalkError
	require.ErrorAs(t, w.Err(), &werr)
	assert.Equal(t, "parse", werr.Op)
}

func TestWalkBorrowedClientNotClosed(t *testing.T) {
	t.Parallel()
	srv := ftptest.New(walkTree(), ftptest.WithFailCWD("/b"))
	defer srv.Close()

	client, err := ftpwalk.Connect(srv.URL())
	require.NoError(t, err)
	defer client.Quit()

	// First traversal fails partway through.
	w := ftpwalk.Walk(srv.URL(), ftpwalk.WithClient(client), ftpwalk.WithPause(0))
	collect(t, w)
	require.Error(t, w.Err())
	require.NoError(t, w.Close())

	// The borrowed connection survived the failure and the Close.
	require.NoError(t, client.Noop())

	// It can immediately carry another traversal.
	w2 := ftpwalk.Walk(srv.URL()+"/a", ftpwalk.WithClient(client), ftpwalk.WithPause(0))
	defer w2.Close()
	listings := collect(t, w2)
	require.NoError(t, w2.Err())
	assert.Equal(t, []string{srv.URL() + "/a", srv.URL() + "/a/x"}, urls(listings))

	require.NoError(t, client.Noop())
	assert.Equal(t, 1, srv.ActiveConns(), "walker must not open its own connection when lent one")
}

func TestWalkOwnedConnectionReleased(t *testing.T) {
	t.Parallel()

	t.Run("after completion", func(t *testing.T) {
		t.Parallel()
		srv := ftptest.New(walkTree())
		defer srv.Close()

		w := ftpwalk.Walk(srv.URL(), ftpwalk.WithPause(0))
		defer w.Close()
		collect(t, w)
		require.NoError(t, w.Err())

		waitReleased(t, srv)
	})

	t.Run("after failure", func(t *testing.T) {
		t.Parallel()
		srv := ftptest.New(walkTree(), ftptest.WithFailCWD("/a"))
		defer srv.Close()

		w := ftpwalk.Walk(srv.URL(), ftpwalk.WithPause(0))
		defer w.Close()
		collect(t, w)
		require.Error(t, w.Err())

		waitReleased(t, srv)
	})

	t.Run("after early close", func(t *testing.T) {
		t.Parallel()
		srv := ftptest.New(walkTree())
		defer srv.Close()

		w := ftpwalk.Walk(srv.URL(), ftpwalk.WithPause(0))
		require.True(t, w.Next(), "first record expected")
		require.NoError(t, w.Close())

		assert.False(t, w.Next())
		assert.NoError(t, w.Err(), "closing is not a traversal failure")

		waitReleased(t, srv)
	})
}

func TestWalkPauseSpacing(t *testing.T) {
	t.Parallel()
	srv := ftptest.New(ftptest.Dir{
		"a": ftptest.Dir{},
		"b": ftptest.Dir{},
	})
	defer srv.Close()

	const pause = 120 * time.Millisecond
	w := ftpwalk.Walk(srv.URL(), ftpwalk.WithPause(pause))
	defer w.Close()

	var stamps []time.Time
	for w.Next() {
		stamps = append(stamps, time.Now())
	}
	require.NoError(t, w.Err())
	require.Len(t, stamps, 3)

	// Consecutive listings are at least the pause apart.
	for i := 1; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		assert.GreaterOrEqual(t, gap, pause, "listings %d and %d only %v apart", i-1, i, gap)
	}
}

func TestWalkCloseInterruptsPause(t *testing.T) {
	t.Parallel()
	srv := ftptest.New(ftptest.Dir{"a": ftptest.Dir{}})
	defer srv.Close()

	w := ftpwalk.Walk(srv.URL(), ftpwalk.WithPause(time.Minute))
	require.True(t, w.Next())

	go func() {
		time.Sleep(50 * time.Millisecond)
		w.Close()
	}()

	// The next advance would sit in the pause for a minute; Close must
	// cut it short.
	start := time.Now()
	assert.False(t, w.Next())
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.NoError(t, w.Err())

	waitReleased(t, srv)
}

func TestWalkAll(t *testing.T) {
	t.Parallel()
	srv := ftptest.New(walkTree())
	defer srv.Close()

	var got []string
	for l, err := range ftpwalk.Walk(srv.URL(), ftpwalk.WithPause(0)).All() {
		require.NoError(t, err)
		got = append(got, l.URL)
	}

	root := srv.URL()
	assert.Equal(t, []string{root, root + "/a", root + "/a/x", root + "/b", root + "/b/y"}, got)
	waitReleased(t, srv)
}

func TestWalkAllBreakReleases(t *testing.T) {
	t.Parallel()
	srv := ftptest.New(walkTree())
	defer srv.Close()

	count := 0
	for _, err := range ftpwalk.Walk(srv.URL(), ftpwalk.WithPause(0)).All() {
		require.NoError(t, err)
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)

	// Abandoning the loop still releases the connection.
	waitReleased(t, srv)
}

func TestWalkAllYieldsError(t *testing.T) {
	t.Parallel()
	srv := ftptest.New(walkTree(), ftptest.WithFailCWD("/a"))
	defer srv.Close()

	var seen []string
	var walkErr error
	for l, err := range ftpwalk.Walk(srv.URL(), ftpwalk.WithPause(0)).All() {
		if err != nil {
			walkErr = err
			assert.Nil(t, l, "the error pair carries no listing")
			continue
		}
		seen = append(seen, l.URL)
	}

	assert.Equal(t, []string{srv.URL()}, seen)
	require.Error(t, walkErr)
	assert.True(t, ftpwalk.IsNotExist(walkErr))
}

package ftpwalk

import (
	"testing"
	"time"
)

func TestWalkOptionValidation(t *testing.T) {
	t.Parallel()

	t.Run("negative pause rejected", func(t *testing.T) {
		w := Walk("ftp://ftp.example.com", WithPause(-time.Second))
		defer w.Close()

		if w.Next() {
			t.Fatal("Next() = true after an option error")
		}
		if w.Err() == nil {
			t.Fatal("Err() = nil, want option error")
		}
	})

	t.Run("nil client rejected", func(t *testing.T) {
		w := Walk("ftp://ftp.example.com", WithClient(nil))
		defer w.Close()

		if w.Next() {
			t.Fatal("Next() = true after an option error")
		}
		if w.Err() == nil {
			t.Fatal("Err() = nil, want option error")
		}
	})

	t.Run("defaults", func(t *testing.T) {
		w := Walk("ftp://ftp.example.com")
		defer w.Close()

		if w.depth != -1 {
			t.Errorf("default depth = %d, want -1 (unbounded)", w.depth)
		}
		if w.pause != DefaultPause {
			t.Errorf("default pause = %v, want %v", w.pause, DefaultPause)
		}
		if w.useMLSD {
			t.Error("MLSD requested by default, want LIST")
		}
	})

	t.Run("zero pause disables the pacer", func(t *testing.T) {
		w := Walk("ftp://ftp.example.com", WithPause(0))
		defer w.Close()

		if w.pace != nil {
			t.Error("pacer allocated for zero pause")
		}
	})
}

func TestWalkOptions(t *testing.T) {
	t.Parallel()

	w := Walk("ftp://ftp.example.com/pub",
		WithDepth(3),
		WithPause(50*time.Millisecond),
		WithMLSD(),
		WithCredentials("alice", "secret"),
	)
	defer w.Close()

	if w.depth != 3 {
		t.Errorf("depth = %d, want 3", w.depth)
	}
	if w.pause != 50*time.Millisecond {
		t.Errorf("pause = %v, want 50ms", w.pause)
	}
	if !w.useMLSD {
		t.Error("useMLSD = false, want true")
	}
	if !w.hasCreds || w.user != "alice" || w.password != "secret" {
		t.Errorf("credentials = (%q, %q, set=%v), want (alice, secret, set=true)",
			w.user, w.password, w.hasCreds)
	}
}

func TestClientOptions(t *testing.T) {
	t.Parallel()

	// Option application happens before the dial, so a failed dial still
	// exercises the option plumbing; an unreachable port keeps it fast.
	_, err := Dial("127.0.0.1:1", WithTimeout(10*time.Millisecond), WithDisableEPSV())
	if err == nil {
		t.Fatal("Dial to a closed port succeeded")
	}

	_, err = Dial("not-an-address", WithTimeout(10*time.Millisecond))
	if err == nil {
		t.Fatal("Dial with a malformed address succeeded")
	}
}

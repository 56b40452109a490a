package kvstore_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/zentalk/doubleratchet/pkg/kvstore"
)

func conformanceSuite(t *testing.T, newStore func() kvstore.Storage) {
	t.Run("GetMissingReturnsErrNotFound", func(t *testing.T) {
		s := newStore()
		if _, err := s.Get("missing"); !errors.Is(err, kvstore.ErrNotFound) {
			t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("PutThenGetRoundTrips", func(t *testing.T) {
		s := newStore()
		if err := s.Put("a", []byte("hello")); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		got, err := s.Get("a")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(got) != "hello" {
			t.Fatalf("Get() = %q, want %q", got, "hello")
		}
	})

	t.Run("PutOverwritesExisting", func(t *testing.T) {
		s := newStore()
		_ = s.Put("a", []byte("first"))
		_ = s.Put("a", []byte("second"))
		got, _ := s.Get("a")
		if string(got) != "second" {
			t.Fatalf("Get() = %q, want %q", got, "second")
		}
	})

	t.Run("DelRemovesKey", func(t *testing.T) {
		s := newStore()
		_ = s.Put("a", []byte("x"))
		if err := s.Del("a"); err != nil {
			t.Fatalf("Del() error = %v", err)
		}
		if _, err := s.Get("a"); !errors.Is(err, kvstore.ErrNotFound) {
			t.Fatalf("Get() after Del() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("DelMissingIsNoop", func(t *testing.T) {
		s := newStore()
		if err := s.Del("missing"); err != nil {
			t.Fatalf("Del(missing) error = %v, want nil", err)
		}
	})

	t.Run("ListReturnsSortedMatchesByPrefix", func(t *testing.T) {
		s := newStore()
		_ = s.Put("devices/b", []byte("1"))
		_ = s.Put("devices/a", []byte("2"))
		_ = s.Put("users/a", []byte("3"))

		keys, err := s.List("devices/")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		want := []string{"devices/a", "devices/b"}
		if len(keys) != len(want) {
			t.Fatalf("List() = %v, want %v", keys, want)
		}
		for i := range want {
			if keys[i] != want[i] {
				t.Fatalf("List()[%d] = %q, want %q", i, keys[i], want[i])
			}
		}
	})

	t.Run("ListWithEmptyPrefixReturnsEverything", func(t *testing.T) {
		s := newStore()
		_ = s.Put("a", []byte("1"))
		_ = s.Put("b", []byte("2"))
		keys, err := s.List("")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(keys) != 2 {
			t.Fatalf("List(\"\") = %v, want 2 keys", keys)
		}
	})
}

func TestMemory(t *testing.T) {
	conformanceSuite(t, func() kvstore.Storage { return kvstore.NewMemory() })
}

func TestSQLite(t *testing.T) {
	dir := t.TempDir()
	n := 0
	conformanceSuite(t, func() kvstore.Storage {
		n++
		path := filepath.Join(dir, "store")
		// Each subtest gets its own file so conformanceSuite's shared
		// cases stay independent, same as the Memory variant above.
		path = path + string(rune('0'+n)) + ".db"
		s, err := kvstore.OpenSQLite(path)
		if err != nil {
			t.Fatalf("OpenSQLite() error = %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestSQLiteListEscapesWildcards(t *testing.T) {
	s, err := kvstore.OpenSQLite(filepath.Join(t.TempDir(), "wild.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer s.Close()

	_ = s.Put("a%b/x", []byte("1"))
	_ = s.Put("aXb/x", []byte("2"))

	keys, err := s.List("a%b/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 1 || keys[0] != "a%b/x" {
		t.Fatalf("List(\"a%%b/\") = %v, want [a%%b/x]", keys)
	}
}

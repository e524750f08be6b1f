package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	_ "modernc.org/sqlite"
)

func newSQLiteStore(t *testing.T) *SQL {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	s := NewSQL(db, dialect.SQLite)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.InitSchema(ctx); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func backends(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemory() },
		"sqlite": func(t *testing.T) Store { return newSQLiteStore(t) },
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			if _, err := s.Get(context.Background(), "ledger", "nope"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if err := s.Delete(context.Background(), "ledger", "nope"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("delete: expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStore_UpdateCreatesThenModifies(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx := context.Background()

			var sawExists []bool
			incr := func(cur []byte, exists bool) ([]byte, error) {
				sawExists = append(sawExists, exists)
				n, _ := strconv.Atoi(string(cur))
				return []byte(strconv.Itoa(n + 1)), nil
			}
			if _, err := s.Update(ctx, "c", "k", incr); err != nil {
				t.Fatalf("first update: %v", err)
			}
			out, err := s.Update(ctx, "c", "k", incr)
			if err != nil {
				t.Fatalf("second update: %v", err)
			}
			if string(out) != "2" {
				t.Fatalf("out = %q, want 2", out)
			}
			if len(sawExists) != 2 || sawExists[0] || !sawExists[1] {
				t.Fatalf("exists flags = %v", sawExists)
			}
			got, err := s.Get(ctx, "c", "k")
			if err != nil || string(got) != "2" {
				t.Fatalf("get = %q, %v", got, err)
			}
		})
	}
}

func TestStore_UpdateCallbackErrorWritesNothing(t *testing.T) {
	boom := errors.New("boom")
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx := context.Background()
			_, err := s.Update(ctx, "c", "k", func([]byte, bool) ([]byte, error) { return nil, boom })
			if !errors.Is(err, boom) {
				t.Fatalf("expected callback error, got %v", err)
			}
			if _, err := s.Get(ctx, "c", "k"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected nothing written, got %v", err)
			}
		})
	}
}

func TestStore_QueryByPrefixSorted(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx := context.Background()
			for _, k := range []string{"2024-05-02/B", "2024-05-01/B", "2024-05-01/A", "2024-05-01_x"} {
				if err := Put(ctx, s, "ledger", k, []byte(`{}`)); err != nil {
					t.Fatalf("put %s: %v", k, err)
				}
			}
			if err := Put(ctx, s, "other", "2024-05-01/Z", []byte(`{}`)); err != nil {
				t.Fatalf("put other: %v", err)
			}

			docs, err := s.Query(ctx, "ledger", Filter{KeyPrefix: "2024-05-01/"})
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			var keys []string
			for _, d := range docs {
				keys = append(keys, d.Key)
			}
			if strings.Join(keys, ",") != "2024-05-01/A,2024-05-01/B" {
				t.Fatalf("keys = %v", keys)
			}

			all, err := s.Query(ctx, "ledger", Filter{})
			if err != nil {
				t.Fatalf("query all: %v", err)
			}
			if len(all) != 4 {
				t.Fatalf("len(all) = %d, want 4", len(all))
			}
		})
	}
}

func TestStore_DeleteRemovesFromQuery(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx := context.Background()
			_ = Put(ctx, s, "locations", "A", []byte(`{"id":"A"}`))
			_ = Put(ctx, s, "locations", "B", []byte(`{"id":"B"}`))
			if err := s.Delete(ctx, "locations", "A"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			docs, _ := s.Query(ctx, "locations", Filter{})
			if len(docs) != 1 || docs[0].Key != "B" {
				t.Fatalf("docs = %+v", docs)
			}
		})
	}
}

// Every successful Update must be reflected in the final value, however the
// writers interleave.
func TestStore_ConcurrentUpdatesLoseNothing(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx := context.Background()

			const workers, perWorker = 6, 20
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
			)
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < perWorker; i++ {
						_, err := s.Update(ctx, "c", "counter", func(cur []byte, _ bool) ([]byte, error) {
							n, _ := strconv.Atoi(string(cur))
							return []byte(strconv.Itoa(n + 1)), nil
						})
						if err != nil && !errors.Is(err, ErrConflict) {
							t.Errorf("update: %v", err)
							return
						}
						if err == nil {
							mu.Lock()
							successes++
							mu.Unlock()
						}
					}
				}()
			}
			wg.Wait()

			got, err := s.Get(ctx, "c", "counter")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if string(got) != strconv.Itoa(successes) {
				t.Fatalf("counter = %s, successful updates = %d", got, successes)
			}
			if successes == 0 {
				t.Fatalf("no update succeeded")
			}
		})
	}
}

func TestMemory_UpdateRetriesOnInterleavedWrite(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = Put(ctx, m, "c", "k", []byte("0"))

	calls := 0
	out, err := m.Update(ctx, "c", "k", func(cur []byte, _ bool) ([]byte, error) {
		calls++
		if calls == 1 {
			// a competing writer lands between read and commit
			_ = Put(ctx, m, "c", "k", []byte("10"))
		}
		n, _ := strconv.Atoi(string(cur))
		return []byte(strconv.Itoa(n + 1)), nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if string(out) != "11" {
		t.Fatalf("out = %s, want 11", out)
	}
}

func TestMemory_GivesUpAfterMaxAttempts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, err := m.Update(ctx, "c", "k", func(cur []byte, _ bool) ([]byte, error) {
		_ = Put(ctx, m, "c", "k", []byte("x"))
		return []byte("y"), nil
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

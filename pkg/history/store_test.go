package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *Store, n int) time.Time {
	t.Helper()
	base := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		err := s.Record(Run{
			ID:              fmt.Sprintf("run-%d", i),
			StartedAt:       base.Add(time.Duration(i) * 24 * time.Hour),
			Duration:        1500 * time.Millisecond,
			Success:         i%2 == 0,
			Stage:           "Done",
			Mode:            "kubectl",
			ResultsProduced: i,
		})
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	return base
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	base := seed(t, s, 3)

	runs, err := s.Recent(2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-2" || runs[1].ID != "run-1" {
		t.Fatalf("Recent(2) = %+v, want run-2, run-1", runs)
	}
	r := runs[0]
	if !r.StartedAt.Equal(base.Add(48*time.Hour)) || r.Duration != 1500*time.Millisecond {
		t.Errorf("timing = %s / %s", r.StartedAt, r.Duration)
	}
	if !r.Success || r.Mode != "kubectl" || r.ResultsProduced != 2 {
		t.Errorf("run = %+v", r)
	}

	all, err := s.Recent(0)
	if err != nil || len(all) != 3 {
		t.Errorf("Recent(0) = %d runs, %v", len(all), err)
	}
}

func TestOlderAndDelete(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, 5)

	older, err := s.Older(2)
	if err != nil {
		t.Fatalf("Older() error = %v", err)
	}
	if len(older) != 3 || older[0].ID != "run-2" || older[2].ID != "run-0" {
		t.Fatalf("Older(2) = %+v", older)
	}
	for _, r := range older {
		if err := s.Delete(r.ID); err != nil {
			t.Fatalf("Delete(%s) error = %v", r.ID, err)
		}
	}
	left, _ := s.Recent(0)
	if len(left) != 2 {
		t.Errorf("%d runs left, want 2", len(left))
	}
	if err := s.Delete("run-0"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("second Delete() error = %v, want ErrRunNotFound", err)
	}
}

func TestGet(t *testing.T) {
	s := openTestStore(t)
	seed(t, s, 1)
	if r, err := s.Get("run-0"); err != nil || r.ID != "run-0" {
		t.Errorf("Get() = %+v, %v", r, err)
	}
	if _, err := s.Get("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}
}

func TestOpenRestrictsPermissions(t *testing.T) {
	s := openTestStore(t)
	info, err := os.Stat(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		t.Errorf("history file mode = %o, want no group/other access", perm)
	}
}

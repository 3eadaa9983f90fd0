package taxonomy_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/framelens/pkg/taxonomy"
)

const watchedYAML = `categories:
  - id: urgency
    color: "#ff0000"
    phrases: [act now]
`

// startWatch writes initial content to a temp taxonomy file and watches it.
func startWatch(t *testing.T) (string, <-chan *taxonomy.Taxonomy) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	if err := os.WriteFile(path, []byte(watchedYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	got := make(chan *taxonomy.Taxonomy, 8)
	deliver := func(tax *taxonomy.Taxonomy) {
		select {
		case got <- tax:
		default:
		}
	}
	w, err := taxonomy.Watch(path, deliver, taxonomy.WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })
	return path, got
}

// waitFor returns the first reloaded taxonomy containing category id. A
// write may surface its truncated intermediate state first.
func waitFor(t *testing.T, got <-chan *taxonomy.Taxonomy, id string) *taxonomy.Taxonomy {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case tax := <-got:
			if _, ok := tax.Category(id); ok {
				return tax
			}
		case <-deadline:
			t.Fatalf("no reload containing %q within 3s", id)
			return nil
		}
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	t.Parallel()
	path, got := startWatch(t)

	updated := watchedYAML + "  - id: blame\n    color: \"#00ff00\"\n    phrases: [your fault]\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	tax := waitFor(t, got, "blame")
	if _, ok := tax.Category("urgency"); !ok || tax.Len() != 2 {
		t.Errorf("reloaded taxonomy has %d categories, want urgency and blame", tax.Len())
	}
}

func TestWatch_FollowsAtomicReplace(t *testing.T) {
	t.Parallel()
	path, got := startWatch(t)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte("categories:\n  - id: replaced\n    color: \"#000\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	if tax := waitFor(t, got, "replaced"); tax.Len() != 1 {
		t.Errorf("categories = %v, want only replaced", tax.Categories())
	}
}

func TestWatch_SkipsInvalidEdit(t *testing.T) {
	t.Parallel()
	path, got := startWatch(t)

	if err := os.WriteFile(path, []byte("categories:\n  - colour: nope\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	timeout := time.After(200 * time.Millisecond)
wait:
	for {
		select {
		case tax := <-got:
			if tax.Len() > 0 {
				t.Fatalf("invalid edit delivered a taxonomy with %d categories", tax.Len())
			}
		case <-timeout:
			break wait
		}
	}

	if err := os.WriteFile(path, []byte(watchedYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, got, "urgency")
}

func TestWatch_IgnoresSiblingFiles(t *testing.T) {
	t.Parallel()
	path, got := startWatch(t)

	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte(watchedYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-got:
		t.Fatal("a sibling file triggered a reload")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatch_Errors(t *testing.T) {
	t.Parallel()
	missing := filepath.Join(t.TempDir(), "nope", "taxonomy.yaml")
	if _, err := taxonomy.Watch(missing, nil); err == nil {
		t.Error("Watch in a missing directory should fail")
	}
}

func TestFileWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	w, err := taxonomy.Watch(path, nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if w.Path() != path {
		t.Errorf("Path = %q, want %q", w.Path(), path)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("first Stop: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

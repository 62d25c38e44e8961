package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgnsrekt/habla/internal/ttypes"
)

func newTestStore(t *testing.T, max int) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "state", "history.json.zst"), max)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SaveLoad(t *testing.T) {
	s := newTestStore(t, 0)

	msgs, err := s.Load()
	if err != nil || msgs != nil {
		t.Fatalf("empty Load = %v, %v", msgs, err)
	}

	want := []ttypes.Message{
		{ID: "a", Role: ttypes.RoleUser, Text: "Hola, ¿cómo estás?"},
		{ID: "b", Role: ttypes.RoleAssistant, Text: "¡Muy bien!", Translation: "Very well!"},
	}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 2 || got[0].Text != want[0].Text || got[1].Translation != "Very well!" {
		t.Errorf("Load = %+v", got)
	}
}

func TestStore_KeepsNewest(t *testing.T) {
	s := newTestStore(t, 3)
	var msgs []ttypes.Message
	for i := 0; i < 5; i++ {
		msgs = append(msgs, ttypes.Message{ID: fmt.Sprint(i), Text: fmt.Sprint("m", i)})
	}
	if err := s.Save(msgs); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Load()
	if len(got) != 3 || got[0].ID != "2" || got[2].ID != "4" {
		t.Errorf("Load = %+v", got)
	}
}

func TestStore_ClearAndCorruption(t *testing.T) {
	s := newTestStore(t, 0)
	if err := s.Clear(); err != nil {
		t.Errorf("Clear on empty store: %v", err)
	}

	if err := os.WriteFile(s.Path(), []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(); !errors.Is(err, ErrCorrupted) {
		t.Errorf("Load = %v, want ErrCorrupted", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if msgs, err := s.Load(); err != nil || msgs != nil {
		t.Errorf("Load after Clear = %v, %v", msgs, err)
	}
}

package coordinator

import "testing"

func TestFileFlag(t *testing.T) {
	f, err := NewFileFlag(t.TempDir(), "needs-resume")
	if err != nil {
		t.Fatalf("NewFileFlag failed: %v", err)
	}
	if v, err := f.Get(); err != nil || v {
		t.Fatalf("initial Get = %v, %v", v, err)
	}
	if err := f.Set(true); err != nil {
		t.Fatal(err)
	}
	if v, _ := f.Get(); !v {
		t.Error("flag should be set")
	}
	if err := f.Set(false); err != nil {
		t.Fatal(err)
	}
	if err := f.Set(false); err != nil {
		t.Errorf("clearing twice should succeed: %v", err)
	}
	if v, _ := f.Get(); v {
		t.Error("flag should be cleared")
	}
}

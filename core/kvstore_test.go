package core

import "testing"

func TestMemKVScalarRoundTrip(t *testing.T) {
	m := NewMemKV()
	if _, ok, _ := m.Get([]byte("missing")); ok {
		t.Fatalf("expected missing key to report ok=false")
	}
	if err := m.Set([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := m.Get([]byte("k"))
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("Get after Set = %q, %v, %v", v, ok, err)
	}
	if err := m.Set([]byte("k"), []byte("v2")); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	v, _, _ = m.Get([]byte("k"))
	if string(v) != "v2" {
		t.Fatalf("expected overwrite to replace value, got %q", v)
	}
}

func TestMemKVListAppendAndSelect(t *testing.T) {
	m := NewMemKV()
	key := []byte("list")
	for _, v := range []string{"a", "b", "c"} {
		if err := m.Append(key, []byte(v)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	n, err := m.Length(key)
	if err != nil || n != 3 {
		t.Fatalf("Length = %d, %v, want 3", n, err)
	}
	for i, want := range []string{"a", "b", "c"} {
		got, err := m.SelectIndex(key, uint32(i))
		if err != nil || string(got) != want {
			t.Fatalf("SelectIndex(%d) = %q, %v, want %q", i, got, err, want)
		}
	}
	if _, err := m.SelectIndex(key, 3); err == nil {
		t.Fatalf("expected out-of-range error")
	}
}

func TestMemKVEmptyListLength(t *testing.T) {
	m := NewMemKV()
	n, err := m.Length([]byte("never-touched"))
	if err != nil || n != 0 {
		t.Fatalf("Length of untouched key = %d, %v, want 0", n, err)
	}
}

package bitfield

import (
	"reflect"
	"testing"
)

func TestSetHasUnset(t *testing.T) {
	bf := New(10)
	if bf.Has(3) {
		t.Fatal("expected bit 3 unset initially")
	}
	if err := bf.Set(3); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !bf.Has(3) {
		t.Fatal("expected bit 3 set")
	}
	if err := bf.Unset(3); err != nil {
		t.Fatalf("Unset: %v", err)
	}
	if bf.Has(3) {
		t.Fatal("expected bit 3 unset after Unset")
	}
}

func TestSetOutOfRange(t *testing.T) {
	bf := New(4)
	if err := bf.Set(4); err == nil {
		t.Fatal("expected out-of-range error")
	}
	if err := bf.Set(-1); err == nil {
		t.Fatal("expected out-of-range error for negative index")
	}
}

func TestMSBFirstLayout(t *testing.T) {
	bf := New(9)
	bf.Set(0)
	bf.Set(8)
	want := []byte{0x80, 0x80}
	if !reflect.DeepEqual(bf.Bytes(), want) {
		t.Errorf("Bytes() = %v, want %v", bf.Bytes(), want)
	}
}

func TestFromBytesIgnoresPadBitsInUnsetBits(t *testing.T) {
	// n=3 packed into one byte; bits 3-7 are trailing pad, all set.
	bf := FromBytes([]byte{0xFF}, 3)
	unset := bf.UnsetBits()
	if len(unset) != 0 {
		t.Errorf("UnsetBits() = %v, want empty (pad bits ignored)", unset)
	}
	if !bf.AllSet() {
		t.Error("expected AllSet() true with all in-range bits set")
	}
}

func TestCountAndSetBits(t *testing.T) {
	bf := New(5)
	bf.Set(1)
	bf.Set(4)
	if bf.Count() != 2 {
		t.Errorf("Count() = %d, want 2", bf.Count())
	}
	want := []int{1, 4}
	if !reflect.DeepEqual(bf.SetBits(), want) {
		t.Errorf("SetBits() = %v, want %v", bf.SetBits(), want)
	}
}

func TestToggle(t *testing.T) {
	bf := New(1)
	bf.Toggle(0)
	if !bf.Has(0) {
		t.Fatal("expected bit 0 set after first toggle")
	}
	bf.Toggle(0)
	if bf.Has(0) {
		t.Fatal("expected bit 0 unset after second toggle")
	}
}

package dnc

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestHashPhone_NormalizesFormatting(t *testing.T) {
	variants := []string{
		"5551234567",
		"555-123-4567",
		"(555) 123-4567",
		"555.123.4567",
	}
	want := HashPhone("5551234567")
	for _, v := range variants {
		if HashPhone(v) != want {
			t.Errorf("HashPhone(%q) differs from digits-only hash", v)
		}
	}

	// A leading country code changes the digits and must hash
	// differently.
	if HashPhone("+15551234567") == want {
		t.Error("HashPhone should keep the country-code digit")
	}
}

func TestHashFromHex(t *testing.T) {
	h := HashPhone("5551234567")
	round, err := HashFromHex(h.ToHex())
	if err != nil {
		t.Fatalf("HashFromHex() error: %v", err)
	}
	if round != h {
		t.Error("hex round trip changed the hash")
	}

	if _, err := HashFromHex("short"); !errors.Is(err, ErrInvalidMD5) {
		t.Errorf("expected ErrInvalidMD5, got %v", err)
	}
	if _, err := HashFromHex(strings.Repeat("z", 32)); !errors.Is(err, ErrInvalidMD5) {
		t.Errorf("expected ErrInvalidMD5 for non-hex, got %v", err)
	}
}

func TestList_Contains(t *testing.T) {
	hashes := []PhoneHash{
		HashPhone("5551234567"),
		HashPhone("5559876543"),
		HashPhone("5551234567"), // duplicate, should be collapsed
	}
	list, err := NewList("test", "Test List", "internal", hashes)
	if err != nil {
		t.Fatalf("NewList() error: %v", err)
	}

	if list.Count() != 2 {
		t.Errorf("Count() = %d, want 2 after dedup", list.Count())
	}
	if !list.ContainsPhone("555-123-4567") {
		t.Error("formatted variant of a listed number should match")
	}
	if list.ContainsPhone("5550000000") {
		t.Error("unlisted number should not match")
	}
}

func TestNewList_Empty(t *testing.T) {
	if _, err := NewList("x", "X", "internal", nil); !errors.Is(err, ErrEmptyList) {
		t.Errorf("expected ErrEmptyList, got %v", err)
	}
}

func TestEngine_IsBlocked(t *testing.T) {
	e := NewEngine()
	_, err := e.LoadList("federal", "Federal DNC", "federal", []PhoneHash{
		HashPhone("5551230001"),
		HashPhone("5551230002"),
	})
	if err != nil {
		t.Fatalf("LoadList() error: %v", err)
	}
	_, err = e.LoadList("internal", "Internal opt-outs", "internal", []PhoneHash{
		HashPhone("5559990001"),
	})
	if err != nil {
		t.Fatalf("LoadList() error: %v", err)
	}

	tests := []struct {
		phone   string
		blocked bool
	}{
		{"5551230001", true},
		{"(555) 123-0002", true},
		{"5559990001", true},
		{"5558880000", false},
	}
	for _, tt := range tests {
		if got := e.IsBlocked(tt.phone); got != tt.blocked {
			t.Errorf("IsBlocked(%q) = %v, want %v", tt.phone, got, tt.blocked)
		}
	}

	stats := e.Stats()
	if stats.TotalRecords != 3 {
		t.Errorf("TotalRecords = %d, want 3", stats.TotalRecords)
	}
	if stats.ChecksTotal != 4 || stats.ChecksBlocked != 3 {
		t.Errorf("checks = %d/%d, want 4 total / 3 blocked",
			stats.ChecksTotal, stats.ChecksBlocked)
	}
}

func TestEngine_LoadListFromReader(t *testing.T) {
	data := "# internal opt-out list\n" +
		"5551234567\n" +
		"\n" +
		"(555) 987-6543\n" +
		HashPhone("5550001111").ToHex() + "\n"

	e := NewEngine()
	list, err := e.LoadListFromReader("optout", "Opt-outs", "internal", strings.NewReader(data))
	if err != nil {
		t.Fatalf("LoadListFromReader() error: %v", err)
	}
	if list.Count() != 3 {
		t.Errorf("Count() = %d, want 3", list.Count())
	}
	for _, phone := range []string{"5551234567", "5559876543", "5550001111"} {
		if !e.IsBlocked(phone) {
			t.Errorf("%s should be blocked", phone)
		}
	}
}

func TestEngine_LoadListIdempotent(t *testing.T) {
	e := NewEngine()
	first, err := e.LoadList("l", "L", "internal", []PhoneHash{HashPhone("5551234567")})
	if err != nil {
		t.Fatalf("LoadList() error: %v", err)
	}
	second, err := e.LoadList("l", "L", "internal", []PhoneHash{HashPhone("5559999999")})
	if err != nil {
		t.Fatalf("LoadList() error: %v", err)
	}
	if first != second {
		t.Error("reloading the same ID should return the existing list")
	}
}

func TestEngine_ConcurrentLoads(t *testing.T) {
	e := NewEngine()
	hashes := make([]PhoneHash, 0, 1000)
	for i := 0; i < 1000; i++ {
		hashes = append(hashes, HashPhone(fmt.Sprintf("555%07d", i)))
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.LoadList("big", "Big", "federal", hashes); err != nil {
				t.Errorf("concurrent LoadList() error: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(e.ListIDs()) != 1 {
		t.Errorf("expected exactly one loaded list, got %v", e.ListIDs())
	}
	if !e.IsBlocked("5550000500") {
		t.Error("loaded number should be blocked")
	}
}

func TestEngine_IsBlockedNilEngine(t *testing.T) {
	var e *Engine
	if e.IsBlocked("5551234567") {
		t.Error("nil engine should block nothing")
	}
}

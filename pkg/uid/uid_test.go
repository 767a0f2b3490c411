package uid

import "testing"

func TestNewLengthAndAlphabet(t *testing.T) {
	for i := 0; i < 1000; i++ {
		id := New()
		if len(id) != Length {
			t.Fatalf("Expected length %d, got %d (%q)", Length, len(id), id)
		}
		if !Valid(id) {
			t.Fatalf("Generated id %q not valid", id)
		}
	}
}

func TestNoCollisions(t *testing.T) {
	const n = 100000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		id := New()
		if _, ok := seen[id]; ok {
			t.Fatalf("Collision after %d ids: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestValidRejectsBadInput(t *testing.T) {
	cases := []string{
		"",
		"short",
		"0aaaaaaaaaa", // 0 not in alphabet
		"laaaaaaaaaa", // l not in alphabet
		"aaaaaaaaaaaa",
	}
	for _, c := range cases {
		if Valid(c) {
			t.Errorf("Expected %q to be invalid", c)
		}
	}
}

func TestEncodePadding(t *testing.T) {
	if got := encode(0); got != "22222222222" {
		t.Errorf("Expected zero to encode as padding, got %q", got)
	}
}

package parallelsync

import "testing"

func TestCtidEncodeDecodeRoundTrips(t *testing.T) {
	c := ctid{block: 482, offset: 17}
	got := decodeCtid(encodeCtid(c))
	if got != c {
		t.Fatalf("decodeCtid(encodeCtid(%v)) = %v, want %v", c, got, c)
	}
}

func TestCtidStringMatchesPostgresLiteral(t *testing.T) {
	c := ctid{block: 12, offset: 4}
	if got, want := c.String(), "(12,4)"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestCtidLiterals(t *testing.T) {
	cs := []ctid{{block: 1, offset: 2}, {block: 3, offset: 4}}
	got := ctidLiterals(cs)
	want := []string{"(1,2)", "(3,4)"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("literal[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

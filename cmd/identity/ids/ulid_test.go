package ids

import (
	"errors"
	"testing"
	"time"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy unavailable") }

func TestNewULID(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, err := NewULID(now)
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	b, err := NewULID(now.Add(time.Second))
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	if len(a) != 26 || !IsULID(a) {
		t.Fatalf("invalid ulid %q", a)
	}
	if !(a < b) {
		t.Fatalf("expected time ordering: %q < %q", a, b)
	}
}

func TestNewULIDFrom_EntropyFailure(t *testing.T) {
	t.Parallel()

	if _, err := NewULIDFrom(time.Now(), failingReader{}); err == nil {
		t.Fatalf("expected entropy error")
	}
}

func TestIsULID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want bool
	}{
		{in: "", want: false},
		{in: "not-a-ulid", want: false},
		{in: "01ARZ3NDEKTSV4RRFFQ69G5FAV", want: true},
		{in: "01ARZ3NDEKTSV4RRFFQ69G5FA!", want: false},
	}
	for _, tc := range cases {
		if got := IsULID(tc.in); got != tc.want {
			t.Fatalf("IsULID(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

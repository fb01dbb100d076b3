package queue

import (
	"fmt"
	"testing"

	"huddle/cmd/internal/session"
)

func TestBuildPreferences(t *testing.T) {
	t.Parallel()

	accepts := map[string]int{"pizza": 1, "thai": 3, "burger": 3}
	rejects := map[string]int{"sushi": 2, "vegan": 1, "thai": 2}

	p := BuildPreferences(accepts, rejects, 4)
	if got := fmt.Sprint(p.Liked); got != "[burger thai pizza]" {
		t.Fatalf("Liked=%s", got)
	}
	// vegan is below half, thai has accepts.
	if got := fmt.Sprint(p.Disliked); got != "[sushi]" {
		t.Fatalf("Disliked=%s", got)
	}
}

func TestPreferencesApply(t *testing.T) {
	t.Parallel()

	p := Preferences{Liked: []string{"thai", "pizza"}, Disliked: []string{"sushi"}}
	in := []session.Candidate{
		{ID: "1", Categories: []string{"burger"}},
		{ID: "2", Categories: []string{"sushi"}},
		{ID: "3", Categories: []string{"pizza"}},
		{ID: "4", Categories: []string{"sushi", "thai"}},
		{ID: "5", Categories: []string{"cafe"}},
	}

	var ids []string
	for _, c := range p.Apply(in) {
		ids = append(ids, c.ID)
	}
	if got := fmt.Sprint(ids); got != "[4 3 1 5]" {
		t.Fatalf("order=%s want=[4 3 1 5]", got)
	}

	if got := (Preferences{}).Apply(in); len(got) != len(in) {
		t.Fatalf("empty preferences must not filter")
	}
}

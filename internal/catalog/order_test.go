package catalog

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

func orders(sessions []Session, domain string) []int {
	var out []int
	for _, s := range sessions {
		if s.Domain == domain {
			out = append(out, s.Order)
		}
	}
	return out
}

// Feature: session ordering, Property 1: orders stay contiguous 1..N per
// domain after any sequence of inserts, moves and deletes.
func TestOrderInvariantProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		domainGen := rapid.SampledFrom([]string{"a.test", "b.test", "localhost:3000"})
		var sessions []Session
		next := 0

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 2).Draw(t, fmt.Sprintf("op%d", i)) {
			case 0:
				next++
				s := Session{ID: fmt.Sprintf("s%d", next), Domain: domainGen.Draw(t, fmt.Sprintf("domain%d", i))}
				var order *int
				if rapid.Bool().Draw(t, fmt.Sprintf("explicit%d", i)) {
					o := rapid.IntRange(-2, 12).Draw(t, fmt.Sprintf("order%d", i))
					order = &o
				}
				sessions = insertAt(sessions, s, order)
			case 1:
				if len(sessions) == 0 {
					continue
				}
				idx := rapid.IntRange(0, len(sessions)-1).Draw(t, fmt.Sprintf("move%d", i))
				moveTo(sessions, idx, rapid.IntRange(-2, 12).Draw(t, fmt.Sprintf("to%d", i)))
			case 2:
				if len(sessions) == 0 {
					continue
				}
				idx := rapid.IntRange(0, len(sessions)-1).Draw(t, fmt.Sprintf("del%d", i))
				sessions, _ = removeAt(sessions, idx)
			}
			if !orderValid(sessions) {
				t.Fatalf("order invariant broken after step %d: %+v", i, sessions)
			}
		}
	})
}

// Feature: session ordering, Property 2: a move lands exactly on the clamped
// target and keeps siblings' relative order.
func TestMoveKeepsRelativeOrderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "n")
		var sessions []Session
		for i := 0; i < n; i++ {
			sessions = insertAt(sessions, Session{ID: fmt.Sprintf("s%d", i), Domain: "d"}, nil)
		}
		idx := rapid.IntRange(0, n-1).Draw(t, "idx")
		to := rapid.IntRange(1, n).Draw(t, "to")

		before := byOrder(sessions)
		moveTo(sessions, idx, to)
		after := byOrder(sessions)

		if sessions[idx].Order != to {
			t.Fatalf("moved order = %d; want %d", sessions[idx].Order, to)
		}
		moved := sessions[idx].ID
		if stripID(before, moved) != stripID(after, moved) {
			t.Fatalf("siblings reordered: before %v after %v", before, after)
		}
	})
}

func byOrder(sessions []Session) []string {
	out := make([]string, len(sessions))
	for _, s := range sessions {
		out[s.Order-1] = s.ID
	}
	return out
}

func stripID(ids []string, id string) string {
	out := ""
	for _, v := range ids {
		if v != id {
			out += v + ","
		}
	}
	return out
}

func TestRemoveClosesGap(t *testing.T) {
	var sessions []Session
	for i := 1; i <= 4; i++ {
		sessions = insertAt(sessions, Session{ID: fmt.Sprintf("s%d", i), Domain: "d"}, nil)
	}
	sessions, gone := removeAt(sessions, 1)
	if gone.Order != 2 {
		t.Fatalf("removed order = %d; want 2", gone.Order)
	}
	got := fmt.Sprint(orders(sessions, "d"))
	if got != "[1 2 3]" {
		t.Fatalf("orders after delete = %s; want [1 2 3]", got)
	}
}

func TestInsertShiftsCollisions(t *testing.T) {
	var sessions []Session
	sessions = insertAt(sessions, Session{ID: "a", Domain: "d"}, nil)
	sessions = insertAt(sessions, Session{ID: "b", Domain: "d"}, nil)
	one := 1
	sessions = insertAt(sessions, Session{ID: "c", Domain: "d"}, &one)

	if got := fmt.Sprint(byOrder(sessions)); got != "[c a b]" {
		t.Fatalf("order = %s; want [c a b]", got)
	}
}

func TestInsertClampsBeyondEnd(t *testing.T) {
	far := 10
	sessions := insertAt(nil, Session{ID: "a", Domain: "d"}, &far)
	if sessions[0].Order != 1 {
		t.Fatalf("order = %d; want 1", sessions[0].Order)
	}
}

func TestMoveBothDirections(t *testing.T) {
	var sessions []Session
	for _, id := range []string{"a", "b", "c", "d"} {
		sessions = insertAt(sessions, Session{ID: id, Domain: "x"}, nil)
	}
	moveTo(sessions, 3, 1)
	if got := fmt.Sprint(byOrder(sessions)); got != "[d a b c]" {
		t.Fatalf("move earlier = %s; want [d a b c]", got)
	}
	moveTo(sessions, 3, 4)
	if got := fmt.Sprint(byOrder(sessions)); got != "[a b c d]" {
		t.Fatalf("move later = %s; want [a b c d]", got)
	}
}

func TestRenumberRepairsDuplicates(t *testing.T) {
	sessions := []Session{
		{ID: "a", Domain: "d", Order: 3},
		{ID: "b", Domain: "d", Order: 3},
		{ID: "c", Domain: "d", Order: 9},
	}
	renumber(sessions, "d")
	if !orderValid(sessions) {
		t.Fatalf("renumber() left invalid orders: %+v", sessions)
	}
	if got := fmt.Sprint(byOrder(sessions)); got != "[a b c]" {
		t.Fatalf("renumber() = %s; want [a b c]", got)
	}
}

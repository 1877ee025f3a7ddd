package catalog

import "sort"

// Order positions are 1-based and contiguous within a domain. The helpers
// below are the only code that changes Session.Order.

func domainCount(sessions []Session, domain string) int {
	n := 0
	for _, s := range sessions {
		if s.Domain == domain {
			n++
		}
	}
	return n
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// insertAt appends s to the catalog at position order (nil means last) and
// shifts siblings at or after that position up by one.
func insertAt(sessions []Session, s Session, order *int) []Session {
	n := domainCount(sessions, s.Domain)
	pos := n + 1
	if order != nil {
		pos = clamp(*order, 1, n+1)
	}
	for i := range sessions {
		if sessions[i].Domain == s.Domain && sessions[i].Order >= pos {
			sessions[i].Order++
		}
	}
	s.Order = pos
	return append(sessions, s)
}

// moveTo moves the session at index idx to a new position. Moving earlier
// shifts siblings in [new, old) later; moving later shifts siblings in
// (old, new] earlier.
func moveTo(sessions []Session, idx, order int) {
	cur := &sessions[idx]
	n := domainCount(sessions, cur.Domain)
	newPos := clamp(order, 1, n)
	oldPos := cur.Order
	if newPos == oldPos {
		return
	}
	for i := range sessions {
		if i == idx || sessions[i].Domain != cur.Domain {
			continue
		}
		o := sessions[i].Order
		switch {
		case newPos < oldPos && o >= newPos && o < oldPos:
			sessions[i].Order++
		case newPos > oldPos && o > oldPos && o <= newPos:
			sessions[i].Order--
		}
	}
	cur.Order = newPos
}

// removeAt deletes the session at index idx and closes the gap it leaves.
func removeAt(sessions []Session, idx int) ([]Session, Session) {
	gone := sessions[idx]
	out := append(sessions[:idx:idx], sessions[idx+1:]...)
	for i := range out {
		if out[i].Domain == gone.Domain && out[i].Order > gone.Order {
			out[i].Order--
		}
	}
	return out, gone
}

// renumber rewrites the orders of one domain to 1..N, keeping their
// relative order. Ties keep catalog order.
func renumber(sessions []Session, domain string) {
	idx := make([]int, 0)
	for i := range sessions {
		if sessions[i].Domain == domain {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return sessions[idx[a]].Order < sessions[idx[b]].Order
	})
	for pos, i := range idx {
		sessions[i].Order = pos + 1
	}
}

// appendBatch adds sessions after the existing ones of their domain, in the
// relative order they carry.
func appendBatch(sessions []Session, batch []Session) []Session {
	sorted := append([]Session(nil), batch...)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Order < sorted[b].Order
	})
	for _, s := range sorted {
		sessions = insertAt(sessions, s, nil)
	}
	return sessions
}

// orderValid reports whether every domain holds exactly 1..N.
func orderValid(sessions []Session) bool {
	seen := map[string]map[int]bool{}
	for _, s := range sessions {
		if seen[s.Domain] == nil {
			seen[s.Domain] = map[int]bool{}
		}
		if seen[s.Domain][s.Order] {
			return false
		}
		seen[s.Domain][s.Order] = true
	}
	for _, orders := range seen {
		for i := 1; i <= len(orders); i++ {
			if !orders[i] {
				return false
			}
		}
	}
	return true
}

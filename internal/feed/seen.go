package feed

// seenSet holds ids that have been rendered through any path.
type seenSet map[string]struct{}

func (s seenSet) add(id string) {
	if id == "" {
		return
	}
	s[id] = struct{}{}
}

func (s seenSet) has(id string) bool {
	if id == "" {
		return false
	}
	_, ok := s[id]
	return ok
}

func (s seenSet) clear() {
	for id := range s {
		delete(s, id)
	}
}

func (s seenSet) ids() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

package layout

import "outpostforge.ai/internal/gen/catalogs"

// PendingQueue is the ordered multiset of tags still to be placed.
type PendingQueue struct {
	tags []string
}

func NewPendingQueue(tags []string) *PendingQueue {
	return &PendingQueue{tags: append([]string(nil), tags...)}
}

func (q *PendingQueue) Len() int { return len(q.tags) }

func (q *PendingQueue) Tags() []string { return append([]string(nil), q.tags...) }

func (q *PendingQueue) Contains(tag string) bool {
	for _, t := range q.tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Remove drops the first occurrence of tag.
func (q *PendingQueue) Remove(tag string) bool {
	for i, t := range q.tags {
		if t == tag {
			q.tags = append(q.tags[:i], q.tags[i+1:]...)
			return true
		}
	}
	return false
}

func (q *PendingQueue) Push(tags ...string) { q.tags = append(q.tags, tags...) }

// Dedupe keeps only the first occurrence of every tag.
func (q *PendingQueue) Dedupe() {
	seen := map[string]bool{}
	out := q.tags[:0]
	for _, t := range q.tags {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	q.tags = out
}

// Required lists the pending tags that are not filler.
func (q *PendingQueue) Required() []string {
	var out []string
	for _, t := range q.tags {
		if !catalogs.IsFiller(t) {
			out = append(out, t)
		}
	}
	return out
}

func (q *PendingQueue) HasRequired() bool { return len(q.Required()) > 0 }

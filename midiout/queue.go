package midiout

// queue is a binary min-heap of slot indexes. Slots record their heap
// position so a queued slot can be removed in O(log n).
//
// Order: due tick (wrap-aware), then kind precedence, then scheduling order.
type queue struct {
	a     arena
	items []int32
}

func newQueue(a arena) *queue {
	return &queue{a: a, items: make([]int32, 0, a.capacity())}
}

func (q *queue) len() int { return len(q.items) }

func (q *queue) less(i, j int) bool {
	return precedes(q.a.at(q.items[i]), q.a.at(q.items[j]))
}

func precedes(x, y *slot) bool {
	if x.ev.Tick != y.ev.Tick {
		return Before(x.ev.Tick, y.ev.Tick)
	}
	if x.ev.Kind != y.ev.Kind {
		return x.ev.Kind < y.ev.Kind
	}
	return x.seq < y.seq
}

func (q *queue) swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.a.at(q.items[i]).pos = i
	q.a.at(q.items[j]).pos = j
}

func (q *queue) push(h int32) {
	q.items = append(q.items, h)
	n := len(q.items) - 1
	q.a.at(h).pos = n
	q.up(n)
}

// peek returns the earliest slot without removing it
func (q *queue) peek() (int32, bool) {
	if len(q.items) == 0 {
		return -1, false
	}
	return q.items[0], true
}

func (q *queue) pop() int32 {
	return q.remove(0)
}

func (q *queue) remove(i int) int32 {
	n := len(q.items) - 1
	h := q.items[i]
	if i != n {
		q.swap(i, n)
	}
	q.items = q.items[:n]
	q.a.at(h).pos = -1
	if i != n {
		if !q.down(i) {
			q.up(i)
		}
	}
	return h
}

func (q *queue) clear() {
	for _, h := range q.items {
		q.a.at(h).pos = -1
	}
	q.items = q.items[:0]
}

func (q *queue) up(j int) {
	for j > 0 {
		i := (j - 1) / 2
		if !q.less(j, i) {
			break
		}
		q.swap(i, j)
		j = i
	}
}

// down reports whether the element moved
func (q *queue) down(i0 int) bool {
	n := len(q.items)
	i := i0
	for {
		l := 2*i + 1
		if l >= n {
			break
		}
		j := l
		if r := l + 1; r < n && q.less(r, l) {
			j = r
		}
		if !q.less(j, i) {
			break
		}
		q.swap(i, j)
		i = j
	}
	return i > i0
}

package book

import "github.com/ksred/orderbook-api/internal/types"

// node is an order's seat in a level queue. Keeping the links outside
// types.Order leaves the shared model free of book internals while still
// giving O(1) mid-queue excision.
type node struct {
	order *types.Order
	level *level
	prev  *node
	next  *node
}

// level is one price rung: a FIFO queue of resting orders plus the
// aggregated remaining quantity of its members.
type level struct {
	price         types.Price
	head          *node
	tail          *node
	totalQuantity int64
	orderCount    int
}

func (l *level) enqueue(n *node) {
	n.level = l
	if l.head == nil {
		l.head = n
		l.tail = n
	} else {
		l.tail.next = n
		n.prev = l.tail
		l.tail = n
	}
	l.totalQuantity += n.order.RemainingQuantity
	l.orderCount++
}

// unlink removes the node from the queue. The caller accounts for the
// level's aggregate quantity.
func (l *level) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev = nil
	n.next = nil
	n.level = nil
	l.orderCount--
}

func (l *level) empty() bool {
	return l.head == nil
}

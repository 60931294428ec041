package engine

import "github.com/ksred/orderbook-api/internal/types"

const ringCapacity = 256

// tradeRing keeps a bounded suffix of recent trades for the streaming feed,
// so the broadcaster never has to touch the database on the hot path.
type tradeRing struct {
	trades [ringCapacity]types.Trade
	next   int
	count  int
}

func (r *tradeRing) append(t types.Trade) {
	r.trades[r.next] = t
	r.next = (r.next + 1) % ringCapacity
	if r.count < ringCapacity {
		r.count++
	}
}

// latest returns up to n trades, newest first.
func (r *tradeRing) latest(n int) []types.Trade {
	if n > r.count {
		n = r.count
	}
	out := make([]types.Trade, 0, n)
	idx := r.next
	for i := 0; i < n; i++ {
		idx--
		if idx < 0 {
			idx = ringCapacity - 1
		}
		out = append(out, r.trades[idx])
	}
	return out
}

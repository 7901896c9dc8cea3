package dataType

// RetryQueue holds, per destination, the values whose delivery failed and
// must be resent. Values are kept in enqueue order and are not deduplicated.
type RetryQueue struct {
	pending *ShardedMap[string, []int64]
}

func NewRetryQueue(shardCount int) *RetryQueue {
	return &RetryQueue{pending: NewShardedMap[string, []int64](shardCount, HashString)}
}

func (q *RetryQueue) Enqueue(dest string, value int64) {
	q.pending.Compute(dest, func(old []int64, _ bool) ([]int64, bool) {
		return append(old, value), true
	})
}

// Drain detaches and returns everything queued for dest. A value enqueued
// concurrently lands either in the returned slice or in the next drain.
func (q *RetryQueue) Drain(dest string) []int64 {
	values, _ := q.pending.LoadAndDelete(dest)
	return values
}

// Destinations lists every dest that currently has queued values.
func (q *RetryQueue) Destinations() []string {
	return q.pending.Keys()
}

func (q *RetryQueue) Pending(dest string) int {
	values, _ := q.pending.Load(dest)
	return len(values)
}

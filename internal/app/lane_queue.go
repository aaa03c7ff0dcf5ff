package app

import (
	"sync"
	"time"

	"github.com/example/coord/internal/models"
)

// laneOrder is the strict dispatch order across priority lanes.
var laneOrder = []models.MessagePriority{
	models.PriorityCritical,
	models.PriorityHigh,
	models.PriorityMedium,
	models.PriorityLow,
}

// queuedMessage is one undelivered message waiting in a lane.
type queuedMessage struct {
	msg      *models.Message
	enqueued time.Time
}

// laneQueue holds undelivered messages in four priority lanes. Pop drains
// strictly by priority, FIFO inside a lane. PromoteAged lifts messages that
// waited past the aging threshold one lane so low-priority traffic cannot
// starve behind a steady stream of urgent work.
type laneQueue struct {
	mu    sync.Mutex
	lanes map[models.MessagePriority][]*queuedMessage
}

func newLaneQueue() *laneQueue {
	return &laneQueue{lanes: map[models.MessagePriority][]*queuedMessage{}}
}

// Push enqueues a message at the tail of its priority lane.
func (q *laneQueue) Push(msg *models.Message, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lanes[msg.Priority] = append(q.lanes[msg.Priority], &queuedMessage{msg: msg, enqueued: now})
}

// Pop returns the oldest entry from the highest non-empty lane.
func (q *laneQueue) Pop() (*queuedMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range laneOrder {
		if lane := q.lanes[p]; len(lane) > 0 {
			head := lane[0]
			q.lanes[p] = lane[1:]
			return head, true
		}
	}
	return nil, false
}

// Requeue puts an entry back at the head of its lane after a failed publish,
// preserving its original wait time for aging.
func (q *laneQueue) Requeue(qm *queuedMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p := qm.msg.Priority
	q.lanes[p] = append([]*queuedMessage{qm}, q.lanes[p]...)
}

// PromoteAged lifts every message waiting longer than threshold one lane and
// returns how many moved. A message climbs one lane per sweep, so a
// low-priority straggler needs three sweeps to reach critical.
func (q *laneQueue) PromoteAged(now time.Time, threshold time.Duration) int {
	if threshold <= 0 {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	promoted := 0
	for i := 1; i < len(laneOrder); i++ {
		from, to := laneOrder[i], laneOrder[i-1]
		keep := q.lanes[from][:0]
		for _, qm := range q.lanes[from] {
			if now.Sub(qm.enqueued) >= threshold {
				qm.msg.Priority = to
				q.lanes[to] = append(q.lanes[to], qm)
				promoted++
				continue
			}
			keep = append(keep, qm)
		}
		q.lanes[from] = keep
	}
	return promoted
}

// Len reports the number of queued messages across all lanes.
func (q *laneQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, lane := range q.lanes {
		n += len(lane)
	}
	return n
}

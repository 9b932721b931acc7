package blobcore

import (
	"container/heap"
	"time"
)

// scheduledTask is one entry in the timer min-heap (spec §3 ScheduledTask,
// §4.5), ordered by at ascending. No priority-queue library is used here:
// the retrieved example pack carries none, and container/heap is the
// idiomatic standard-library fit for a small ordered delay queue (see
// DESIGN.md).
type scheduledTask struct {
	at     time.Time
	seq    uint64 // insertion order, breaks ties deterministically
	action func(now time.Time, ob *outbox)
}

type taskHeap []*scheduledTask

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(*scheduledTask))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// scheduleAt pushes a new delayed action onto the timer heap. Must be
// called with c.mu held.
func (c *Core) scheduleAt(at time.Time, action func(now time.Time, ob *outbox)) {
	c.taskSeq++
	heap.Push(&c.tasks, &scheduledTask{at: at, seq: c.taskSeq, action: action})
}

// pollTimers pops and invokes every task whose at <= now, in at-then-seq
// order (spec §4.5: "Polled at ~1 Hz ... popped and their actions invoked
// in order"). Test code can call this directly with a synthetic now to
// drive the timer subsystem deterministically.
func (c *Core) pollTimers(now time.Time) {
	var ob outbox
	c.mu.Lock()
	for c.tasks.Len() > 0 && !c.tasks[0].at.After(now) {
		task := heap.Pop(&c.tasks).(*scheduledTask)
		task.action(now, &ob)
	}
	c.mu.Unlock()
	ob.run()
}

// runTimerLoop polls the timer heap at ~1 Hz until stop is closed.
func (c *Core) runTimerLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.pollTimers(c.clockNow())
		}
	}
}

// scheduleSchedulerTickLocked arranges for PumpScheduled to run every
// ScheduledSendInterval, re-enqueuing itself each time (spec §4.5
// "Periodic scheduler tick"). Must be called with c.mu held.
func (c *Core) scheduleSchedulerTickLocked(now time.Time) {
	interval := c.opts.ScheduledSendInterval
	c.scheduleAt(now.Add(interval), func(now time.Time, ob *outbox) {
		ob.add(c.PumpScheduled)
		c.scheduleSchedulerTickLocked(now)
	})
}

// scheduleTerminateTimerLocked installs the per-transfer terminate-by-
// timeout task (spec §4.5 "Terminate-by-timeout"). Must be called with
// c.mu held.
func (c *Core) scheduleTerminateTimerLocked(t *Transfer, now time.Time) {
	if !c.opts.TerminateByTimeoutEnabled {
		return
	}
	c.scheduleAt(now.Add(c.opts.TimeoutInterval), func(now time.Time, ob *outbox) {
		c.fireTerminateTimerLocked(t, now, ob)
	})
}

func (c *Core) fireTerminateTimerLocked(t *Transfer, now time.Time, ob *outbox) {
	if t.Released || !c.opts.TerminateByTimeoutEnabled {
		return
	}
	remaining := c.opts.TimeoutInterval - now.Sub(t.Updated)
	if remaining > 0 {
		c.scheduleAt(now.Add(remaining), func(now time.Time, ob *outbox) {
			c.fireTerminateTimerLocked(t, now, ob)
		})
		return
	}

	peer, id, nonce, direction := t.Peer, t.ID, t.Nonce, t.Direction
	c.terminateLocked(t)
	exc := newException(KindTimeout, id, nonce, "transfer timed out")
	c.logger.Warn("transfer timed out", "peer", peer, "id", id, "direction", direction)
	ob.add(func() { c.callbacks.error(peer, exc) })
	if direction == DirectionOutgoing {
		ob.add(c.PumpScheduled)
	}
}

// scheduleAckRetransmitTimerLocked installs the per-transfer
// acknowledgement-retransmit task (spec §4.5 "Acknowledgement
// retransmit"). Must be called with c.mu held.
func (c *Core) scheduleAckRetransmitTimerLocked(t *Transfer, now time.Time) {
	c.scheduleAt(now.Add(c.opts.RetransmitInterval), func(now time.Time, ob *outbox) {
		c.fireAckRetransmitTimerLocked(t, now, ob)
	})
}

func (c *Core) fireAckRetransmitTimerLocked(t *Transfer, now time.Time, ob *outbox) {
	if t.Released || t.Attempt >= c.opts.RetransmitAttemptCount-1 {
		return
	}
	if now.Sub(t.Updated) >= c.opts.RetransmitInterval {
		t.Attempt++
		c.sendAcknowledgementLocked(t, ob)
	}
	c.scheduleAt(now.Add(c.opts.RetransmitInterval), func(now time.Time, ob *outbox) {
		c.fireAckRetransmitTimerLocked(t, now, ob)
	})
}

package scheduler

import "container/heap"

// taskQueue is a heap ordered by (priority desc, scheduledFor asc, insertion
// seq asc). The seq tie-break makes dequeue order deterministic FIFO among
// equal-priority, equal-time entries.
type taskQueue struct {
	items []*Task
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{}
	heap.Init(q)
	return q
}

func (q *taskQueue) Len() int { return len(q.items) }

func (q *taskQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.ScheduledFor.Equal(b.ScheduledFor) {
		return a.ScheduledFor.Before(b.ScheduledFor)
	}
	return a.seq < b.seq
}

func (q *taskQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *taskQueue) Push(x any) {
	q.items = append(q.items, x.(*Task))
}

func (q *taskQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	return item
}

// push enqueues a task.
func (q *taskQueue) push(task *Task) {
	heap.Push(q, task)
}

// pop removes and returns the highest-ordered task, or nil when empty.
func (q *taskQueue) pop() *Task {
	if q.Len() == 0 {
		return nil
	}
	return heap.Pop(q).(*Task)
}

// remove deletes a task by ID, reporting whether it was present.
func (q *taskQueue) remove(id string) bool {
	for i, task := range q.items {
		if task.ID == id {
			heap.Remove(q, i)
			return true
		}
	}
	return false
}

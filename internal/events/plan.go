package events

import "time"

// PlanStart is emitted before a query plan is executed.
type PlanStart struct {
	Fetches   int
	Mutations bool
}

// PlanFinish is emitted once the response has been assembled.
type PlanFinish struct {
	Fetches  int
	Errors   int
	Duration time.Duration
}

package model

// User is an aggregate counter row keyed by username. Counters are advisory
// — updated opportunistically on task creation, never read back to gate any
// decision.
type User struct {
	Username   string
	TaskCount  int64
}

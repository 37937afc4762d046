package tasks

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application to run ingestion cycles in the background.
// Example usage:
//
//	scheduler := NewScheduler(orchestrator, store, 24*time.Hour, false)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.Trigger("manual")
type TaskSchedulerInterface interface {
	Start()
	Stop()
	Trigger(reason string) bool
	State() State
	EnqueueTask(task TaskInterface) error
}

package jobs

// Job kinds dispatched through the worker registry.
const (
	KindClustering = "clustering"
	KindMultiLabel = "multi_label_classification"
	KindEntity     = "entity_classification"
)

func ValidKind(kind string) bool {
	switch kind {
	case KindClustering, KindMultiLabel, KindEntity:
		return true
	}
	return false
}

// Status is the job lifecycle state machine:
//
//	queued -> deferred | in_progress
//	deferred -> queued | in_progress
//	in_progress -> complete
//	complete -> success | failed
//	any -> not_found
//
// success and failed are refinements of complete, derived from whether the
// worker raised an error; complete itself is never stored. not_found is the
// presentation value for job ids unknown to the backend.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusDeferred   Status = "deferred"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusNotFound   Status = "not_found"
)

// Runnable reports whether a job in this state still occupies its activity's
// single non-terminal job slot.
func (s Status) Runnable() bool {
	switch s {
	case StatusQueued, StatusDeferred, StatusInProgress:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusNotFound:
		return true
	}
	return false
}

// RunnableStatuses is the set used by the enqueue admission check.
func RunnableStatuses() []string {
	return []string{string(StatusQueued), string(StatusDeferred), string(StatusInProgress)}
}

// Derive refines a completed execution into its terminal status.
func Derive(runErr error) Status {
	if runErr != nil {
		return StatusFailed
	}
	return StatusSuccess
}

// CanTransition validates a state machine edge. not_found is reachable from
// anywhere (expired backend bookkeeping) and is therefore always allowed.
func CanTransition(from, to Status) bool {
	if to == StatusNotFound {
		return true
	}
	switch from {
	case StatusQueued:
		return to == StatusDeferred || to == StatusInProgress
	case StatusDeferred:
		return to == StatusQueued || to == StatusInProgress
	case StatusInProgress:
		return to == StatusComplete || to == StatusSuccess || to == StatusFailed
	case StatusComplete:
		return to == StatusSuccess || to == StatusFailed
	}
	return false
}

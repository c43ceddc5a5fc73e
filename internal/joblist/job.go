package joblist

import "fmt"

// Status is the lifecycle state of a Job
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
)

// String returns a human-readable representation of the job status
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ExitUnknown is the exit code of a job whose own status was not observed,
// as with jobs run by an external parallel executor.
const ExitUnknown = -1

// Job is one command line that rebuilds one stale work unit.
type Job struct {
	ID      string
	Base    string
	Index   string
	Command string
	Inputs  []string
	Output  string

	// Mutated during dispatch.
	Status   Status
	ExitCode int
}

func (j *Job) String() string {
	return fmt.Sprintf("%s.%s", j.Base, j.Index)
}

// MarkRunning transitions a pending job to running
func (j *Job) MarkRunning() {
	j.Status = StatusRunning
	j.ExitCode = ExitUnknown
}

// Finish records a terminal outcome from an exit code
func (j *Job) Finish(exitCode int) {
	j.ExitCode = exitCode
	if exitCode == 0 {
		j.Status = StatusSucceeded
	} else {
		j.Status = StatusFailed
	}
}

// Settle records an outcome that was inferred rather than observed. The
// exit code stays unknown.
func (j *Job) Settle(succeeded bool) {
	j.ExitCode = ExitUnknown
	if succeeded {
		j.Status = StatusSucceeded
	} else {
		j.Status = StatusFailed
	}
}

// Commands returns the command line of every job in order.
func Commands(jobs []*Job) []string {
	cmds := make([]string, len(jobs))
	for i, j := range jobs {
		cmds[i] = j.Command
	}
	return cmds
}

// CountStatus counts jobs in the given status.
func CountStatus(jobs []*Job, status Status) int {
	n := 0
	for _, j := range jobs {
		if j.Status == status {
			n++
		}
	}
	return n
}

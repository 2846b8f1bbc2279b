package jobrun

const (
	WorkflowName = "job_run"
	ActivityRun  = "job_run_execute"
)

// WorkflowID is the Temporal workflow id used for a job run.
func WorkflowID(jobID string) string { return "job_run:" + jobID }

type RunResult struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Stage    string `json:"stage,omitempty"`
	Progress int    `json:"progress,omitempty"`
	Error    string `json:"error,omitempty"`
}

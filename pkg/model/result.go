package model

// CreationStats counts the creations of one direction of a sync run.
type CreationStats struct {
	Added  int      `json:"added" yaml:"added"`
	Errors []string `json:"errors" yaml:"errors"`
}

// CompletionStats counts completions propagated in either direction.
type CompletionStats struct {
	Completed int      `json:"completed" yaml:"completed"`
	Errors    []string `json:"errors" yaml:"errors"`
}

// SyncResult merges the three phases of a full sync.
type SyncResult struct {
	MsftToObsidian CreationStats   `json:"msftToObsidian" yaml:"msftToObsidian"`
	ObsidianToMsft CreationStats   `json:"obsidianToMsft" yaml:"obsidianToMsft"`
	Completions    CompletionStats `json:"completions" yaml:"completions"`
	Timestamp      string          `json:"timestamp" yaml:"timestamp"`
}

// ErrorCount is the total number of per-task errors across all phases.
func (r SyncResult) ErrorCount() int {
	return len(r.MsftToObsidian.Errors) + len(r.ObsidianToMsft.Errors) + len(r.Completions.Errors)
}

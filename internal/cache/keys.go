package cache

import "fmt"

// Key helpers. Job keys are four independent best-effort fields; every
// consumer must tolerate any of them being absent.

func JobStatusKey(jobID string) string   { return fmt.Sprintf("job:%s:status", jobID) }
func JobStageKey(jobID string) string    { return fmt.Sprintf("job:%s:stage", jobID) }
func JobProgressKey(jobID string) string { return fmt.Sprintf("job:%s:progress", jobID) }
func JobErrorKey(jobID string) string    { return fmt.Sprintf("job:%s:error", jobID) }

func DocumentStatusKey(documentID string) string {
	return fmt.Sprintf("document:%s:status", documentID)
}

func UserDocumentsKey(userID string) string {
	return fmt.Sprintf("user:documents:%s", userID)
}

func jobKeys(jobID string) []string {
	return []string{
		JobStatusKey(jobID),
		JobStageKey(jobID),
		JobProgressKey(jobID),
		JobErrorKey(jobID),
	}
}

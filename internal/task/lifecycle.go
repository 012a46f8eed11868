package task

import (
	"strings"
	"time"
)

// DefaultDoneStatus is the name of the terminal status when none is configured.
const DefaultDoneStatus = "Done"

// IsDone reports whether a status is the terminal status named doneName.
// The match is case-insensitive.
func IsDone(s Status, doneName string) bool {
	if doneName == "" {
		doneName = DefaultDoneStatus
	}
	return strings.EqualFold(strings.TrimSpace(s.Name), doneName)
}

// FindDone returns the terminal status among statuses.
func FindDone(statuses []Status, doneName string) (Status, bool) {
	for _, s := range statuses {
		if IsDone(s, doneName) {
			return s, true
		}
	}
	return Status{}, false
}

// UpdateCompletion sets CompletedAt on a transition into the done status and
// clears it when the task is reopened. Moves between other statuses leave
// it untouched.
func UpdateCompletion(t *Task, oldStatusID, newStatusID, doneID string, now time.Time) {
	if doneID == "" || oldStatusID == newStatusID {
		return
	}
	switch {
	case newStatusID == doneID:
		t.CompletedAt = &now
	case oldStatusID == doneID:
		t.CompletedAt = nil
	}
}

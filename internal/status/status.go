// Package status classifies the free-form execution status strings reported
// for assessment runs.
package status

import (
	"strings"

	"github.com/data-douser/swamp-go/api"
)

// State is the coarse outcome of an assessment run.
type State int

const (
	Unknown State = iota
	InProgress
	Failed
	Success
)

func (s State) String() string {
	switch s {
	case InProgress:
		return "InProgress"
	case Failed:
		return "Failed"
	case Success:
		return "Success"
	default:
		return "Unknown"
	}
}

// Status strings as emitted by the service. Some entries are templates the
// service logs verbatim, and the double space in the retry entry is real.
var (
	inProgress = []string{
		"WAITING TO START",
		"SUBMITTING TO HTCONDOR",
		"Demand Queued",
		"Swamp Off Queued",
		"Drain ReLaunch",
		"Drain ReQueued",
		"Creating HTCondor Job",
		"Waiting in HTCondor Queue",
		"Failed to submit to HTCondor",
		"Starting Virtual Machine",
		"Unable to Start VM",
		"vm failed - [start time] [current time] ([seconds between current and start]",
		"vm started and failed - [start time] [current time] ([seconds between current and start]",
		"vm [raw virsh command]",
		"vm [raw virsh command] failed",
		"Obtaining VM IP Address",
		"Obtaining Viewer Machine IP Address",
		"Obtained VM IP",
		"Failed to Obtain VM IP Address",
		"Starting Assessment Run Script",
		"Executing cloc on package",
		"Performing Assessment",
		"Shutting Down the VM",
		"Shutting down the assessment machine",
		"Extracting Assessment Results",
		"Failed to extract assessment results",
		"Post-Processing",
		"Assessment failed (logged but not set as status)",
		"Assessment Passed (logged but not set as status)",
		"Assessment retry  (logged but not set as status)",
		"Assessment result not found",
		"Failed to parse assessment results",
		"Failed to preserve assessment results",
		"Failed to compute assessment result metrics",
		"Saving Results",
		"Failed to save assessment results in database",
		"Terminating",
	}

	failed = []string{
		"FAILED TO VALIDATE ASSESSMENT DATA",
		"FAILED TO START",
		"Finished with Errors",
		"Finished with Errors - Retry",
		"Terminated",
	}

	success = []string{
		"Finished",
		"Finished with Warnings",
	}
)

// The service emits both spellings; "Finish with Errors" is not a typo here.
const (
	failedPrefix  = "finish with errors"
	successPrefix = "finished"
)

var exact = buildIndex()

func buildIndex() map[string]State {
	idx := make(map[string]State, len(inProgress)+len(failed)+len(success))
	// Earlier lists win, so insert in reverse precedence.
	for _, group := range []struct {
		state State
		list  []string
	}{
		{Success, success},
		{Failed, failed},
		{InProgress, inProgress},
	} {
		for _, s := range group.list {
			idx[strings.ToLower(s)] = group.state
		}
	}
	return idx
}

// Classify maps a status string to a State. Exact matches are checked
// first, ignoring case, then the "Finish with Errors" and "Finished"
// prefixes. Anything else is Unknown.
func Classify(s string) State {
	lower := strings.ToLower(s)
	if st, ok := exact[lower]; ok {
		return st
	}
	switch {
	case strings.HasPrefix(lower, failedPrefix):
		return Failed
	case strings.HasPrefix(lower, successPrefix):
		return Success
	}
	return Unknown
}

// Summary counts records per state.
type Summary map[State]int

// Summarize classifies each record's status.
func Summarize(records []*api.AssessmentRecord) Summary {
	out := make(Summary, 4)
	for _, r := range records {
		out[Classify(r.Status())]++
	}
	return out
}

// Total returns the number of records counted.
func (s Summary) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}

// Done reports whether no counted record is still in progress or unknown.
func (s Summary) Done() bool {
	return s[InProgress] == 0 && s[Unknown] == 0
}

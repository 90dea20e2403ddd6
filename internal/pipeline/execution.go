// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package pipeline

// State is where one pipeline execution stands. Source and Build are the
// running states; Succeeded and Failed are terminal.
type State string

const (
	StatePending   State = "Pending"
	StateSource    State = "Source"
	StateBuild     State = "Build"
	StateSucceeded State = "Succeeded"
	StateFailed    State = "Failed"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// StageResult is the latest status CodePipeline reports for a stage, using
// its status vocabulary (InProgress, Succeeded, Failed, Stopped, ...).
type StageResult struct {
	Stage  string
	Status string
}

// Outcome folds stage results into a State. Stages are walked in pipeline
// order and the first one that has not succeeded decides: a failure of any
// kind fails the execution, anything else means the execution is still in
// that stage. There is no partial success.
func Outcome(results []StageResult) State {
	byStage := make(map[string]string, len(results))
	for _, r := range results {
		byStage[r.Stage] = r.Status
	}

	for _, stage := range []struct {
		name  string
		state State
	}{
		{SourceStage, StateSource},
		{BuildStage, StateBuild},
	} {
		switch byStage[stage.name] {
		case "Succeeded":
			continue
		case "Failed", "Stopped", "Stopping", "Cancelled":
			return StateFailed
		case "":
			if stage.name == SourceStage {
				return StatePending
			}
			return stage.state
		default:
			return stage.state
		}
	}
	return StateSucceeded
}

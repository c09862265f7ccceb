package workflow

// Phase is the progress snapshot emitted alongside step_started: how
// many of the selected steps have completed, the total, and the
// percentage rounded down. Completed is the number of steps already in
// history when the step at index is about to start, so the first step
// of a run reports (0, total, 0).
type Phase struct {
	CompletedSteps int
	TotalSteps     int
	Percent        int
}

// ComputePhase derives the progress snapshot for the step about to run
// at stepIndex (0-based) out of the selected command sequence.
func ComputePhase(stepIndex, totalSteps int) Phase {
	if totalSteps <= 0 {
		return Phase{}
	}
	percent := (stepIndex * 100) / totalSteps
	return Phase{CompletedSteps: stepIndex, TotalSteps: totalSteps, Percent: percent}
}

package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputePhase(t *testing.T) {
	cases := []struct {
		stepIndex, total int
		want             Phase
	}{
		{0, 5, Phase{CompletedSteps: 0, TotalSteps: 5, Percent: 0}},
		{1, 5, Phase{CompletedSteps: 1, TotalSteps: 5, Percent: 20}},
		{4, 5, Phase{CompletedSteps: 4, TotalSteps: 5, Percent: 80}},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ComputePhase(c.stepIndex, c.total))
	}
}

func TestComputePhaseZeroTotal(t *testing.T) {
	assert.Equal(t, Phase{}, ComputePhase(0, 0))
}

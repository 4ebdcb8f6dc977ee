package splitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitByFile_ClustersIntoPairs(t *testing.T) {
	task := TaskLike{ID: "F001-A-03", Name: "touch three files", Files: []string{"a.go", "b.go", "c.go"}, TimeEstimateMinutes: 30}
	children, err := Split(task, ByFile, Context{})
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "F001-A-03a", children[0].ID)
	assert.Equal(t, "F001-A-03b", children[1].ID)
	assert.Contains(t, children[1].DependsOn, "F001-A-03a")
}

func TestSplitByFile_RejectsSingleFile(t *testing.T) {
	task := TaskLike{ID: "T1", Name: "x", Files: []string{"a.go"}, TimeEstimateMinutes: 10}
	_, err := Split(task, ByFile, Context{})
	require.ErrorIs(t, err, ErrStrategyNotApplicable)
}

func TestSplitByFunctionality_RequiresSubCriteria(t *testing.T) {
	task := TaskLike{ID: "T1", Name: "x", TimeEstimateMinutes: 10}
	_, err := Split(task, ByFunctionality, Context{})
	require.ErrorIs(t, err, ErrStrategyNotApplicable)

	children, err := Split(task, ByFunctionality, Context{SubCriteria: []string{"a works", "b works"}})
	require.NoError(t, err)
	require.Len(t, children, 2)
}

func TestSplitByTime_HalvesUntilWithinBudget(t *testing.T) {
	task := TaskLike{ID: "T1", Name: "x", TimeEstimateMinutes: 40}
	children, err := Split(task, ByTime, Context{TimeBudgetMinutes: 15})
	require.NoError(t, err)
	for _, c := range children {
		assert.LessOrEqual(t, c.TimeEstimateMinutes, 15)
	}
	assert.GreaterOrEqual(t, len(children), 2)
}

func TestSplitByTime_AlreadyWithinBudgetIsNotProductive(t *testing.T) {
	task := TaskLike{ID: "T1", Name: "x", TimeEstimateMinutes: 10}
	_, err := Split(task, ByTime, Context{TimeBudgetMinutes: 15})
	require.ErrorIs(t, err, ErrSplitNotProductive)
}

func TestWithinTolerance(t *testing.T) {
	assert.True(t, WithinTolerance(30, 30))
	assert.True(t, WithinTolerance(30, 39))
	assert.False(t, WithinTolerance(30, 50))
}

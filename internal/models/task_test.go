package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskValidate(t *testing.T) {
	require.NoError(t, Task{ID: "T1", Name: "x", TimeEstimateMinutes: 30}.Validate())

	err := Task{ID: "", Name: "x"}.Validate()
	require.Error(t, err)

	err = Task{ID: "T1", Name: ""}.Validate()
	require.Error(t, err)

	err = Task{ID: "T1", Name: "x", TimeEstimateMinutes: 31}.Validate()
	require.Error(t, err)
}

func TestChildID(t *testing.T) {
	assert.Equal(t, "F001-A-03a", ChildID("F001-A-03", 0))
	assert.Equal(t, "F001-A-03b", ChildID("F001-A-03", 1))
	assert.True(t, IsChildOf("F001-A-03a", "F001-A-03"))
	assert.False(t, IsChildOf("F001-A-03", "F001-A-03"))
}

func TestTaskClone_DoesNotAliasSlices(t *testing.T) {
	orig := Task{ID: "T1", Files: []string{"a.go"}, DependsOn: []string{"T0"}, Metadata: map[string]any{"tdd": true}}
	clone := orig.Clone()
	clone.Files[0] = "b.go"
	clone.DependsOn[0] = "T9"
	clone.Metadata["tdd"] = false

	assert.Equal(t, "a.go", orig.Files[0])
	assert.Equal(t, "T0", orig.DependsOn[0])
	assert.True(t, orig.TDD())
	assert.False(t, clone.TDD())
}

func TestTDDMetadataDefaultsFalse(t *testing.T) {
	assert.False(t, Task{}.TDD())
}

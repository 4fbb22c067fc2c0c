package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario(writeScenario(t, `
name: smoke
description: "publishes one refresh"
events:
  - type: vestaboard_refresh
    payload:
      event_type: doorbell_pressed
expect:
  board_count: 1
`))
	require.NoError(t, err)

	assert.Equal(t, "smoke", s.Name)
	require.Len(t, s.Events, 1)
	assert.Equal(t, "vestaboard_refresh", s.Events[0].Type)
	assert.Equal(t, "doorbell_pressed", s.Events[0].Payload["event_type"])
	require.NotNil(t, s.Expect.BoardCount)
	assert.Equal(t, 1, *s.Expect.BoardCount)
}

func TestLoadScenario_MissingName(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, `
events:
  - type: vestaboard_refresh
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing name")
}

func TestLoadScenario_NoEvents(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, `
name: empty
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no events")
}

func TestLoadScenario_EventWithoutType(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, `
name: bad_event
events:
  - payload: {}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing type")
}

func TestLoadScenario_BadYAML(t *testing.T) {
	_, err := LoadScenario(writeScenario(t, "{{{"))
	require.Error(t, err)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestCycleChooser(t *testing.T) {
	c := newCycleChooser([]int{1, 0})
	assert.Equal(t, 1, c.ChooseIndex(2))
	assert.Equal(t, 0, c.ChooseIndex(2))
	assert.Equal(t, 1, c.ChooseIndex(2))

	// Out-of-range picks wrap instead of panicking.
	c = newCycleChooser([]int{5})
	assert.Equal(t, 1, c.ChooseIndex(2))

	// Empty pick list defaults to always-first.
	c = newCycleChooser(nil)
	assert.Equal(t, 0, c.ChooseIndex(3))
}

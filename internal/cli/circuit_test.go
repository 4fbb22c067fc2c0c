package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "circuits.db")
}

func TestCircuit_SetAndShow(t *testing.T) {
	db := tempDB(t)

	out, err := execute(t, "circuit", "set", "MASTER", "off", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "MASTER set to off")

	out, err = execute(t, "circuit", "show", "MASTER", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "MASTER: off")
}

func TestCircuit_ShowUnknown(t *testing.T) {
	_, err := execute(t, "circuit", "show", "NOPE", "--db", tempDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCircuit_SetRejectsBadState(t *testing.T) {
	_, err := execute(t, "circuit", "set", "MASTER", "sideways", "--db", tempDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCircuit_List(t *testing.T) {
	db := tempDB(t)

	_, err := execute(t, "circuit", "set", "MASTER", "on", "--db", db)
	require.NoError(t, err)
	_, err = execute(t, "circuit", "set", "SLEEP_MODE", "off", "--db", db)
	require.NoError(t, err)

	out, err := execute(t, "circuit", "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "MASTER")
	assert.Contains(t, out, "SLEEP_MODE")
}

func TestCircuit_ListEmpty(t *testing.T) {
	out, err := execute(t, "circuit", "list", "--db", tempDB(t))
	require.NoError(t, err)
	assert.Contains(t, out, "no circuits stored")
}

func TestCircuit_Reset(t *testing.T) {
	db := tempDB(t)

	_, err := execute(t, "circuit", "set", "PROVIDER_OPENAI", "off", "--db", db)
	require.NoError(t, err)

	out, err := execute(t, "circuit", "reset", "PROVIDER_OPENAI", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "PROVIDER_OPENAI reset")

	out, err = execute(t, "circuit", "show", "PROVIDER_OPENAI", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "PROVIDER_OPENAI: on")
}

func TestCircuit_JSONOutput(t *testing.T) {
	db := tempDB(t)

	out, err := execute(t, "--format", "json", "circuit", "set", "MASTER", "on", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, `"status":"ok"`)
	assert.Contains(t, out, `"circuit_id":"MASTER"`)
}

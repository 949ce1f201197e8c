package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommands(t *testing.T) {
	root := NewRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "sweep", "quote", "evaluate"})

	flag := root.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "config.yaml", flag.DefValue)
	assert.Equal(t, "c", flag.Shorthand)
}

func TestSweepRejectsUnknownKind(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"sweep", "hourly"})
	root.SetOut(new(bytes.Buffer))
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sweep kind")
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"events": 2}))
	assert.Equal(t, "{\n  \"events\": 2\n}\n", buf.String())
}

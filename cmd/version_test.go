package cmd

import (
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/minutes-cli/pkg/buildinfo"
)

func TestVersionCommand(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		stdout, _, err := execute(t, NewVersionCommand())
		require.NoError(t, err)
		assert.Equal(t, "minutes "+buildinfo.String()+"\n  go: "+runtime.Version()+"\n", stdout)
	})

	t.Run("json", func(t *testing.T) {
		stdout, _, err := execute(t, NewVersionCommand(), "-o", "json")
		require.NoError(t, err)
		var info buildinfo.Info
		require.NoError(t, json.Unmarshal([]byte(stdout), &info))
		assert.Equal(t, "minutes", info.Name)
		assert.Equal(t, runtime.Version(), info.GoVersion)
	})

	t.Run("yaml", func(t *testing.T) {
		stdout, _, err := execute(t, NewVersionCommand(), "-o", "yaml")
		require.NoError(t, err)
		var info buildinfo.Info
		require.NoError(t, yaml.Unmarshal([]byte(stdout), &info))
		assert.Equal(t, buildinfo.Get("minutes"), info)
	})

	t.Run("invalid", func(t *testing.T) {
		_, _, err := execute(t, NewVersionCommand(), "-o", "xml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid output format")
	})
}

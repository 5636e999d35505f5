package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestYAMLFormatter_Format(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&YAMLFormatter{}).Format(&buf, sampleResult()))

	var parsed map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &parsed))

	files := parsed["files"].([]interface{})
	require.Len(t, files, 3)
	first := files[0].(map[string]interface{})
	assert.Equal(t, "/home/user/projects", first["path"])
	assert.Equal(t, true, first["is_dir"])

	search := parsed["search"].(map[string]interface{})
	assert.Equal(t, "user", search["query"])
	assert.Equal(t, "1.5ms", search["elapsed"])
}

func TestYAMLFormatter_Stats(t *testing.T) {
	var buf bytes.Buffer
	r := &Result{Stats: &IndexStats{Total: 3, Dirs: 1, Files: 2, TotalSize: 300}}
	require.NoError(t, (&YAMLFormatter{}).Format(&buf, r))

	var parsed struct {
		Stats  IndexStats             `yaml:"stats"`
		Search map[string]interface{} `yaml:"search"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &parsed))
	assert.Equal(t, int64(2), parsed.Stats.Files)
	assert.Nil(t, parsed.Search)
}

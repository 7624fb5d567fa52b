package utils

import (
	"bytes"
	"strings"
	"testing"

	"github.com/iancoleman/orderedmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type commandData struct {
	ScriptDir string
	SandboxID string
	Login     string
}

func TestGetCommandLine(t *testing.T) {
	data := commandData{ScriptDir: "/opt/scripts dir", SandboxID: "0042", Login: "REDMOND.alice"}
	cmd, args, err := GetCommandLine("bash", []string{"{{.ScriptDir}}/gdl.sh", "-n", " {{.SandboxID}} ", "-a", "{{.Login}}"}, data)
	require.NoError(t, err)
	assert.Equal(t, "bash", cmd)
	// 参数保持为单个 argv，不做空白拆分
	assert.Equal(t, []string{"/opt/scripts dir/gdl.sh", "-n", "0042", "-a", "REDMOND.alice"}, args)
	assert.Equal(t, `bash "/opt/scripts dir/gdl.sh" -n 0042 -a REDMOND.alice`, FormatCommandLine(cmd, args))
}

func TestGetCommandLineErrors(t *testing.T) {
	_, _, err := GetCommandLine("bash", []string{"{{.Missing}}"}, commandData{})
	assert.Error(t, err)

	_, _, err = GetCommandLine("bash", []string{"{{.Login"}, commandData{})
	assert.Error(t, err)

	_, _, err = GetCommandLine("{{.Nope}}", nil, map[string]string{})
	assert.Error(t, err)
}

func TestFprintFormat(t *testing.T) {
	type row struct {
		Index int    `json:"index"`
		Host  string `json:"host"`
		State string `json:"state"`
	}
	var rows []*orderedmap.OrderedMap
	for _, r := range []row{{0, "GCRAZGDL1234", "opened"}, {1, "GCRAZGDL0042", "closed"}} {
		m, err := StructToOrderedMap(r)
		require.NoError(t, err)
		rows = append(rows, m)
	}
	assert.Equal(t, []string{"index", "host", "state"}, rows[0].Keys())

	var buf bytes.Buffer
	FprintFormat(&buf, rows)
	out := buf.String()
	assert.Contains(t, out, "INDEX")
	assert.Contains(t, out, "GCRAZGDL0042")
	assert.NotContains(t, out, "1.0")
	assert.Less(t, strings.Index(out, "GCRAZGDL1234"), strings.Index(out, "GCRAZGDL0042"))

	buf.Reset()
	FprintFormat(&buf, nil)
	assert.Empty(t, buf.String())
}

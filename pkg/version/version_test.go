package version

import (
	"bytes"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	VersionCmd.SetOut(&out)
	require.NoError(t, VersionCmd.RunE(VersionCmd, nil))

	var info Info
	require.NoError(t, sonic.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestInfoString(t *testing.T) {
	assert.Equal(t, "1.2.0", (&Info{Version: "1.2.0"}).String())
	assert.Equal(t, "1.2.0+abc123", (&Info{Version: "1.2.0", GitCommit: "abc123"}).String())
}

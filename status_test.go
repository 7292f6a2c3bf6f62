package nxdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusString(t *testing.T) {
	assert.Equal(t, "Success", StatusSuccess.String())
	assert.Equal(t, "UnsupportedAbiVersion", StatusUnsupportedABIVersion.String())
	assert.Equal(t, "Unknown(42)", Status(42).String())
}

func TestStatusLocal(t *testing.T) {
	assert.False(t, StatusSuccess.local())
	assert.True(t, StatusInvalidCommandSize.local())
	assert.True(t, StatusWriteCommandFailed.local())
	assert.True(t, StatusReadStatusFailed.local())
	assert.False(t, StatusInvalidMagicWord.local())
	assert.False(t, StatusHostIOError.local())
}

func TestStatusError(t *testing.T) {
	err := &StatusError{Cmd: CmdStartSession, Status: StatusUnsupportedABIVersion}
	assert.Equal(t, "nxdt: StartSession command failed: UnsupportedAbiVersion", err.Error())
}

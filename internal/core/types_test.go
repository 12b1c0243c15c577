package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLogLevelIsCaseInsensitive(t *testing.T) {
	level, ok := ParseLogLevel("TrAcE")
	assert.True(t, ok)
	assert.Equal(t, LevelTrace, level)

	level, ok = ParseLogLevel("FATAL")
	assert.True(t, ok)
	assert.Equal(t, LevelFatal, level)

	_, ok = ParseLogLevel("nonsense")
	assert.False(t, ok)
}

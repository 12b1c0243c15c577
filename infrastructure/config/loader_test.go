package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("HYDROGEN_TEST_GETENV", "")
	assert.Equal(t, "fallback", GetEnv("HYDROGEN_TEST_GETENV", "fallback"))

	t.Setenv("HYDROGEN_TEST_GETENV", "  set  ")
	assert.Equal(t, "set", GetEnv("HYDROGEN_TEST_GETENV", "fallback"))
}

func TestGetEnvBoolAcceptsCommonSpellings(t *testing.T) {
	for _, val := range []string{"true", "1", "yes", "y", "TRUE", "Y"} {
		t.Setenv("HYDROGEN_TEST_BOOL", val)
		assert.True(t, GetEnvBool("HYDROGEN_TEST_BOOL", false), "expected %q to parse true", val)
	}

	t.Setenv("HYDROGEN_TEST_BOOL", "nope")
	assert.False(t, GetEnvBool("HYDROGEN_TEST_BOOL", true))

	t.Setenv("HYDROGEN_TEST_BOOL", "")
	assert.True(t, GetEnvBool("HYDROGEN_TEST_BOOL", true))
}

func TestGetEnvIntFallsBackOnUnparseable(t *testing.T) {
	t.Setenv("HYDROGEN_TEST_INT", "42")
	assert.Equal(t, 42, GetEnvInt("HYDROGEN_TEST_INT", 7))

	t.Setenv("HYDROGEN_TEST_INT", "not-a-number")
	assert.Equal(t, 7, GetEnvInt("HYDROGEN_TEST_INT", 7))
}

func TestParseEnvIntReportsPresence(t *testing.T) {
	t.Setenv("HYDROGEN_TEST_PARSE_INT", "")
	_, ok := ParseEnvInt("HYDROGEN_TEST_PARSE_INT")
	assert.False(t, ok)

	t.Setenv("HYDROGEN_TEST_PARSE_INT", "9")
	val, ok := ParseEnvInt("HYDROGEN_TEST_PARSE_INT")
	assert.True(t, ok)
	assert.Equal(t, 9, val)
}

func TestParseEnvDurationReportsPresence(t *testing.T) {
	t.Setenv("HYDROGEN_TEST_DURATION", "500ms")
	d, ok := ParseEnvDuration("HYDROGEN_TEST_DURATION")
	assert.True(t, ok)
	assert.Equal(t, 500*time.Millisecond, d)

	t.Setenv("HYDROGEN_TEST_DURATION", "garbage")
	_, ok = ParseEnvDuration("HYDROGEN_TEST_DURATION")
	assert.False(t, ok)
}

func TestSplitAndTrimCSVFiltersBlanks(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitAndTrimCSV(" a, b ,, c "))
	assert.Nil(t, SplitAndTrimCSV(""))
}

func TestParseByteSizeSuffixes(t *testing.T) {
	cases := []struct {
		raw  string
		want int64
	}{
		{"1B", 1},
		{"1KB", 1024},
		{"2MiB", 2 * 1024 * 1024},
		{"1GB", 1024 * 1024 * 1024},
		{"512", 512},
	}
	for _, c := range cases {
		got, err := ParseByteSize(c.raw)
		assert.NoError(t, err, c.raw)
		assert.Equal(t, c.want, got, c.raw)
	}
}

func TestParseByteSizeRejectsInvalidInput(t *testing.T) {
	for _, raw := range []string{"", "-1GB", "abc", "GB"} {
		_, err := ParseByteSize(raw)
		assert.Error(t, err, raw)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	assert.Equal(t, time.Second, ParseDurationOrDefault("1s", 5*time.Second))
	assert.Equal(t, 5*time.Second, ParseDurationOrDefault("", 5*time.Second))
	assert.Equal(t, 5*time.Second, ParseDurationOrDefault("nonsense", 5*time.Second))
}

func TestParseBoolOrDefault(t *testing.T) {
	assert.True(t, ParseBoolOrDefault("yes", false))
	assert.False(t, ParseBoolOrDefault("", false))
	assert.False(t, ParseBoolOrDefault("nope", true))
}

func TestParseIntOrDefaultFamilies(t *testing.T) {
	assert.Equal(t, 3, ParseIntOrDefault("3", 9))
	assert.Equal(t, 9, ParseIntOrDefault("bad", 9))
	assert.Equal(t, int64(3), ParseInt64OrDefault("3", 9))
	assert.Equal(t, int64(9), ParseInt64OrDefault("bad", 9))
	assert.Equal(t, uint32(3), ParseUint32OrDefault("3", 9))
	assert.Equal(t, uint32(9), ParseUint32OrDefault("bad", 9))
}

func TestGetDefaultTimeouts(t *testing.T) {
	timeouts := GetDefaultTimeouts()
	assert.Equal(t, 30*time.Second, timeouts.HTTP)
	assert.Equal(t, 10*time.Second, timeouts.Database)
	assert.Equal(t, 15*time.Second, timeouts.Service)
}

package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("1.2.3")
	require.NoError(t, err)
	assert.Equal(t, Version{1, 2, 3}, v)
	assert.Equal(t, "1.2.3", v.String())
}

func TestParseVersion_Invalid(t *testing.T) {
	for _, s := range []string{"", "1.2", "1.2.3.4", "a.b.c", "1.-2.3"} {
		_, err := ParseVersion(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestVersion_Compare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "1.0.1", -1},
		{"1.1.0", "1.0.9", 1},
		{"2.0.0", "1.9.9", 1},
		{"0.9.0", "1.0.0", -1},
	}
	for _, tt := range tests {
		a := MustParseVersion(tt.a)
		b := MustParseVersion(tt.b)
		assert.Equal(t, tt.want, a.Compare(b), "%s vs %s", tt.a, tt.b)
	}
}

func TestVersion_Previous(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.3.2", "1.3.1"},
		{"1.3.0", "1.2.0"},
		{"2.0.0", "1.0.0"},
		{"0.1.0", "0.0.0"},
	}
	for _, tt := range tests {
		prev, ok := MustParseVersion(tt.in).Previous()
		require.True(t, ok, "input %s", tt.in)
		assert.Equal(t, tt.want, prev.String(), "input %s", tt.in)
	}

	_, ok := Version{}.Previous()
	assert.False(t, ok, "zero version has no predecessor")
}

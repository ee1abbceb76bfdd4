package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		name string
		want Key
	}{
		{"Tab", KeyTab},
		{"tab", KeyTab},
		{"Enter", KeyReturn},
		{"space", KeySpace},
		{"Esc", KeyEscape},
		{"x", Key('X')},
		{";", Key(';')},
	}
	for _, tt := range tests {
		got, err := ParseKey(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}

	for _, bad := range []string{"", "F13", "é", " "} {
		_, err := ParseKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestKey_String(t *testing.T) {
	assert.Equal(t, "Tab", KeyTab.String())
	assert.Equal(t, "A", Key('A').String())
	assert.Equal(t, "0x1000", Key(0x1000).String())
	assert.True(t, Key('5').IsDigit())
	assert.False(t, Key('A').IsDigit())
}

func TestModifiers_ShiftOnly(t *testing.T) {
	assert.True(t, ModNone.ShiftOnly())
	assert.True(t, ModShift.ShiftOnly())
	assert.True(t, ModCapsLock.ShiftOnly())
	assert.False(t, (ModShift | ModControl).ShiftOnly())
	assert.False(t, ModMeta.ShiftOnly())
}

func TestKeyEvent_SingleRune(t *testing.T) {
	r, ok := KeyEvent{Text: "ß"}.SingleRune()
	assert.True(t, ok)
	assert.Equal(t, 'ß', r)

	_, ok = KeyEvent{Text: "ab"}.SingleRune()
	assert.False(t, ok)
	_, ok = KeyEvent{Text: "\xff"}.SingleRune()
	assert.False(t, ok)
}

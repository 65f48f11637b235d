package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMarker(t *testing.T) {
	tests := []struct {
		line    string
		ok      bool
		dialect Dialect
		start   bool
		path    string
		binary  bool
	}{
		{"🐕 --- DOGS_START_FILE: src/a.go ---", true, DialectDogs, true, "src/a.go", false},
		{"🐈 --- CATS_START_FILE: src/a.go ---", true, DialectCats, true, "src/a.go", false},
		{"🐕 --- DOGS_end_FILE: src/a.go ---", true, DialectDogs, false, "src/a.go", false},
		{"🐕 --- DOGS_Start_FILE: img.png (Content:Base64) ---", true, DialectDogs, true, "img.png", true},
		{"# --- CATS_START_FILE: dir with space/f.txt ---  ", true, DialectCats, true, "dir with space/f.txt", false},
		{"🐕 --- dogs_START_FILE: a.go ---", false, 0, false, "", false},
		{"--- DOGS_START_FILE: a.go ---", false, 0, false, "", false},
		{"🐕 --- DOGS_START_FILE: ---", false, 0, false, "", false},
		{"just text", false, 0, false, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			m, ok := parseMarker(tt.line)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.dialect, m.dialect)
			assert.Equal(t, tt.start, m.start)
			assert.Equal(t, tt.path, m.path)
			assert.Equal(t, tt.binary, m.binary)
		})
	}
}

func TestMarkerRendering(t *testing.T) {
	for _, d := range dialects {
		m, ok := parseMarker(StartMarker(d, "a/b.bin", true))
		require.True(t, ok)
		assert.Equal(t, d, m.dialect)
		assert.True(t, m.binary)
		assert.Equal(t, "a/b.bin", m.path)

		m, ok = parseMarker(EndMarker(d, "a/b.bin"))
		require.True(t, ok)
		assert.False(t, m.start)
	}
}

func TestParseBlocks(t *testing.T) {
	bundle := "Here are your changes.\n" +
		"🐕 --- DOGS_START_FILE: a.txt ---\n" +
		"hello\n" +
		"🐕 --- DOGS_END_FILE: a.txt ---\n" +
		"stray commentary\n" +
		"🐈 --- CATS_START_FILE: b.txt ---\r\n" +
		"line1\r\n" +
		"\r\n" +
		"line3\r\n" +
		"🐈 --- CATS_END_FILE: b.txt ---\r\n"

	blocks, err := ParseBlocks(bundle, Options{})
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "a.txt", blocks[0].Path)
	assert.Equal(t, []string{"hello"}, blocks[0].RawLines)
	assert.Equal(t, 2, blocks[0].Line)
	assert.Equal(t, "b.txt", blocks[1].Path)
	assert.Equal(t, []string{"line1", "", "line3"}, blocks[1].RawLines)
}

func TestParseBlocksMalformed(t *testing.T) {
	tests := []struct {
		name      string
		bundle    string
		wantPaths []string
	}{
		{
			name:      "stray end marker",
			bundle:    "🐕 --- DOGS_END_FILE: x.txt ---\n🐕 --- DOGS_START_FILE: a.txt ---\nA\n🐕 --- DOGS_END_FILE: a.txt ---",
			wantPaths: []string{"a.txt"},
		},
		{
			name:      "unterminated block at end",
			bundle:    "🐕 --- DOGS_START_FILE: a.txt ---\nA\n🐕 --- DOGS_END_FILE: a.txt ---\n🐕 --- DOGS_START_FILE: b.txt ---\nB",
			wantPaths: []string{"a.txt"},
		},
		{
			name:      "start inside open block",
			bundle:    "🐕 --- DOGS_START_FILE: a.txt ---\nA\n🐕 --- DOGS_START_FILE: b.txt ---\nB\n🐕 --- DOGS_END_FILE: b.txt ---",
			wantPaths: []string{"b.txt"},
		},
		{
			name:      "mismatched end path",
			bundle:    "🐕 --- DOGS_START_FILE: a.txt ---\nA\n🐕 --- DOGS_END_FILE: other.txt ---",
			wantPaths: []string{"a.txt"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks, err := ParseBlocks(tt.bundle, Options{})
			require.NoError(t, err)
			var paths []string
			for _, b := range blocks {
				paths = append(paths, b.Path)
			}
			assert.Equal(t, tt.wantPaths, paths)

			_, err = ParseBlocks(tt.bundle, Options{Strict: true})
			assert.ErrorIs(t, err, ErrMalformedBundle)
		})
	}
}

func TestParseBlocksEmpty(t *testing.T) {
	blocks, err := ParseBlocks("no markers here\nat all", Options{Strict: true})
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

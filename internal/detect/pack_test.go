package detect

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackRoundTrip(t *testing.T) {
	t.Parallel()
	in := &Pack{
		Entries: []PackEntry{
			{Name: "sponsor-spot", Fingerprint: []uint32{0xDEADBEEF, 0x00000001, 0xFFFFFFFF}},
			{Name: "station-ident", Fingerprint: []uint32{42}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, in.Encode(&buf))

	out, err := DecodePack("mem", &buf)
	require.NoError(t, err)
	require.Len(t, out.Entries, 2)
	assert.Equal(t, in.Entries[0], out.Entries[0])
	assert.Equal(t, in.Entries[1], out.Entries[1])
}

func TestDecodePack_SkipsCommentsAndBlanks(t *testing.T) {
	t.Parallel()
	input := "# ad pack v1\n\nspot:AQAAAA==\n"
	p, err := DecodePack("mem", strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, p.Entries, 1)
	assert.Equal(t, "spot", p.Entries[0].Name)
	assert.Equal(t, []uint32{1}, p.Entries[0].Fingerprint)
}

func TestDecodePack_InvalidLines(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		line  int
	}{
		{"no-colon-here\n", 1},
		{"spot:not base64!!\n", 1},
		{"spot:AQAAAA==\nbad:AQA=\n", 2}, // payload not a multiple of 4 bytes
		{":AQAAAA==\n", 1},               // empty name
	}
	for _, tc := range cases {
		_, err := DecodePack("mem", strings.NewReader(tc.input))
		var lineErr *InvalidLineError
		require.ErrorAs(t, err, &lineErr, tc.input)
		assert.Equal(t, tc.line, lineErr.Line, tc.input)
	}
}

func TestLoadPacks(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for i, content := range []string{"a:AQAAAA==\n", "b:AgAAAA==\nc:AwAAAA==\n"} {
		path := filepath.Join(dir, string(rune('a'+i))+".pack")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	packs, err := LoadPacks(context.Background(), []string{
		filepath.Join(dir, "a.pack"),
		filepath.Join(dir, "b.pack"),
	})
	require.NoError(t, err)
	require.Len(t, packs, 2)
	assert.Len(t, packs[0].Entries, 1)
	assert.Len(t, packs[1].Entries, 2)

	_, err = LoadPacks(context.Background(), []string{filepath.Join(dir, "missing.pack")})
	assert.Error(t, err)
}

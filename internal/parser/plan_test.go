package parser

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/dogs.go/internal/events"
	"github.com/sokinpui/dogs.go/internal/fs"
	"github.com/sokinpui/dogs.go/model"
)

func newResolver(t *testing.T) (*fs.PathResolver, string) {
	t.Helper()
	root := t.TempDir()
	r, err := fs.NewPathResolver(root)
	require.NoError(t, err)
	return r, root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func block(path, body string) string {
	return StartMarker(DialectDogs, path, false) + "\n" + body + "\n" + EndMarker(DialectDogs, path) + "\n"
}

func TestCreatePlanClassification(t *testing.T) {
	resolver, root := newResolver(t)
	writeFile(t, root, "existing.txt", "old content")
	writeFile(t, root, "gone.txt", "bye")
	writeFile(t, root, "five.txt", "1\n2\n3\n4\n5\n")

	bundle := block("new.txt", "```\nhello\n```") +
		block("existing.txt", "new content") +
		block("gone.txt", DeleteFileCommand) +
		block("five.txt", "@@ PAWS_CMD REPLACE_LINES(2,3) @@\nX\nY")

	rec := &events.Recorder{}
	cs, err := CreatePlan(bundle, resolver, events.NewEmitter(rec), Options{})
	require.NoError(t, err)
	require.Equal(t, 4, cs.Len())

	created := cs.Get("new.txt")
	require.NotNil(t, created)
	assert.Equal(t, model.OpCreate, created.Operation)
	assert.Equal(t, "hello", string(created.NewContent))
	assert.Nil(t, created.OldContent)
	assert.Equal(t, model.StatusPending, created.Status)

	modified := cs.Get("existing.txt")
	assert.Equal(t, model.OpModify, modified.Operation)
	assert.Equal(t, "old content", string(modified.OldContent))
	assert.Equal(t, "new content", string(modified.NewContent))

	deleted := cs.Get("gone.txt")
	assert.Equal(t, model.OpDelete, deleted.Operation)
	assert.Nil(t, deleted.OldContent)
	assert.Nil(t, deleted.NewContent)

	delta := cs.Get("five.txt")
	assert.Equal(t, model.OpModify, delta.Operation)
	assert.True(t, delta.Delta)
	assert.Equal(t, "1\nX\nY\n4\n5\n", string(delta.NewContent))

	assert.Equal(t, []string{
		events.ParseStart,
		events.ParseFile, events.ParseFile, events.ParseFile, events.ParseFile,
		events.ParseComplete,
	}, rec.Names())
}

func TestCreatePlanPathUnderRegularFileIsCreate(t *testing.T) {
	resolver, root := newResolver(t)
	writeFile(t, root, "blocker", "a file")

	cs, err := CreatePlan(block("blocker/child.txt", "nope"), resolver, nil, Options{Strict: true})
	require.NoError(t, err)
	change := cs.Get("blocker/child.txt")
	require.NotNil(t, change)
	assert.Equal(t, model.OpCreate, change.Operation)
}

func TestCreatePlanBinaryKeepsRawBytes(t *testing.T) {
	resolver, _ := newResolver(t)
	raw := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff, 0xfe, 0x80}
	encoded := base64.StdEncoding.EncodeToString(raw)
	bundle := StartMarker(DialectCats, "img.png", true) + "\n" +
		encoded[:4] + "\n" + encoded[4:] + "\n" +
		EndMarker(DialectCats, "img.png") + "\n"

	cs, err := CreatePlan(bundle, resolver, nil, Options{})
	require.NoError(t, err)
	c := cs.Get("img.png")
	require.NotNil(t, c)
	assert.True(t, c.IsBinary)
	assert.Equal(t, model.OpCreate, c.Operation)
	assert.Equal(t, raw, c.NewContent)
}

func TestCreatePlanSkipsBadBlocks(t *testing.T) {
	resolver, root := newResolver(t)
	writeFile(t, root, "short.txt", "only\n")

	bundle := block("../escape.txt", "x") +
		block("short.txt", "@@ PAWS_CMD DELETE_LINES(3,4) @@") +
		StartMarker(DialectDogs, "bad.bin", true) + "\n!!!not base64\n" + EndMarker(DialectDogs, "bad.bin") + "\n" +
		block("ok.txt", "fine")

	cs, err := CreatePlan(bundle, resolver, nil, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, cs.Len())
	assert.NotNil(t, cs.Get("ok.txt"))

	_, err = CreatePlan(bundle, resolver, nil, Options{Strict: true})
	assert.Error(t, err)
}

func TestCreatePlanDuplicatePaths(t *testing.T) {
	resolver, _ := newResolver(t)
	bundle := block("a.txt", "first") + block("b.txt", "b") + block("./a.txt", "second")

	cs, err := CreatePlan(bundle, resolver, nil, Options{})
	require.NoError(t, err)
	all := cs.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a.txt", all[0].Path)
	assert.Equal(t, "second", string(all[0].NewContent))

	_, err = CreatePlan(bundle, resolver, nil, Options{Strict: true})
	assert.ErrorIs(t, err, ErrDuplicatePath)
}

func TestFormatRoundTrip(t *testing.T) {
	resolver, root := newResolver(t)
	writeFile(t, root, "mod.txt", "before")
	writeFile(t, root, "del.txt", "doomed")

	original := []*model.FileChange{
		{Path: "dir/new.txt", Operation: model.OpCreate, NewContent: []byte("line one\n\nline three")},
		{Path: "mod.txt", Operation: model.OpModify, NewContent: []byte("after")},
		{Path: "del.txt", Operation: model.OpDelete},
		{Path: "blob.bin", Operation: model.OpCreate, IsBinary: true, NewContent: []byte{0, 1, 2, 0xff}},
	}

	for _, d := range dialects {
		t.Run(d.String(), func(t *testing.T) {
			cs, err := CreatePlan(Format(original, d), resolver, nil, Options{Strict: true})
			require.NoError(t, err)
			got := cs.All()
			require.Len(t, got, len(original))
			for i, want := range original {
				assert.Equal(t, want.Path, got[i].Path)
				assert.Equal(t, want.Operation, got[i].Operation)
				assert.Equal(t, want.IsBinary, got[i].IsBinary)
				assert.Equal(t, want.NewContent, got[i].NewContent)
			}
		})
	}
}

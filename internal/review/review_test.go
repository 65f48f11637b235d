package review

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/dogs.go/model"
)

func sampleSet() *model.ChangeSet {
	cs := model.NewChangeSet()
	cs.Add(&model.FileChange{Path: "a.txt", Operation: model.OpCreate, NewContent: []byte("hello\n")})
	cs.Add(&model.FileChange{Path: "b.txt", Operation: model.OpModify, OldContent: []byte("1\n2\n3\n"), NewContent: []byte("1\nX\n3\n")})
	cs.Add(&model.FileChange{Path: "c.txt", Operation: model.OpDelete})
	return cs
}

func TestAutoReviewers(t *testing.T) {
	cs := sampleSet()
	require.NoError(t, AutoAccept{}.Review(context.Background(), cs))
	assert.Len(t, cs.Accepted(), 3)

	require.NoError(t, AutoReject{}.Review(context.Background(), cs))
	assert.Len(t, cs.Rejected(), 3)
	assert.Empty(t, cs.Accepted())
}

func TestUnifiedDiff(t *testing.T) {
	cs := sampleSet()

	created := UnifiedDiff(cs.Get("a.txt"), 0)
	assert.Contains(t, created, "--- /dev/null")
	assert.Contains(t, created, "+++ b/a.txt")
	assert.Contains(t, created, "+hello")

	modified := UnifiedDiff(cs.Get("b.txt"), 1)
	assert.Contains(t, modified, "--- a/b.txt")
	assert.Contains(t, modified, "-2")
	assert.Contains(t, modified, "+X")

	assert.Equal(t, "delete c.txt\n", UnifiedDiff(cs.Get("c.txt"), 0))

	bin := &model.FileChange{Path: "i.png", Operation: model.OpCreate, IsBinary: true, NewContent: []byte{0, 1, 2}}
	assert.Equal(t, "binary file i.png created (3 bytes)\n", UnifiedDiff(bin, 0))

	same := &model.FileChange{Path: "s.txt", Operation: model.OpModify, OldContent: []byte("x"), NewContent: []byte("x")}
	assert.Contains(t, UnifiedDiff(same, 0), "no content changes")
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(t *testing.T, m tea.Model, msgs ...tea.Msg) (tea.Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, msg := range msgs {
		m, cmd = m.Update(msg)
	}
	return m, cmd
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestReviewModelDecisions(t *testing.T) {
	cs := sampleSet()
	m := newReviewModel(cs)

	next, cmd := send(t, m, tea.WindowSizeMsg{Width: 80, Height: 24}, runes("a"))
	assert.False(t, isQuit(cmd))
	assert.Contains(t, next.View(), "b.txt")

	next, cmd = send(t, next, runes("r"))
	assert.False(t, isQuit(cmd))

	_, cmd = send(t, next, runes("a"))
	assert.True(t, isQuit(cmd))

	assert.Equal(t, model.StatusAccepted, cs.Get("a.txt").Status)
	assert.Equal(t, model.StatusRejected, cs.Get("b.txt").Status)
	assert.Equal(t, model.StatusAccepted, cs.Get("c.txt").Status)
}

func TestReviewModelSkipAndPrevious(t *testing.T) {
	cs := sampleSet()
	m := newReviewModel(cs)

	next, _ := send(t, m, tea.WindowSizeMsg{Width: 80, Height: 24}, runes("s"), runes("p"), runes("r"))
	assert.Equal(t, model.StatusRejected, cs.Get("a.txt").Status)
	assert.Contains(t, next.View(), "b.txt")
	assert.Equal(t, model.StatusPending, cs.Get("b.txt").Status)
}

func TestReviewModelBulkDecisions(t *testing.T) {
	cs := sampleSet()
	m := newReviewModel(cs)

	_, cmd := send(t, m, tea.WindowSizeMsg{Width: 80, Height: 24}, runes("r"), runes("A"))
	assert.True(t, isQuit(cmd))
	assert.Equal(t, model.StatusRejected, cs.Get("a.txt").Status)
	assert.Equal(t, model.StatusAccepted, cs.Get("b.txt").Status)
	assert.Equal(t, model.StatusAccepted, cs.Get("c.txt").Status)
}

func TestReviewModelQuitLeavesPending(t *testing.T) {
	cs := sampleSet()
	m := newReviewModel(cs)

	_, cmd := send(t, m, tea.WindowSizeMsg{Width: 80, Height: 24}, runes("a"), runes("q"))
	assert.True(t, isQuit(cmd))
	assert.Equal(t, model.StatusAccepted, cs.Get("a.txt").Status)
	assert.Len(t, cs.Pending(), 2)

	// Review resolves what the model left pending.
	assert.Equal(t, 2, cs.ResolvePending(model.StatusRejected))
	assert.Len(t, cs.Rejected(), 2)
}

func TestInteractiveEmptySet(t *testing.T) {
	assert.NoError(t, Interactive{}.Review(context.Background(), model.NewChangeSet()))
}

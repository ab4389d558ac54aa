package workspace

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhamidi/arbor/languages/scrapile"
	"github.com/dhamidi/arbor/parser"
)

const before = `fn inc(n: int) -> int {
    n + 1
}

main {
    print!(inc(41));
}
`

func newWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := New(scrapile.Language())
	require.NoError(t, err)
	return ws
}

func TestUpdateFile(t *testing.T) {
	ws := newWorkspace(t)

	f, err := ws.UpdateFile("demo.scrap", []byte(before))
	require.NoError(t, err)
	assert.False(t, f.Incremental)
	assert.Empty(t, f.Problems)

	same, err := ws.UpdateFile("demo.scrap", []byte(before))
	require.NoError(t, err)
	assert.Same(t, f, same)

	after := []byte(before[:len(before)-3] + "print!(2);\n}\n")
	g, err := ws.UpdateFile("./demo.scrap", after)
	require.NoError(t, err)
	assert.True(t, g.Incremental)
	assert.Positive(t, g.Reused)
	assert.Equal(t, len(before)-3, g.Edit.StartByte)
	assert.Same(t, g, ws.GetFile("demo.scrap"))

	p := parser.New()
	require.NoError(t, p.SetLanguage(scrapile.Language()))
	fresh, err := p.Parse(after, nil)
	require.NoError(t, err)
	assert.True(t, fresh.Equal(g.Tree))
}

func TestProblems(t *testing.T) {
	ws := newWorkspace(t)
	f, err := ws.UpdateFile("bad.scrap", []byte("main { var x = ; }"))
	require.NoError(t, err)
	assert.NotEmpty(t, f.Problems)

	f, err = ws.UpdateFile("bad.scrap", []byte("main { var x = 1; }"))
	require.NoError(t, err)
	assert.Empty(t, f.Problems)
}

func TestScanAndRemove(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.scrap")
	b := filepath.Join(dir, "b.scrap")
	require.NoError(t, os.WriteFile(a, []byte(before), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("main { }"), 0o644))

	ws := newWorkspace(t)
	_, err := ws.ScanFile(b)
	require.NoError(t, err)
	_, err = ws.ScanFile(a)
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, ws.Paths())

	ws.RemoveFile(a)
	assert.Nil(t, ws.GetFile(a))
	assert.Equal(t, []string{b}, ws.Paths())

	_, err = ws.ScanFile(filepath.Join(dir, "missing.scrap"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "w.scrap")
	require.NoError(t, os.WriteFile(path, []byte("main { }"), 0o644))

	ws := newWorkspace(t)
	events := make(chan Event, 64)
	w, err := NewWatcher(ws, func(e Event) { events <- e })
	require.NoError(t, err)
	f, err := w.Add(path)
	require.NoError(t, err)
	assert.Empty(t, f.Problems)
	w.Start()
	defer w.Stop()

	want := "main { print!(1) }"
	require.NoError(t, os.WriteFile(path, []byte(want), 0o644))

	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-events:
			require.NoError(t, e.Err)
			if e.File == nil || string(e.File.Content) != want {
				continue
			}
			assert.Equal(t, path, e.Path)
			assert.True(t, e.File.Incremental)
			require.NotEmpty(t, e.File.Problems)
			assert.Equal(t, "missing ;", e.File.Problems[0].Message)
			return
		case <-timeout:
			t.Fatal("no event for the rewritten file")
		}
	}
}

// Package workspace keeps the latest syntax tree of a set of files and
// reparses them incrementally as they change on disk.
package workspace

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/dhamidi/arbor/format"
	"github.com/dhamidi/arbor/grammar"
	"github.com/dhamidi/arbor/parser"
	"github.com/dhamidi/arbor/syntax"
)

type Workspace struct {
	mu     sync.RWMutex
	parser *parser.Parser
	files  map[string]*File
	log    commonlog.Logger
}

// File is the parsed state of one file. Files are replaced, never
// modified, so a File returned by the workspace may be kept.
type File struct {
	Path     string
	Content  []byte
	Tree     *syntax.Tree
	Problems []format.Problem
	// Edit is the change from the previous content; Incremental reports
	// whether the previous tree was reused.
	Edit        syntax.Edit
	Incremental bool
	Reused      int
}

func New(lang *grammar.Language, opts ...parser.Option) (*Workspace, error) {
	p := parser.New(opts...)
	if err := p.SetLanguage(lang); err != nil {
		return nil, err
	}
	return &Workspace{
		parser: p,
		files:  make(map[string]*File),
		log:    commonlog.GetLogger("arbor.workspace"),
	}, nil
}

func (w *Workspace) Language() *grammar.Language {
	return w.parser.Language()
}

// ScanFile reads path from disk and updates it.
func (w *Workspace) ScanFile(path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return w.UpdateFile(path, content)
}

// UpdateFile parses content as the new text of path. The previous tree,
// if any, is edited with the single change between the two texts and
// reused. Unchanged content returns the current File.
func (w *Workspace) UpdateFile(path string, content []byte) (*File, error) {
	path = filepath.Clean(path)

	w.mu.Lock()
	defer w.mu.Unlock()

	prev := w.files[path]
	f := &File{Path: path, Content: bytes.Clone(content)}
	var old *syntax.Tree
	if prev != nil {
		e, changed := syntax.Diff(prev.Content, content)
		if !changed {
			return prev, nil
		}
		f.Edit = e
		f.Incremental = true
		old = prev.Tree.Edit(e)
	}

	tree, err := w.parser.Parse(f.Content, old)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	f.Tree = tree
	f.Reused = w.parser.Stats().ReusedNodes
	if f.Problems, err = format.Problems(tree, f.Content); err != nil {
		return nil, err
	}
	w.files[path] = f
	w.log.Debugf("parsed %s: %d problems, %d nodes reused", path, len(f.Problems), f.Reused)
	return f, nil
}

func (w *Workspace) RemoveFile(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.files, filepath.Clean(path))
}

func (w *Workspace) GetFile(path string) *File {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.files[filepath.Clean(path)]
}

// Paths returns the known paths in sorted order.
func (w *Workspace) Paths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	paths := make([]string, 0, len(w.files))
	for p := range w.files {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

package scaffold

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Document is one scaffold file read from disk, before validation.
type Document struct {
	Path     string
	Raw      []byte
	Scaffold *Scaffold
}

// DiscoverFiles returns the scaffold documents under dir in lexical order.
// Files ending in .yaml or .yml are included; names starting with "_" are skipped.
func DiscoverFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("scaffold directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scaffold directory: %s is not a directory", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, "_") {
			return nil
		}
		switch filepath.Ext(name) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking scaffold directory: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// LoadFile reads and parses a single scaffold document.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scaffold %s: %w", path, err)
	}
	s, err := ParseScaffold(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Document{Path: path, Raw: data, Scaffold: s}, nil
}

// LoadDir loads every scaffold document under dir. Duplicate ids are an
// error naming both files.
func LoadDir(dir string) ([]*Document, error) {
	files, err := DiscoverFiles(dir)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]string, len(files))
	docs := make([]*Document, 0, len(files))
	for _, f := range files {
		doc, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[doc.Scaffold.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate scaffold id %q, already defined in %s", f, doc.Scaffold.ID, prev)
		}
		seen[doc.Scaffold.ID] = f
		docs = append(docs, doc)
	}
	return docs, nil
}

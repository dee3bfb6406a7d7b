// Package entityindex implements the spec's component G: a
// name-addressable store of EntityRecords (code symbols), rebuildable from
// source and serialisable to disk.
//
// Grounded on internal/chunk's tree-sitter Symbol extraction, generalised
// from a chunk-scoped concept into a name-addressable, codebase-wide index.
package entityindex

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Aman-CERP/contextengine/internal/chunk"
)

// Kind mirrors chunk.SymbolType, renamed at the entity-index layer to
// match spec vocabulary ("function, class, constant, endpoint, model,
// pattern occurrence").
type Kind string

const (
	KindFunction  Kind = "function"
	KindClass     Kind = "class"
	KindInterface Kind = "interface"
	KindType      Kind = "type"
	KindVariable  Kind = "variable"
	KindConstant  Kind = "constant"
	KindMethod    Kind = "method"
)

// Record is one indexed code entity (spec §3 EntityRecord). The triple
// (Kind, Module, Name) is unique within an Index.
type Record struct {
	Name       string   `json:"name"`
	Kind       Kind     `json:"kind"`
	Module     string   `json:"module"`
	FilePath   string   `json:"file_path"`
	LineStart  int      `json:"line_start"`
	LineEnd    int      `json:"line_end"`
	Signature  string   `json:"signature,omitempty"`
	Docstring  string   `json:"docstring,omitempty"`
	CallOuts   []string `json:"call_outs,omitempty"`
}

func key(k Kind, module, name string) string { return string(k) + "\x00" + module + "\x00" + name }

// Index is a name-addressable, rebuildable store of Records.
type Index struct {
	mu      sync.RWMutex
	records map[string]Record // keyed by (kind, module, name)
	byName  map[string][]string
}

// New returns an empty Index.
func New() *Index {
	return &Index{records: make(map[string]Record), byName: make(map[string][]string)}
}

// Index walks rootDir (recursively if recursive is true), chunks every
// file with chunker, and replaces the index contents with the symbols it
// finds — a full rebuild, matching spec §4.G's "rebuildable at any time
// from source".
func (idx *Index) Index(ctx context.Context, rootDir string, recursive bool, chunker chunk.Chunker) error {
	records := make(map[string]Record)
	byName := make(map[string][]string)

	extSet := make(map[string]struct{})
	for _, ext := range chunker.SupportedExtensions() {
		extSet[ext] = struct{}{}
	}

	walkErr := filepath.WalkDir(rootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if !recursive && path != rootDir {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := extSet[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		content, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil
		}
		rel, rerr := filepath.Rel(rootDir, path)
		if rerr != nil {
			rel = path
		}
		chunks, cerr := chunker.Chunk(ctx, &chunk.FileInput{Path: rel, Content: content})
		if cerr != nil {
			return nil
		}
		module := strings.TrimSuffix(rel, filepath.Ext(rel))
		for _, c := range chunks {
			for _, sym := range c.Symbols {
				rec := Record{
					Name:      sym.Name,
					Kind:      Kind(sym.Type),
					Module:    module,
					FilePath:  rel,
					LineStart: sym.StartLine,
					LineEnd:   sym.EndLine,
					Signature: sym.Signature,
					Docstring: sym.DocComment,
				}
				k := key(rec.Kind, rec.Module, rec.Name)
				records[k] = rec
				byName[rec.Name] = append(byName[rec.Name], k)
			}
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("entityindex: walk %s: %w", rootDir, walkErr)
	}

	idx.mu.Lock()
	idx.records = records
	idx.byName = byName
	idx.mu.Unlock()
	return nil
}

// Names returns every indexed entity name (implements entitytracker.KnownEntities).
func (idx *Index) Names() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	names := make([]string, 0, len(idx.byName))
	for n := range idx.byName {
		names = append(names, n)
	}
	return names
}

// SearchFunction returns functions/methods whose name contains query
// (case-insensitive substring match).
func (idx *Index) SearchFunction(query string) []Record {
	return idx.search(query, KindFunction, KindMethod)
}

// SearchClass returns classes/interfaces/types whose name contains query.
func (idx *Index) SearchClass(query string) []Record {
	return idx.search(query, KindClass, KindInterface, KindType)
}

func (idx *Index) search(query string, kinds ...Kind) []Record {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	allowed := make(map[Kind]struct{}, len(kinds))
	for _, k := range kinds {
		allowed[k] = struct{}{}
	}

	q := strings.ToLower(query)
	var out []Record
	for _, rec := range idx.records {
		if _, ok := allowed[rec.Kind]; !ok {
			continue
		}
		if strings.Contains(strings.ToLower(rec.Name), q) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CountOfKind returns how many distinct entities of kind exist across the
// whole codebase — used by the contextual resolver's step 4 ("exactly one
// entity of the requested type").
func (idx *Index) CountOfKind(kind Kind) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n := 0
	for _, rec := range idx.records {
		if rec.Kind == kind {
			n++
		}
	}
	return n
}

// SoleOfKind returns the single entity of kind if exactly one exists.
func (idx *Index) SoleOfKind(kind Kind) (Record, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var found Record
	count := 0
	for _, rec := range idx.records {
		if rec.Kind == kind {
			found = rec
			count++
			if count > 1 {
				return Record{}, false
			}
		}
	}
	return found, count == 1
}

// SoleEntityOfType adapts SoleOfKind to the resolver's CodeIndex interface,
// returning just the name.
func (idx *Index) SoleEntityOfType(entityType string) (string, bool) {
	rec, ok := idx.SoleOfKind(Kind(entityType))
	if !ok {
		return "", false
	}
	return rec.Name, true
}

// persisted is the serialisable form written to code_index/entities.json.
type persisted struct {
	Records []Record `json:"records"`
}

// Serialise writes the index to path (spec §6: code_index/entities.json).
func (idx *Index) Serialise(path string) error {
	idx.mu.RLock()
	records := make([]Record, 0, len(idx.records))
	for _, r := range idx.records {
		records = append(records, r)
	}
	idx.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].Module != records[j].Module {
			return records[i].Module < records[j].Module
		}
		return records[i].Name < records[j].Name
	})

	data, err := json.MarshalIndent(persisted{Records: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("entityindex: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("entityindex: mkdir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("entityindex: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("entityindex: rename: %w", err)
	}
	return nil
}

// Deserialise loads an index previously written by Serialise.
func Deserialise(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("entityindex: read: %w", err)
	}
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("entityindex: unmarshal: %w", err)
	}

	idx := New()
	for _, rec := range p.Records {
		k := key(rec.Kind, rec.Module, rec.Name)
		idx.records[k] = rec
		idx.byName[rec.Name] = append(idx.byName[rec.Name], k)
	}
	return idx, nil
}

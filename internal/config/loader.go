package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

type SourceKind string

const (
	SourceDefault SourceKind = "default"
	SourceFile    SourceKind = "file"
)

// Source is where an effective value came from.
type Source struct {
	Kind   SourceKind
	Name   string // for defaults
	File   string
	Line   int
	Column int
}

func fileSource(file string, n *yaml.Node) Source {
	return Source{Kind: SourceFile, File: file, Line: n.Line, Column: n.Column}
}

func (s Source) String() string {
	if s.Kind == SourceFile {
		return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Column)
	}
	return string(s.Kind)
}

type LoadResult struct {
	Config  *Config
	Sources map[string]Source // YAML path -> file that set it last
	Files   []string          // loaded files, in merge order
}

// PathEnv overrides the config file location.
const PathEnv = "INKMUX_CONFIG"

func DefaultConfigPath() (string, error) {
	if p := os.Getenv(PathEnv); p != "" {
		return p, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "inkmux", "config.yaml"), nil
}

// Load reads the merged configuration from the standard location and returns an
// effective config ready for use by the daemon.
func Load() (*Config, error) {
	res, err := LoadWithSources()
	if err != nil {
		return nil, err
	}
	return res.Config, nil
}

// LoadWithSources loads config and returns file-level sources for introspection.
func LoadWithSources() (*LoadResult, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads path and everything it includes. A missing file yields
// the defaults.
func LoadFromPath(path string) (*LoadResult, error) {
	l := &loader{
		seen:    make(map[string]bool),
		sources: make(map[string]Source),
	}
	if _, err := os.Stat(path); err == nil {
		if err := l.load(path, nil); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg, err := BuildEffectiveConfig(l.raw)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		return nil, l.withSource(err)
	}
	return &LoadResult{Config: cfg, Sources: l.sources, Files: l.files}, nil
}

// loader merges a file tree depth-first: a file's includes first, in order,
// then the file itself.
type loader struct {
	raw     RawConfig
	sources map[string]Source
	files   []string
	seen    map[string]bool
}

func (l *loader) load(path string, stack []string) error {
	canon := canonicalPath(path)
	if slices.Contains(stack, canon) {
		return fmt.Errorf("include cycle detected: %s -> %s", strings.Join(stack, " -> "), canon)
	}
	if l.seen[canon] {
		return nil
	}
	l.seen[canon] = true

	data, err := os.ReadFile(canon)
	if err != nil {
		return fmt.Errorf("%s: failed to read: %w", canon, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%s: failed to parse yaml: %w", canon, err)
	}
	var raw RawConfig
	if err := decodeStrictYAML(data, &raw); err != nil {
		return fmt.Errorf("%s: %w", canon, err)
	}

	root := documentRoot(&doc)
	for _, inc := range includeNodes(root) {
		paths, err := expandInclude(canon, inc.Value)
		if err != nil {
			return fmt.Errorf("%s: include %q: %w", fileSource(canon, inc), inc.Value, err)
		}
		for _, p := range paths {
			if err := l.load(p, append(stack, canon)); err != nil {
				return err
			}
		}
	}

	l.raw = l.raw.merge(raw)
	recordSources(root, canon, "", l.sources)
	l.files = append(l.files, canon)
	return nil
}

// withSource points a validation error at the file position that set the
// offending key.
func (l *loader) withSource(err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) && verr.Path != "" {
		if src, ok := l.sources[verr.Path]; ok {
			verr.Source = src
		}
	}
	return err
}

func decodeStrictYAML(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// canonicalPath resolves symlinks when it can and falls back to the
// absolute path.
func canonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}
	return abs
}

// expandInclude resolves an include relative to the including file. A
// directory expands to its *.yaml and *.yml files in name order.
func expandInclude(baseFile, include string) ([]string, error) {
	if include == "" {
		return nil, fmt.Errorf("path is empty")
	}
	if include == "~" || strings.HasPrefix(include, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		include = filepath.Join(home, strings.TrimPrefix(include, "~"))
	}
	if !filepath.IsAbs(include) {
		include = filepath.Join(filepath.Dir(baseFile), include)
	}

	info, err := os.Stat(include)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{include}, nil
	}

	entries, err := os.ReadDir(include)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, ent := range entries {
		switch strings.ToLower(filepath.Ext(ent.Name())) {
		case ".yaml", ".yml":
			if !ent.IsDir() {
				files = append(files, filepath.Join(include, ent.Name()))
			}
		}
	}
	slices.Sort(files)
	return files, nil
}

func documentRoot(doc *yaml.Node) *yaml.Node {
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		return doc.Content[0]
	}
	return doc
}

// recordSources stores the position of every mapping value under its dotted
// path. Sequences are recorded as a whole.
func recordSources(node *yaml.Node, file, prefix string, out map[string]Source) {
	if node.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		if prefix != "" {
			key = prefix + "." + key
		}
		out[key] = fileSource(file, val)
		recordSources(val, file, key, out)
	}
}

// includeNodes returns the scalar nodes of a top-level include directive.
func includeNodes(root *yaml.Node) []*yaml.Node {
	if root.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != "include" {
			continue
		}
		val := root.Content[i+1]
		switch val.Kind {
		case yaml.ScalarNode:
			return []*yaml.Node{val}
		case yaml.SequenceNode:
			var out []*yaml.Node
			for _, item := range val.Content {
				if item.Kind == yaml.ScalarNode {
					out = append(out, item)
				}
			}
			return out
		}
	}
	return nil
}

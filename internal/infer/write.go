package infer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/tdevere/DevOpsApiClients/internal/opdef"
)

// Header is prepended to every inferred definition file.
const Header = "# AUTO-GENERATED by adogen infer - review recommended\n"

// SpecPattern matches cached specification files in the spec directory.
const SpecPattern = ".cache_*.json"

// WriteOptions controls WriteDefinitions.
type WriteOptions struct {
	DryRun    bool
	Overwrite bool
}

// WriteSummary lists the file names handled by WriteDefinitions.
type WriteSummary struct {
	// Generated holds written files, or files that would be written in a
	// dry run.
	Generated []string
	// Existing holds files left alone because they already exist.
	Existing []string
}

// WriteDefinitions writes candidates as YAML documents into dir. Existing
// files are kept unless opts.Overwrite is set.
func WriteDefinitions(dir string, candidates []Candidate, opts WriteOptions) (*WriteSummary, error) {
	if !opts.DryRun {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create definitions dir: %w", err)
		}
	}

	summary := &WriteSummary{}
	for _, c := range candidates {
		path := filepath.Join(dir, c.FileName)
		if !opts.Overwrite {
			if _, err := os.Stat(path); err == nil {
				summary.Existing = append(summary.Existing, c.FileName)
				continue
			}
		}
		if opts.DryRun {
			summary.Generated = append(summary.Generated, c.FileName)
			continue
		}

		body, err := c.Definition.Marshal(opdef.FormatYAML)
		if err != nil {
			return summary, fmt.Errorf("marshal %s: %w", c.FileName, err)
		}
		if err := writeAtomic(path, append([]byte(Header), body...)); err != nil {
			return summary, err
		}
		summary.Generated = append(summary.Generated, c.FileName)
	}
	return summary, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// SpecSet maps domain keys to their cached specification files.
type SpecSet struct {
	Files map[string][]string
	// Unmatched holds files whose name maps to no known domain.
	Unmatched []string
}

// Domains returns the domain keys in sorted order.
func (s *SpecSet) Domains() []string {
	keys := make([]string, 0, len(s.Files))
	for k := range s.Files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup finds a domain key case-insensitively.
func (s *SpecSet) Lookup(name string) (string, bool) {
	for _, k := range s.Domains() {
		if strings.EqualFold(k, name) {
			return k, true
		}
	}
	return "", false
}

// DiscoverSpecs finds .cache_<domain>[_<file>].json files in dir and maps
// each to the longest known domain key it starts with.
func DiscoverSpecs(dir string, p Policy) (*SpecSet, error) {
	matches, err := doublestar.FilepathGlob(filepath.Join(dir, SpecPattern))
	if err != nil {
		return nil, fmt.Errorf("discover specs: %w", err)
	}
	sort.Strings(matches)

	keys := make([]string, 0, len(p.DomainDirs))
	for k := range p.DomainDirs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	set := &SpecSet{Files: make(map[string][]string)}
	for _, path := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), ".cache_"), ".json")
		matched := false
		for _, k := range keys {
			if name == k || strings.HasPrefix(name, k+"_") {
				set.Files[k] = append(set.Files[k], path)
				matched = true
				break
			}
		}
		if !matched {
			set.Unmatched = append(set.Unmatched, path)
		}
	}
	return set, nil
}

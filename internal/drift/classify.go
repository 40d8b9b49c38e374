package drift

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Summaries for changes without a structural delta.
const (
	SummaryMetadataOnly = "Spec content changed (descriptions, examples, or metadata). No structural impact."
	SummaryOpaque       = "Spec content changed but is not valid JSON for diff analysis."
)

// members returns the keys of a top-level object in document order along
// with their values. Keys are read by iteration since definition names
// routinely contain dots.
func members(doc gjson.Result, field string) ([]string, map[string]gjson.Result) {
	var keys []string
	vals := make(map[string]gjson.Result)
	doc.Get(field).ForEach(func(k, v gjson.Result) bool {
		name := k.String()
		if _, dup := vals[name]; !dup {
			keys = append(keys, name)
		}
		vals[name] = v
		return true
	})
	return keys, vals
}

func subtract(a []string, b map[string]gjson.Result) []string {
	out := []string{}
	for _, k := range a {
		if _, ok := b[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Classify compares two Swagger 2 documents. A nil or unparseable previous
// document is treated as an initial sync where everything is added. next
// must be valid JSON.
func Classify(prev, next []byte) Classification {
	newDoc := gjson.ParseBytes(next)
	newPaths, newPathSet := members(newDoc, "paths")
	newDefs, newDefSet := members(newDoc, "definitions")

	if prev == nil || !gjson.ValidBytes(prev) {
		return Classification{
			ChangeType:         NonBreaking,
			AddedPaths:         nonNil(newPaths),
			RemovedPaths:       []string{},
			AddedDefinitions:   nonNil(newDefs),
			RemovedDefinitions: []string{},
			TypeChanges:        []string{},
			Summary:            fmt.Sprintf("Initial sync. %d paths, %d definitions catalogued.", len(newPaths), len(newDefs)),
		}
	}

	oldDoc := gjson.ParseBytes(prev)
	oldPaths, oldPathSet := members(oldDoc, "paths")
	oldDefs, oldDefSet := members(oldDoc, "definitions")

	c := Classification{
		AddedPaths:         subtract(newPaths, oldPathSet),
		RemovedPaths:       subtract(oldPaths, newPathSet),
		AddedDefinitions:   subtract(newDefs, oldDefSet),
		RemovedDefinitions: subtract(oldDefs, newDefSet),
		TypeChanges:        typeChanges(oldDefs, oldDefSet, newDefSet),
	}

	var parts []string
	if n := len(c.AddedPaths); n > 0 {
		parts = append(parts, fmt.Sprintf("+%d endpoints", n))
	}
	if n := len(c.RemovedPaths); n > 0 {
		parts = append(parts, fmt.Sprintf("-%d endpoints", n))
	}
	if n := len(c.AddedDefinitions); n > 0 {
		parts = append(parts, fmt.Sprintf("+%d definitions", n))
	}
	if n := len(c.RemovedDefinitions); n > 0 {
		parts = append(parts, fmt.Sprintf("-%d definitions", n))
	}
	if n := len(c.TypeChanges); n > 0 {
		parts = append(parts, fmt.Sprintf("%d type changes", n))
	}

	switch {
	case len(parts) == 0:
		c.ChangeType = NonBreaking
		c.Summary = SummaryMetadataOnly
	case len(c.RemovedPaths) > 0 || len(c.RemovedDefinitions) > 0 || len(c.TypeChanges) > 0:
		c.ChangeType = Breaking
		c.Summary = strings.Join(parts, "; ")
	default:
		c.ChangeType = NonBreaking
		c.Summary = strings.Join(parts, "; ")
	}
	return c
}

// typeChanges lists properties of definitions present in both versions whose
// declared type differs, formatted "Def.prop: old → new" and sorted.
func typeChanges(oldDefs []string, oldSet, newSet map[string]gjson.Result) []string {
	out := []string{}
	for _, name := range oldDefs {
		newDef, ok := newSet[name]
		if !ok {
			continue
		}
		oldProps, oldPropSet := members(oldSet[name], "properties")
		_, newPropSet := members(newDef, "properties")
		for _, prop := range oldProps {
			np, ok := newPropSet[prop]
			if !ok {
				continue
			}
			oldType := oldPropSet[prop].Get("type").String()
			newType := np.Get("type").String()
			if oldType != "" && newType != "" && oldType != newType {
				out = append(out, fmt.Sprintf("%s.%s: %s → %s", name, prop, oldType, newType))
			}
		}
	}
	sort.Strings(out)
	return out
}

// Package registry holds the Target Code Registry: the immutable list of
// (code, code_type, label) entries every downstream stage filters against.
package registry

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/gyeh/pricepanel/internal/model"
	"github.com/gyeh/pricepanel/internal/normalize"
)

//go:embed targets.yaml
var defaultTargets []byte

// Registry is immutable after construction; share it freely.
type Registry struct {
	entries []model.TargetCode
	byKey   map[model.CodeKey]model.TargetCode
}

// yamlRegistry is the on-disk YAML structure.
type yamlRegistry struct {
	Codes []struct {
		Code     string `yaml:"code"`
		CodeType string `yaml:"code_type"`
		Label    string `yaml:"label"`
	} `yaml:"codes"`
}

// Load reads a YAML registry file. An empty path loads the embedded default list.
func Load(path string) (*Registry, error) {
	data := defaultTargets
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read targets file: %w", err)
		}
	}
	return Parse(data)
}

// Parse builds a Registry from YAML bytes.
func Parse(data []byte) (*Registry, error) {
	var yr yamlRegistry
	if err := yaml.Unmarshal(data, &yr); err != nil {
		return nil, fmt.Errorf("parse targets: %w", err)
	}
	entries := make([]model.TargetCode, 0, len(yr.Codes))
	for i, c := range yr.Codes {
		ct, err := model.ParseCodeType(c.CodeType)
		if err != nil {
			return nil, fmt.Errorf("targets entry %d: %w", i, err)
		}
		entries = append(entries, model.TargetCode{Code: c.Code, CodeType: ct, Label: c.Label})
	}
	return New(entries)
}

// New validates entries and returns a Registry. Codes are normalized; a
// repeated (code, code_type) pair is an error.
func New(entries []model.TargetCode) (*Registry, error) {
	r := &Registry{
		entries: make([]model.TargetCode, 0, len(entries)),
		byKey:   make(map[model.CodeKey]model.TargetCode, len(entries)),
	}
	for _, e := range entries {
		e.Code = normalize.Code(e.Code)
		if e.Code == "" {
			return nil, fmt.Errorf("empty code (label %q)", e.Label)
		}
		if e.CodeType != model.CodeTypeDRG && e.CodeType != model.CodeTypeProcedure {
			return nil, fmt.Errorf("code %s: unknown code type %q", e.Code, e.CodeType)
		}
		if _, dup := r.byKey[e.Key()]; dup {
			return nil, fmt.Errorf("duplicate target code %s/%s", e.Code, e.CodeType)
		}
		r.byKey[e.Key()] = e
		r.entries = append(r.entries, e)
	}
	if len(r.entries) == 0 {
		return nil, fmt.Errorf("target code registry is empty")
	}
	return r, nil
}

// Lookup returns the entry for (code, codeType); code must already be normalized.
func (r *Registry) Lookup(code string, codeType model.CodeType) (model.TargetCode, bool) {
	e, ok := r.byKey[model.CodeKey{Code: code, CodeType: codeType}]
	return e, ok
}

// Entries returns a copy of all entries in load order.
func (r *Registry) Entries() []model.TargetCode {
	out := make([]model.TargetCode, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int { return len(r.entries) }

// Codes returns the sorted codes of one type.
func (r *Registry) Codes(codeType model.CodeType) []string {
	var out []string
	for _, e := range r.entries {
		if e.CodeType == codeType {
			out = append(out, e.Code)
		}
	}
	sort.Strings(out)
	return out
}

// Filter returns the code-membership predicate used by the extractors.
func (r *Registry) Filter() *CodeFilter {
	f := &CodeFilter{
		drg:  make(map[string]struct{}),
		proc: make(map[string]struct{}),
	}
	for _, e := range r.entries {
		switch e.CodeType {
		case model.CodeTypeDRG:
			f.drg[e.Code] = struct{}{}
		case model.CodeTypeProcedure:
			f.proc[e.Code] = struct{}{}
		}
	}
	f.drgList = r.Codes(model.CodeTypeDRG)
	f.procList = r.Codes(model.CodeTypeProcedure)
	return f
}

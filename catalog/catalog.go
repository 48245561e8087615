// Copyright 2025 SQLGate Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package catalog holds named, pre-parameterized ERP query templates.
// Agents invoke a tool by name with typed arguments instead of writing
// raw ERP SQL; every template binds its arguments as parameters, never
// by string interpolation, so catalog queries cannot carry injected
// text into the backend.
package catalog

import (
	"fmt"
	"sort"
)

// Param describes one tool argument.
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // string, integer, boolean
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

// Tool is one named query template. Build produces SQL with $n
// placeholders and the ordered parameter values; Resolve rebinds the
// placeholders for the target backend kind.
type Tool struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`

	build func(args map[string]any) (string, []any, error)
}

// Query is a resolved template ready for dispatch.
type Query struct {
	SQL    string
	Params []any
}

// Catalog maps ERP system names to their tool sets.
type Catalog struct {
	erps map[string]map[string]Tool
}

// Default returns the built-in catalog: Dynamics 365 and SAP S/4HANA.
func Default() *Catalog {
	c := &Catalog{erps: make(map[string]map[string]Tool)}
	c.register("dynamics365", dynamics365Tools())
	c.register("sap_s4hana", sapS4HANATools())
	return c
}

func (c *Catalog) register(erp string, tools []Tool) {
	set := make(map[string]Tool, len(tools))
	for _, t := range tools {
		set[t.Name] = t
	}
	c.erps[erp] = set
}

// ERPs lists the known ERP systems, sorted.
func (c *Catalog) ERPs() []string {
	out := make([]string, 0, len(c.erps))
	for name := range c.erps {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Tools lists an ERP's tools, sorted by name.
func (c *Catalog) Tools(erp string) ([]Tool, error) {
	set, ok := c.erps[erp]
	if !ok {
		return nil, fmt.Errorf("catalog: unknown erp %q", erp)
	}
	out := make([]Tool, 0, len(set))
	for _, t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Resolve builds the named tool's SQL for the target backend kind.
// Missing required arguments fail; optional arguments fall back to
// their declared defaults.
func (c *Catalog) Resolve(erp, tool, backendKind string, args map[string]any) (Query, error) {
	set, ok := c.erps[erp]
	if !ok {
		return Query{}, fmt.Errorf("catalog: unknown erp %q", erp)
	}
	t, ok := set[tool]
	if !ok {
		return Query{}, fmt.Errorf("catalog: erp %q has no tool %q", erp, tool)
	}

	merged, err := applyDefaults(t.Params, args)
	if err != nil {
		return Query{}, fmt.Errorf("catalog: %s/%s: %w", erp, tool, err)
	}

	sql, params, err := t.build(merged)
	if err != nil {
		return Query{}, fmt.Errorf("catalog: %s/%s: %w", erp, tool, err)
	}
	return Query{SQL: rebind(sql, backendKind), Params: params}, nil
}

func applyDefaults(decl []Param, args map[string]any) (map[string]any, error) {
	merged := make(map[string]any, len(decl))
	for _, p := range decl {
		v, present := args[p.Name]
		if !present || v == nil {
			if p.Required {
				return nil, fmt.Errorf("missing required argument %q", p.Name)
			}
			if p.Default != nil {
				merged[p.Name] = p.Default
			}
			continue
		}
		merged[p.Name] = v
	}
	return merged, nil
}

// argString returns a string argument, present or not.
func argString(args map[string]any, name string) (string, bool, error) {
	v, ok := args[name]
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("argument %q must be a string", name)
	}
	return s, true, nil
}

// argInt returns an integer argument, tolerating JSON's float64.
func argInt(args map[string]any, name string) (int, bool, error) {
	v, ok := args[name]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case int64:
		return int(n), true, nil
	case float64:
		return int(n), true, nil
	default:
		return 0, false, fmt.Errorf("argument %q must be an integer", name)
	}
}

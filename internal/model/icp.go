package model

import (
	"fmt"
	"strings"
)

// SizeRange bounds company headcount. Zero means unbounded.
type SizeRange struct {
	Min int `json:"min,omitempty" yaml:"min"`
	Max int `json:"max,omitempty" yaml:"max"`
}

// String renders the range as "50-500 employees", "500+ employees" etc.
func (r SizeRange) String() string {
	switch {
	case r.Min > 0 && r.Max > 0:
		return fmt.Sprintf("%d-%d employees", r.Min, r.Max)
	case r.Min > 0:
		return fmt.Sprintf("%d+ employees", r.Min)
	case r.Max > 0:
		return fmt.Sprintf("up to %d employees", r.Max)
	default:
		return ""
	}
}

// ICP is the Ideal Customer Profile. Treated as immutable for a run.
type ICP struct {
	Industries        []string  `json:"industries" yaml:"industries"`
	Geos              []string  `json:"geos" yaml:"geos"`
	CompanySize       SizeRange `json:"companySize" yaml:"company_size"`
	Roles             []string  `json:"roles" yaml:"roles"`
	ExcludeIndustries []string  `json:"excludeIndustries,omitempty" yaml:"exclude_industries"`
	ExcludeGeos       []string  `json:"excludeGeos,omitempty" yaml:"exclude_geos"`
	ExcludeDomains    []string  `json:"excludeDomains,omitempty" yaml:"exclude_domains"`
}

// IsEmpty reports whether the ICP has nothing to search for.
func (i ICP) IsEmpty() bool {
	return len(nonBlank(i.Industries)) == 0 && len(nonBlank(i.Geos)) == 0
}

// Summary is a human-readable one-liner used in plans and prompts.
func (i ICP) Summary() string {
	var parts []string
	if v := nonBlank(i.Industries); len(v) > 0 {
		parts = append(parts, "industries: "+strings.Join(v, ", "))
	}
	if v := nonBlank(i.Geos); len(v) > 0 {
		parts = append(parts, "geos: "+strings.Join(v, ", "))
	}
	if s := i.CompanySize.String(); s != "" {
		parts = append(parts, "size: "+s)
	}
	if v := nonBlank(i.Roles); len(v) > 0 {
		parts = append(parts, "roles: "+strings.Join(v, ", "))
	}
	if v := nonBlank(i.ExcludeIndustries); len(v) > 0 {
		parts = append(parts, "excluding industries: "+strings.Join(v, ", "))
	}
	if v := nonBlank(i.ExcludeGeos); len(v) > 0 {
		parts = append(parts, "excluding geos: "+strings.Join(v, ", "))
	}
	return strings.Join(parts, "; ")
}

func nonBlank(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// NonBlank trims and drops empty entries.
func NonBlank(in []string) []string { return nonBlank(in) }

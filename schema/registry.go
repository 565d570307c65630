package schema

import (
	"regexp"
	"sort"
	"strings"

	"github.com/signalsfoundry/flightdata-analyzer/model"
)

// linkPattern matches communication-link margin columns of the form
// COMM_<NAME>_dB, case-insensitively. The captured <NAME> keeps the spelling
// used in the file. A column like COMM__dB (empty name) does not match and
// falls through to prefix classification.
var linkPattern = regexp.MustCompile(`(?i)^COMM_(.+)_dB$`)

// Registry is the stable column classification for one dataset: every
// non-core column belongs to exactly one subsystem or link descriptor.
// Build is a pure function of the column-name set, so rebuilding from the
// same schema always yields an identical registry.
type Registry struct {
	subsystems map[string]*model.SubsystemDescriptor
	links      map[string]*model.LinkDescriptor
	fieldOwner map[string]string
}

// Build classifies the given column names. Classification is total: a column
// matching COMM_<NAME>_dB becomes part of link <NAME>; any other column is
// grouped by the prefix before its first underscore; a column without an
// underscore forms its own single-field subsystem. Empty and duplicate names
// are ignored.
func Build(columns []string) *Registry {
	r := &Registry{
		subsystems: make(map[string]*model.SubsystemDescriptor),
		links:      make(map[string]*model.LinkDescriptor),
		fieldOwner: make(map[string]string),
	}

	sorted := append([]string(nil), columns...)
	sort.Strings(sorted)

	for _, col := range sorted {
		if col == "" {
			continue
		}
		if _, dup := r.fieldOwner[col]; dup {
			continue
		}

		if m := linkPattern.FindStringSubmatch(col); m != nil {
			name := m[1]
			d := r.links[name]
			if d == nil {
				d = &model.LinkDescriptor{ID: name, Kind: InferKind(name)}
				r.links[name] = d
			}
			d.Fields = append(d.Fields, col)
			r.fieldOwner[col] = "link:" + name
			continue
		}

		prefix := subsystemPrefix(col)
		d := r.subsystems[prefix]
		if d == nil {
			d = &model.SubsystemDescriptor{ID: prefix}
			r.subsystems[prefix] = d
		}
		d.Fields = append(d.Fields, col)
		r.fieldOwner[col] = "subsystem:" + prefix
	}

	return r
}

// InferKind maps a link name onto its kind by substring. Tokens are checked
// in a fixed order so the result is deterministic for names carrying more
// than one token.
func InferKind(linkID string) model.LinkKind {
	u := strings.ToUpper(linkID)
	switch {
	case strings.Contains(u, "GEO"):
		return model.LinkKindGEO
	case strings.Contains(u, "LEO"):
		return model.LinkKindLEO
	case strings.Contains(u, "UHF"):
		return model.LinkKindUHF
	default:
		return model.LinkKindUnknown
	}
}

func subsystemPrefix(col string) string {
	if i := strings.Index(col, "_"); i > 0 {
		return col[:i]
	}
	return col
}

// Subsystem returns the descriptor with the given ID.
func (r *Registry) Subsystem(id string) (model.SubsystemDescriptor, bool) {
	d, ok := r.subsystems[id]
	if !ok {
		return model.SubsystemDescriptor{}, false
	}
	return copySubsystem(d), true
}

// Link returns the link descriptor with the given ID.
func (r *Registry) Link(id string) (model.LinkDescriptor, bool) {
	d, ok := r.links[id]
	if !ok {
		return model.LinkDescriptor{}, false
	}
	return copyLink(d), true
}

// Subsystems returns all subsystem descriptors sorted by ID.
func (r *Registry) Subsystems() []model.SubsystemDescriptor {
	res := make([]model.SubsystemDescriptor, 0, len(r.subsystems))
	for _, d := range r.subsystems {
		res = append(res, copySubsystem(d))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Links returns all link descriptors sorted by ID.
func (r *Registry) Links() []model.LinkDescriptor {
	res := make([]model.LinkDescriptor, 0, len(r.links))
	for _, d := range r.links {
		res = append(res, copyLink(d))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// SubsystemIDs returns the sorted subsystem IDs.
func (r *Registry) SubsystemIDs() []string {
	ids := make([]string, 0, len(r.subsystems))
	for id := range r.subsystems {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LinkIDs returns the sorted link IDs.
func (r *Registry) LinkIDs() []string {
	ids := make([]string, 0, len(r.links))
	for id := range r.links {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Owner reports which descriptor a column was classified under, as
// "subsystem:<id>" or "link:<id>".
func (r *Registry) Owner(column string) (string, bool) {
	o, ok := r.fieldOwner[column]
	return o, ok
}

func copySubsystem(d *model.SubsystemDescriptor) model.SubsystemDescriptor {
	return model.SubsystemDescriptor{
		ID:     d.ID,
		Fields: append([]string(nil), d.Fields...),
	}
}

func copyLink(d *model.LinkDescriptor) model.LinkDescriptor {
	return model.LinkDescriptor{
		ID:     d.ID,
		Kind:   d.Kind,
		Fields: append([]string(nil), d.Fields...),
	}
}

package model

// LinkKind tags a communication link with the orbit or band family inferred
// from its column name.
type LinkKind string

const (
	LinkKindGEO     LinkKind = "GEO"
	LinkKindLEO     LinkKind = "LEO"
	LinkKindUHF     LinkKind = "UHF"
	LinkKindUnknown LinkKind = "Unknown"
)

// SubsystemDescriptor groups telemetry columns sharing a name prefix, e.g.
// GNC_Roll_deg and GNC_Pitch_deg under subsystem "GNC". Fields are sorted.
type SubsystemDescriptor struct {
	ID     string   `json:"id"`
	Fields []string `json:"fields"`
}

// LinkDescriptor groups the margin columns of one communication link. The ID
// is the <NAME> part of a COMM_<NAME>_dB column; in practice each link has a
// single margin column but the grouping tolerates more.
type LinkDescriptor struct {
	ID     string   `json:"id"`
	Kind   LinkKind `json:"kind"`
	Fields []string `json:"fields"`
}

// MarginField returns the column holding the link's margin series. Fields is
// never empty for a descriptor built by the registry.
func (d LinkDescriptor) MarginField() string {
	if len(d.Fields) == 0 {
		return ""
	}
	return d.Fields[0]
}

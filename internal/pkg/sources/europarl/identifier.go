package europarl

import "strings"

// Derived fields of a work identifier. Empty strings mean the segment was
// absent or the identifier malformed; parsing never fails.
type IdentifierMeta struct {
	Kind   string
	Term   string
	Year   string
	Number string
	Date   string
}

// Parses identifiers of the forms A-10-2024-0001, TA-10-2024-0001,
// E-10-2024-001357 and CRE-10-2025-01-20. The first segment is the kind tag,
// the second the legislative term; debate records carry a full date in
// segments 3-5, the rest carry year and sequence number in segments 3-4.
func ParseIdentifier(identifier string) IdentifierMeta {
	parts := strings.Split(identifier, "-")
	if identifier == "" || len(parts) < 2 {
		return IdentifierMeta{}
	}

	meta := IdentifierMeta{Kind: parts[0], Term: parts[1]}
	if meta.Kind == "CRE" {
		if len(parts) >= 5 {
			meta.Date = strings.Join(parts[2:5], "-")
		}
		return meta
	}
	if len(parts) > 2 {
		meta.Year = parts[2]
	}
	if len(parts) > 3 {
		meta.Number = parts[3]
	}
	return meta
}

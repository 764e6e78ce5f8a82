package validate

import (
	"fmt"
	"strings"

	"github.com/papapumpkin/parsec/internal/schedule"
)

// FixKind names a suggested repair.
type FixKind string

// Fix kinds.
const (
	FixRemoveCircular  FixKind = "remove_circular_dependency"
	FixRemoveInvalid   FixKind = "remove_invalid_reference"
	FixRemoveSelf      FixKind = "remove_self_dependency"
	FixRemoveDuplicate FixKind = "remove_duplicate_edge"
)

// Fix is one suggested change that would address a validation problem.
// Fixes are advisory; nothing is applied automatically.
type Fix struct {
	Kind        FixKind       `json:"type"`
	Edge        schedule.Edge `json:"edge"`
	Description string        `json:"description"`
}

// SuggestFixes proposes one fix per problem in the result. For a cycle the
// suggestion is to drop the edge that closes the loop.
func SuggestFixes(r Result) []Fix {
	var fixes []Fix
	for _, c := range r.Cycles {
		if len(c) < 2 {
			continue
		}
		closing := schedule.Edge{Predecessor: c[len(c)-2], Successor: c[len(c)-1]}
		fixes = append(fixes, Fix{
			Kind:        FixRemoveCircular,
			Edge:        closing,
			Description: fmt.Sprintf("remove %s to break cycle %s", closing, strings.Join(c, " -> ")),
		})
	}
	for _, ie := range r.InvalidEdges {
		fix := Fix{Kind: FixRemoveInvalid, Edge: ie.Edge}
		switch ie.Issue {
		case IssueSelfDependency:
			fix.Kind = FixRemoveSelf
			fix.Description = fmt.Sprintf("remove self dependency on %s", ie.Edge.Predecessor)
		case IssuePredecessorNotFound:
			fix.Description = fmt.Sprintf("remove %s: predecessor %s does not exist", ie.Edge, ie.Edge.Predecessor)
		default:
			fix.Description = fmt.Sprintf("remove %s: successor %s does not exist", ie.Edge, ie.Edge.Successor)
		}
		fixes = append(fixes, fix)
	}
	for _, e := range r.DuplicateEdges {
		fixes = append(fixes, Fix{Kind: FixRemoveDuplicate, Edge: e, Description: "remove duplicate " + e.String()})
	}
	return fixes
}

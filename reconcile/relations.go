package reconcile

import (
	"github.com/grainway/batchgate/tracker"
)

// DependencyIDs resolves a dependent item's linked dependency ids:
// deduplicated, first-occurrence order. An empty result means "no
// dependencies yet", which is valid and distinct from a fetch failure.
func DependencyIDs(item tracker.DependentItem) []string {
	return dedupeIDs(item.Dependencies, nil)
}

// DependentIDsOnBoard resolves a dependency item's back-links to the
// dependent items that wait on it. A dependency item may be linked to several
// unrelated boards; only links targeting the dependent board are kept.
func DependentIDsOnBoard(item *tracker.DependencyItem, dependentBoardID int64) []string {
	return dedupeIDs(item.Dependents, func(link tracker.LinkedItem) bool {
		return link.BoardID == dependentBoardID
	})
}

func dedupeIDs(links []tracker.LinkedItem, keep func(tracker.LinkedItem) bool) []string {
	ids := make([]string, 0, len(links))
	seen := make(map[string]struct{}, len(links))
	for _, link := range links {
		if keep != nil && !keep(link) {
			continue
		}
		if _, dup := seen[link.ID]; dup {
			continue
		}
		seen[link.ID] = struct{}{}
		ids = append(ids, link.ID)
	}
	return ids
}

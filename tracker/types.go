package tracker

// LinkedItem is one end of a board-relation link: the linked item's id and the
// board hosting it. Relation columns can point across several boards, so the
// board id travels with every link.
type LinkedItem struct {
	ID      string
	BoardID int64
}

// DependentItem is a production batch on the dependent board, with its status
// and the purchase orders it waits on. Dependencies come from the relation
// column's expanded linked items, never from the column's summary text (the
// tracker reports empty text for relation columns even when links exist).
type DependentItem struct {
	ID           string
	Name         string
	StatusLabel  string
	StatusIndex  int
	Dependencies []LinkedItem
}

// DependencyStatus is the status of one purchase order, fetched in a single
// batched call per run.
type DependencyStatus struct {
	ID    string
	Label string
	Index int
}

// DependencyItem is a purchase order with its back-relation to the batches
// that wait on it. Entry point for targeted runs.
type DependencyItem struct {
	ID          string
	Name        string
	StatusLabel string
	Dependents  []LinkedItem
}

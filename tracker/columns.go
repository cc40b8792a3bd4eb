package tracker

import (
	"encoding/json"
	"strconv"

	"github.com/grainway/batchgate/errors"
)

// Column payloads arrive as a polymorphic union discriminated by type. The
// raw form is decoded into one of the typed fields below at the client
// boundary; nothing downstream sees the wire shape.
const (
	columnTypeStatus   = "status"
	columnTypeRelation = "board_relation"
)

// columnValue is the wire form of one column value: the shared fields plus
// whichever fragment fields the column type carries. Status columns fill
// label/index, relation columns fill linked_items. The summary text field is
// deliberately never used for relation columns.
type columnValue struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`

	// StatusValue fragment; null when the status is unset
	Label *string `json:"label"`
	Index *int    `json:"index"`

	// BoardRelationValue fragment
	LinkedItems []linkedItemWire `json:"linked_items"`
}

type linkedItemWire struct {
	ID    string    `json:"id"`
	Board boardWire `json:"board"`
}

type boardWire struct {
	ID string `json:"id"` // GraphQL ID scalar, numeric content
}

// StatusField is a status column decoded to its label and positional index.
type StatusField struct {
	ColumnID string
	Label    string
	Index    int
}

// LinkedItemsField is a board-relation column decoded to its explicit links.
type LinkedItemsField struct {
	ColumnID string
	Items    []LinkedItem
}

// decodeStatus decodes the status fragment of a column value. An unset status
// (null label) decodes to an empty label, which downstream code treats as
// never satisfying.
func decodeStatus(cv columnValue) (StatusField, error) {
	if cv.Type != columnTypeStatus {
		return StatusField{}, errors.Newf("column %q has type %q, expected %q", cv.ID, cv.Type, columnTypeStatus)
	}

	field := StatusField{ColumnID: cv.ID}
	if cv.Label != nil {
		field.Label = *cv.Label
	}
	if cv.Index != nil {
		field.Index = *cv.Index
	}
	return field, nil
}

// decodeLinkedItems decodes the relation fragment of a column value. No links
// decodes to an empty set, which is valid and distinct from a fetch failure.
func decodeLinkedItems(cv columnValue) (LinkedItemsField, error) {
	if cv.Type != columnTypeRelation {
		return LinkedItemsField{}, errors.Newf("column %q has type %q, expected %q", cv.ID, cv.Type, columnTypeRelation)
	}

	items := make([]LinkedItem, 0, len(cv.LinkedItems))
	for _, link := range cv.LinkedItems {
		boardID, err := strconv.ParseInt(link.Board.ID, 10, 64)
		if err != nil {
			return LinkedItemsField{}, errors.Wrapf(err, "linked item %q carries non-numeric board id %q", link.ID, link.Board.ID)
		}
		items = append(items, LinkedItem{ID: link.ID, BoardID: boardID})
	}
	return LinkedItemsField{ColumnID: cv.ID, Items: items}, nil
}

// findColumn locates a column value by id within an item's column set
func findColumn(values []columnValue, columnID string) (columnValue, bool) {
	for _, cv := range values {
		if cv.ID == columnID {
			return cv, true
		}
	}
	return columnValue{}, false
}

// statusSettings is the JSON document carried in a status column's
// settings_str: a map from positional index (as a string key) to label.
type statusSettings struct {
	Labels map[string]string `json:"labels"`
}

// parseStatusLabels decodes a status column's settings_str into an
// index-to-label map, the basis of the startup schema check.
func parseStatusLabels(settings string) (map[int]string, error) {
	var parsed statusSettings
	if err := json.Unmarshal([]byte(settings), &parsed); err != nil {
		return nil, errors.Wrap(err, "failed to parse status column settings")
	}

	labels := make(map[int]string, len(parsed.Labels))
	for key, label := range parsed.Labels {
		index, err := strconv.Atoi(key)
		if err != nil {
			return nil, errors.Wrapf(err, "status settings carry non-numeric index %q", key)
		}
		labels[index] = label
	}
	return labels, nil
}

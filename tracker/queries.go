package tracker

import "encoding/json"

// GraphQL documents. Relation columns are always requested through the
// BoardRelationValue fragment: the service reports empty summary text for
// relation columns even when links exist, so only the expanded linked_items
// form is trustworthy.

// queryDependentItemsPage sweeps a board page by page. The returned cursor is
// null once the board is exhausted.
const queryDependentItemsPage = `
query DependentItemsPage($boardID: ID!, $pageSize: Int!, $cursor: String, $columnIDs: [String!]) {
  boards(ids: [$boardID]) {
    items_page(limit: $pageSize, cursor: $cursor) {
      cursor
      items {
        id
        name
        column_values(ids: $columnIDs) {
          id
          type
          text
          ... on StatusValue {
            label
            index
          }
          ... on BoardRelationValue {
            linked_items {
              id
              board {
                id
              }
            }
          }
        }
      }
    }
  }
}`

// queryItemsByID fetches specific items in one batched call
const queryItemsByID = `
query ItemsByID($itemIDs: [ID!]!, $columnIDs: [String!]) {
  items(ids: $itemIDs) {
    id
    name
    column_values(ids: $columnIDs) {
      id
      type
      text
      ... on StatusValue {
        label
        index
      }
      ... on BoardRelationValue {
        linked_items {
          id
          board {
            id
          }
        }
      }
    }
  }
}`

// mutationChangeColumnValue targets one item/board/column triple per call
const mutationChangeColumnValue = `
mutation ChangeColumnValue($boardID: ID!, $itemID: ID!, $columnID: String!, $value: JSON!) {
  change_column_value(board_id: $boardID, item_id: $itemID, column_id: $columnID, value: $value) {
    id
  }
}`

// queryColumnSettings fetches a column's settings document for the schema check
const queryColumnSettings = `
query ColumnSettings($boardID: ID!, $columnIDs: [String!]) {
  boards(ids: [$boardID]) {
    columns(ids: $columnIDs) {
      id
      type
      settings_str
    }
  }
}`

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors,omitempty"`
}

// itemWire is the wire form of one item with its requested columns
type itemWire struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	ColumnValues []columnValue `json:"column_values"`
}

type dependentItemsPageData struct {
	Boards []struct {
		ItemsPage struct {
			Cursor *string    `json:"cursor"`
			Items  []itemWire `json:"items"`
		} `json:"items_page"`
	} `json:"boards"`
}

type itemsData struct {
	Items []itemWire `json:"items"`
}

type changeColumnData struct {
	ChangeColumnValue struct {
		ID string `json:"id"`
	} `json:"change_column_value"`
}

type boardColumnsData struct {
	Boards []struct {
		Columns []struct {
			ID          string `json:"id"`
			Type        string `json:"type"`
			SettingsStr string `json:"settings_str"`
		} `json:"columns"`
	} `json:"boards"`
}

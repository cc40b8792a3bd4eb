package tracker

import (
	"context"

	"github.com/grainway/batchgate/errors"
)

// SchemaExpectations pins the (index, label) pairs the engine's mutations and
// readiness checks rely on. Status values are positional on the wire; if an
// operator reorders a column's labels, every configured index silently means
// something else. Verifying at startup turns that into a loud failure.
type SchemaExpectations struct {
	DependencyLabels map[int]string // on the dependency board's status column
	DependentLabels  map[int]string // on the dependent board's status column
}

// VerifySchema checks the live schema of both status columns against the
// configured expectations. Any mismatch is a configuration error: fatal at
// startup, before any run begins.
func (c *Client) VerifySchema(ctx context.Context, expect SchemaExpectations) error {
	if err := c.verifyColumn(ctx, c.boards.DependencyBoardID, c.boards.DependencyStatusColumn, expect.DependencyLabels); err != nil {
		return err
	}
	if err := c.verifyColumn(ctx, c.boards.DependentBoardID, c.boards.DependentStatusColumn, expect.DependentLabels); err != nil {
		return err
	}

	c.logger.Debugw("Board schema verified",
		"dependency_board", c.boards.DependencyBoardID,
		"dependent_board", c.boards.DependentBoardID)
	return nil
}

func (c *Client) verifyColumn(ctx context.Context, boardID int64, columnID string, expected map[int]string) error {
	if len(expected) == 0 {
		return nil
	}

	live, err := c.StatusLabels(ctx, boardID, columnID)
	if err != nil {
		return errors.Wrapf(err, "failed to fetch labels for board %d column %q", boardID, columnID)
	}

	for index, label := range expected {
		actual, ok := live[index]
		if !ok {
			return errors.NewConfigurationError(
				"board %d column %q has no label at index %d, expected %q; the column's label set has changed",
				boardID, columnID, index, label)
		}
		if actual != label {
			return errors.NewConfigurationError(
				"board %d column %q label at index %d is %q, expected %q; the column's label order has changed",
				boardID, columnID, index, actual, label)
		}
	}
	return nil
}

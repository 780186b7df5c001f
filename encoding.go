package nestedset

import "fmt"

// The three encoding primitives. Each one builds a single set-based UPDATE
// and returns the statement plus its bind parameters without executing it;
// the caller runs it inside its ambient transaction.

const shiftRightQuery = `UPDATE %s
 SET lft = CASE WHEN lft %s ? THEN lft + ? ELSE lft END,
     rgt = CASE WHEN rgt >= ? THEN rgt + ? ELSE rgt END
 WHERE rgt >= ? AND tree_id = ?`

// shiftRightSQL opens a hole of width delta to the right of pivot within one
// tree: rgt moves for every row with rgt >= pivot, lft moves when lft > pivot
// (or lft >= pivot with includePivot). A negative delta closes symmetrically.
func (ct *Tree) shiftRightSQL(treeID uint, pivot int, includePivot bool, delta int) (string, []any) {
	lftOp := ">"
	if includePivot {
		lftOp = ">="
	}
	sql := fmt.Sprintf(shiftRightQuery, ct.nodesTbl, lftOp)
	return sql, []any{pivot, delta, pivot, delta, pivot, treeID}
}

const shiftTreeIDsQuery = `UPDATE %s SET tree_id = tree_id + 1 WHERE tree_id >= ?`

// shiftTreeIDsSQL opens a hole at tree index fromTreeID by renumbering every
// tree at or right of it one up.
func (ct *Tree) shiftTreeIDsSQL(fromTreeID uint) (string, []any) {
	return fmt.Sprintf(shiftTreeIDsQuery, ct.nodesTbl), []any{fromTreeID}
}

const closeGapQuery = `UPDATE %s
 SET lft = CASE WHEN lft > ? THEN lft - ? ELSE lft END,
     rgt = CASE WHEN rgt > ? THEN rgt - ? ELSE rgt END
 WHERE (lft > ? OR rgt > ?) AND tree_id = ?`

// closeGapSQL closes a gap of width dropRgt-dropLft+1 starting at dropLft
// (Celko's trees book, page 62).
func (ct *Tree) closeGapSQL(dropLft, dropRgt int, treeID uint) (string, []any) {
	gap := dropRgt - dropLft + 1
	sql := fmt.Sprintf(closeGapQuery, ct.nodesTbl)
	return sql, []any{dropLft, gap, dropLft, gap, dropLft, dropLft, treeID}
}

const closeTreeGapQuery = `UPDATE %s SET tree_id = tree_id - 1 WHERE tree_id > ?`

// closeTreeGapSQL renumbers the trees right of treeID one down, keeping the
// tree indexes contiguous after a whole tree is removed.
func (ct *Tree) closeTreeGapSQL(treeID uint) (string, []any) {
	return fmt.Sprintf(closeTreeGapQuery, ct.nodesTbl), []any{treeID}
}

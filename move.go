package nestedset

import (
	"context"
	"fmt"
	"reflect"

	"gorm.io/gorm"
)

const relocateQuery = `UPDATE %s
 SET tree_id = ?,
     lft = lft + ?,
     rgt = rgt + ?,
     depth = depth + ?
 WHERE tree_id = ? AND lft BETWEEN ? AND ?`

// Move relocates a node and all its descendants to a new position relative to
// the target node. Moving a node into its own subtree fails with
// ErrInvalidMoveToDescendant before anything is written.
func (ct *Tree) Move(ctx context.Context, nodeID, targetID uint, pos Position) error {
	return ct.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		self, err := ct.ref(tx, nodeID)
		if err != nil {
			return err
		}
		target, err := ct.ref(tx, targetID)
		if err != nil {
			return err
		}
		return ct.move(ctx, tx, self, target, pos)
	})
}

//nolint:gocyclo // the position dispatch is one flat state machine
func (ct *Tree) move(ctx context.Context, tx *gorm.DB, self, target *nodeRef, pos Position) error {
	pos, err := ct.fixMovePos(pos)
	if err != nil {
		return err
	}

	// rewrite the child forms into sibling forms against a pivot
	var parent *nodeRef
	if pos == FirstChild || pos == LastChild || pos == SortedChild {
		if target.isLeaf() {
			parent = target
			pos = LastChild
		} else {
			target, err = ct.lastChildRef(tx, target)
			if err != nil {
				return err
			}
			switch pos {
			case FirstChild:
				pos = FirstSibling
			case LastChild:
				pos = LastSibling
			case SortedChild:
				pos = SortedSibling
			}
		}
	}

	if target.isDescendantOf(self) || (parent != nil && parent.NodeId == self.NodeId) {
		return ErrInvalidMoveToDescendant
	}

	// special cases that would not actually move the node
	if self.NodeId == target.NodeId {
		switch pos {
		case Left:
			return nil
		case Right, LastSibling:
			siblings, err := ct.siblingRefs(tx, target)
			if err != nil {
				return err
			}
			if siblings[len(siblings)-1].NodeId == target.NodeId {
				return nil
			}
		case FirstSibling:
			siblings, err := ct.siblingRefs(tx, target)
			if err != nil {
				return err
			}
			if siblings[0].NodeId == target.NodeId {
				return nil
			}
		}
	}

	if pos == SortedSibling {
		// the moved node's own payload decides where it sorts
		itemPtr := reflect.New(ct.itemType).Interface()
		if err := tx.Table(ct.nodesTbl).Where("node_id = ?", self.NodeId).Take(itemPtr).Error; err != nil {
			return err
		}
		keys, err := ct.sortKeyValues(ctx, itemPtr)
		if err != nil {
			return err
		}
		sib, err := ct.sortedPosTarget(tx, target, keys)
		if err != nil {
			return err
		}
		if sib != nil {
			pos = Left
			target = sib
		} else {
			pos = LastSibling
		}
	}
	if pos == Left || pos == Right || pos == FirstSibling {
		pos, target, err = ct.normalizeSiblingPos(tx, pos, target)
		if err != nil {
			return err
		}
	}

	gap := self.Rgt - self.Lft + 1
	targetTree := target.TreeId
	var newpos int
	var stmt string
	var params []any

	// first make a hole wide enough for the whole subtree
	switch {
	case pos == LastChild:
		newpos = parent.Rgt
		stmt, params = ct.shiftRightSQL(target.TreeId, newpos, false, gap)
	case target.isRoot():
		newpos = 1
		switch pos {
		case LastSibling:
			last, err := ct.lastRootRef(tx)
			if err != nil {
				return err
			}
			targetTree = last.TreeId + 1
		case FirstSibling:
			targetTree = 1
			stmt, params = ct.shiftTreeIDsSQL(1)
		case Left:
			stmt, params = ct.shiftTreeIDsSQL(target.TreeId)
		}
	default:
		switch pos {
		case LastSibling:
			p, err := ct.parentOf(tx, target)
			if err != nil {
				return err
			}
			newpos = p.Rgt
			stmt, params = ct.shiftRightSQL(target.TreeId, newpos, false, gap)
		case FirstSibling:
			newpos = target.Lft
			stmt, params = ct.shiftRightSQL(target.TreeId, newpos-1, false, gap)
		case Left:
			newpos = target.Lft
			stmt, params = ct.shiftRightSQL(target.TreeId, newpos, true, gap)
		}
	}
	if stmt != "" {
		if err := tx.Exec(stmt, params...).Error; err != nil {
			return err
		}
	}

	// reload self, the hole may have shifted its own interval
	from, err := ct.ref(tx, self.NodeId)
	if err != nil {
		return err
	}

	depthDiff := target.Depth - from.Depth
	if parent != nil {
		// descending into the leaf pivot
		depthDiff++
	}
	jump := newpos - from.Lft

	// move the subtree into the hole
	relocate := fmt.Sprintf(relocateQuery, ct.nodesTbl)
	err = tx.Exec(relocate, targetTree, jump, jump, depthDiff, from.TreeId, from.Lft, from.Rgt).Error
	if err != nil {
		return err
	}

	// close the gap the subtree left behind
	stmt, params = ct.closeGapSQL(from.Lft, from.Rgt, from.TreeId)
	if err := tx.Exec(stmt, params...).Error; err != nil {
		return err
	}

	self.invalidateParent()
	return nil
}

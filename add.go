package nestedset

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// AddRoot adds a root node to the forest. Without an order key the new root
// becomes the last tree; with one it is inserted as a sorted sibling of the
// existing roots. If item is a pointer its embedded Node is updated with the
// assigned id and interval.
func (ct *Tree) AddRoot(ctx context.Context, item any) error {
	if !hasNode(item) {
		return ErrItemIsNotTreeNode
	}
	return ct.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := ct.addRoot(ctx, tx, item, 0)
		return err
	})
}

// AddChild adds a new entry under the given parent.
func (ct *Tree) AddChild(ctx context.Context, parentID uint, item any) error {
	if !hasNode(item) {
		return ErrItemIsNotTreeNode
	}
	return ct.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		parent, err := ct.ref(tx, parentID)
		if err != nil {
			if errors.Is(err, ErrNodeNotFound) {
				return ErrParentNotFound
			}
			return err
		}
		_, err = ct.addChild(ctx, tx, parent, item, 0)
		return err
	})
}

// AddSibling adds a new entry next to the given pivot node, at the requested
// position. The empty position defaults to last-sibling, or sorted-sibling
// when an order key is configured.
func (ct *Tree) AddSibling(ctx context.Context, pivotID uint, pos Position, item any) error {
	if !hasNode(item) {
		return ErrItemIsNotTreeNode
	}
	return ct.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pivot, err := ct.ref(tx, pivotID)
		if err != nil {
			return err
		}
		_, err = ct.addSibling(ctx, tx, pivot, pos, item, 0)
		return err
	})
}

func (ct *Tree) addRoot(ctx context.Context, tx *gorm.DB, item any, forceID uint) (uint, error) {
	last, err := ct.lastRootRef(tx)
	if err != nil {
		return 0, err
	}
	if last != nil && len(ct.orderBy) > 0 {
		// there are root nodes and an order key is set,
		// delegate sorted insertion to addSibling
		return ct.addSibling(ctx, tx, last, SortedSibling, item, forceID)
	}

	newTree := uint(1)
	if last != nil {
		// adding the new root node as the last tree
		newTree = last.TreeId + 1
	}
	return ct.createNode(tx, item, Node{NodeId: forceID, TreeId: newTree, Lft: 1, Rgt: 2, Depth: 1})
}

func (ct *Tree) addChild(ctx context.Context, tx *gorm.DB, parent *nodeRef, item any, forceID uint) (uint, error) {
	if !parent.isLeaf() {
		// there are child nodes, delegate insertion to addSibling
		pos := LastSibling
		if len(ct.orderBy) > 0 {
			pos = SortedSibling
		}
		lastChild, err := ct.lastChildRef(tx, parent)
		if err != nil {
			return 0, err
		}
		return ct.addSibling(ctx, tx, lastChild, pos, item, forceID)
	}

	// we're adding the first child of this node: open a width-2 hole just
	// inside the parent's right bound
	stmt, params := ct.shiftRightSQL(parent.TreeId, parent.Rgt, false, 2)
	if err := tx.Exec(stmt, params...).Error; err != nil {
		return 0, err
	}

	id, err := ct.createNode(tx, item, Node{
		NodeId: forceID,
		TreeId: parent.TreeId,
		Lft:    parent.Lft + 1,
		Rgt:    parent.Lft + 2,
		Depth:  parent.Depth + 1,
	})
	if err != nil {
		return 0, err
	}
	// keep the in-memory copy of the parent in sync with the hole
	parent.Rgt += 2
	return id, nil
}

func (ct *Tree) addSibling(ctx context.Context, tx *gorm.DB, target *nodeRef, pos Position, item any, forceID uint) (uint, error) {
	pos, err := ct.fixSiblingPos(pos)
	if err != nil {
		return 0, err
	}

	if target.isRoot() {
		if pos == SortedSibling {
			keys, err := ct.sortKeyValues(ctx, item)
			if err != nil {
				return 0, err
			}
			sib, err := ct.sortedPosTarget(tx, target, keys)
			if err != nil {
				return 0, err
			}
			if sib != nil {
				pos = Left
				target = sib
			} else {
				pos = LastSibling
			}
		}

		last, err := ct.lastRootRef(tx)
		if err != nil {
			return 0, err
		}

		var newTree uint
		if pos == LastSibling || (pos == Right && target.NodeId == last.NodeId) {
			newTree = last.TreeId + 1
		} else {
			switch pos {
			case FirstSibling:
				newTree = 1
			case Left:
				newTree = target.TreeId
			case Right:
				newTree = target.TreeId + 1
			}
			stmt, params := ct.shiftTreeIDsSQL(newTree)
			if err := tx.Exec(stmt, params...).Error; err != nil {
				return 0, err
			}
		}
		return ct.createNode(tx, item, Node{NodeId: forceID, TreeId: newTree, Lft: 1, Rgt: 2, Depth: target.Depth})
	}

	if pos == SortedSibling {
		keys, err := ct.sortKeyValues(ctx, item)
		if err != nil {
			return 0, err
		}
		sib, err := ct.sortedPosTarget(tx, target, keys)
		if err != nil {
			return 0, err
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
			return 0, err
		}
	}

	var newpos int
	var stmt string
	var params []any
	switch pos {
	case LastSibling:
		parent, err := ct.parentOf(tx, target)
		if err != nil {
			return 0, err
		}
		newpos = parent.Rgt
		stmt, params = ct.shiftRightSQL(target.TreeId, newpos, false, 2)
	case FirstSibling:
		newpos = target.Lft
		stmt, params = ct.shiftRightSQL(target.TreeId, newpos-1, false, 2)
	case Left:
		newpos = target.Lft
		stmt, params = ct.shiftRightSQL(target.TreeId, newpos, true, 2)
	default:
		return 0, fmt.Errorf("unreachable sibling position %q", pos)
	}
	if err := tx.Exec(stmt, params...).Error; err != nil {
		return 0, err
	}

	return ct.createNode(tx, item, Node{
		NodeId: forceID,
		TreeId: target.TreeId,
		Lft:    newpos,
		Rgt:    newpos + 1,
		Depth:  target.Depth,
	})
}

// createNode inserts the payload row with the given encoding values and
// copies the stored Node back into the caller's item when it is a pointer.
func (ct *Tree) createNode(tx *gorm.DB, item any, meta Node) (uint, error) {
	reflectItem, err := cloneWithNode(item, meta)
	if err != nil {
		return 0, err
	}
	if err := tx.Table(ct.nodesTbl).Create(reflectItem).Error; err != nil {
		return 0, fmt.Errorf("unable to add node: %v", err)
	}

	created, err := nodeMeta(reflectItem)
	if err != nil {
		return 0, err
	}
	if err := copyNodeBack(item, created); err != nil {
		return 0, err
	}
	return created.NodeId, nil
}

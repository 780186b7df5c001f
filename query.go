package nestedset

import (
	"context"
	"errors"
	"reflect"

	"gorm.io/gorm"
)

// The read surface. Every operation is a single predicate over
// (tree_id, lft, rgt, depth); results come back in (tree_id, lft) order,
// the canonical DFS preorder. Destinations are pointers to slices of the
// payload type.

func (ct *Tree) orderedQuery(ctx context.Context) *gorm.DB {
	return ct.db.WithContext(ctx).Table(ct.nodesTbl).Order("tree_id, lft")
}

func validateItemsSlice(items any) error {
	if items == nil {
		return errors.New("items cannot be nil")
	}
	itemsVal := reflect.ValueOf(items)
	if itemsVal.Kind() != reflect.Ptr {
		return errors.New("items must be a pointer to a slice")
	}
	if itemsVal.Elem().Kind() != reflect.Slice {
		return errors.New("items must point to a slice")
	}
	return nil
}

// Roots loads all root nodes, one per tree, ordered by tree id.
func (ct *Tree) Roots(ctx context.Context, items any) error {
	if err := validateItemsSlice(items); err != nil {
		return err
	}
	return ct.orderedQuery(ctx).Where("lft = 1").Find(items).Error
}

// GetTree loads a subtree including its top node in DFS order; with
// parentID 0 the entire forest is returned.
func (ct *Tree) GetTree(ctx context.Context, parentID uint, items any) error {
	if err := validateItemsSlice(items); err != nil {
		return err
	}
	q := ct.orderedQuery(ctx)
	if parentID != 0 {
		ref, err := ct.ref(ct.db.WithContext(ctx), parentID)
		if err != nil {
			return err
		}
		if ref.isLeaf() {
			q = q.Where("node_id = ?", ref.NodeId)
		} else {
			q = q.Where("tree_id = ? AND lft BETWEEN ? AND ?", ref.TreeId, ref.Lft, ref.Rgt-1)
		}
	}
	return q.Find(items).Error
}

// Descendants loads the subtree below a node, not including the node itself.
func (ct *Tree) Descendants(ctx context.Context, nodeID uint, items any) error {
	if err := validateItemsSlice(items); err != nil {
		return err
	}
	ref, err := ct.ref(ct.db.WithContext(ctx), nodeID)
	if err != nil {
		return err
	}
	return ct.orderedQuery(ctx).
		Where("tree_id = ? AND lft > ? AND rgt < ?", ref.TreeId, ref.Lft, ref.Rgt).
		Find(items).Error
}

// Ancestors loads the chain above a node, starting at the root and descending
// to the parent. Empty for roots.
func (ct *Tree) Ancestors(ctx context.Context, nodeID uint, items any) error {
	if err := validateItemsSlice(items); err != nil {
		return err
	}
	ref, err := ct.ref(ct.db.WithContext(ctx), nodeID)
	if err != nil {
		return err
	}
	return ct.orderedQuery(ctx).
		Where("tree_id = ? AND lft < ? AND rgt > ?", ref.TreeId, ref.Lft, ref.Rgt).
		Find(items).Error
}

// Children loads the direct children of a node.
func (ct *Tree) Children(ctx context.Context, nodeID uint, items any) error {
	if err := validateItemsSlice(items); err != nil {
		return err
	}
	ref, err := ct.ref(ct.db.WithContext(ctx), nodeID)
	if err != nil {
		return err
	}
	return ct.orderedQuery(ctx).
		Where("tree_id = ? AND lft > ? AND rgt < ? AND depth = ?",
			ref.TreeId, ref.Lft, ref.Rgt, ref.Depth+1).
		Find(items).Error
}

// Siblings loads the node's siblings including the node itself. For a root
// these are all the root nodes.
func (ct *Tree) Siblings(ctx context.Context, nodeID uint, items any) error {
	if err := validateItemsSlice(items); err != nil {
		return err
	}
	db := ct.db.WithContext(ctx)
	ref, err := ct.ref(db, nodeID)
	if err != nil {
		return err
	}
	if ref.isRoot() {
		return ct.Roots(ctx, items)
	}
	p, err := ct.parentOf(db, ref)
	if err != nil {
		return err
	}
	return ct.orderedQuery(ctx).
		Where("tree_id = ? AND lft > ? AND rgt < ? AND depth = ?",
			p.TreeId, p.Lft, p.Rgt, ref.Depth).
		Find(items).Error
}

// Parent loads the parent of a node into item; it returns false without
// touching item when the node is a root.
func (ct *Tree) Parent(ctx context.Context, nodeID uint, item any) (bool, error) {
	db := ct.db.WithContext(ctx)
	ref, err := ct.ref(db, nodeID)
	if err != nil {
		return false, err
	}
	if ref.isRoot() {
		return false, nil
	}
	p, err := ct.parentOf(db, ref)
	if err != nil {
		return false, err
	}
	return true, ct.GetNode(ctx, p.NodeId, item)
}

// Root loads the root of the node's tree.
func (ct *Tree) Root(ctx context.Context, nodeID uint, item any) error {
	db := ct.db.WithContext(ctx)
	ref, err := ct.ref(db, nodeID)
	if err != nil {
		return err
	}
	if ref.isRoot() {
		return ct.GetNode(ctx, ref.NodeId, item)
	}
	err = db.Table(ct.nodesTbl).
		Where("tree_id = ? AND lft = 1", ref.TreeId).
		Take(item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNodeNotFound
	}
	return err
}

// IsDescendantOf reports whether nodeID lives in the subtree below
// ancestorID, by strict interval containment within one tree.
func (ct *Tree) IsDescendantOf(ctx context.Context, nodeID, ancestorID uint) (bool, error) {
	db := ct.db.WithContext(ctx)
	ref, err := ct.ref(db, nodeID)
	if err != nil {
		return false, err
	}
	anc, err := ct.ref(db, ancestorID)
	if err != nil {
		return false, err
	}
	return ref.isDescendantOf(anc), nil
}

// DescendantCount returns the subtree size below a node, computed from the
// interval width alone.
func (ct *Tree) DescendantCount(ctx context.Context, nodeID uint) (int, error) {
	ref, err := ct.ref(ct.db.WithContext(ctx), nodeID)
	if err != nil {
		return 0, err
	}
	return (ref.Rgt - ref.Lft - 1) / 2, nil
}

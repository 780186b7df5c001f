package nestedset

import (
	"errors"

	"gorm.io/gorm"
)

// nodeRef is the in-memory encoding view of a row: just the five encoding
// columns, detached from the user payload. All tree algebra runs on refs.
type nodeRef struct {
	NodeId uint
	TreeId uint
	Lft    int
	Rgt    int
	Depth  int

	// memoized by parentOf, see invalidateParent
	parent *nodeRef
}

func (r *nodeRef) isRoot() bool {
	return r.Lft == 1
}

func (r *nodeRef) isLeaf() bool {
	return r.Rgt-r.Lft == 1
}

// isDescendantOf is the same-tree strict interval containment check.
func (r *nodeRef) isDescendantOf(other *nodeRef) bool {
	return r.TreeId == other.TreeId && r.Lft > other.Lft && r.Rgt < other.Rgt
}

func (r *nodeRef) invalidateParent() {
	r.parent = nil
}

const refColumns = "node_id, tree_id, lft, rgt, depth"

// ref loads the encoding view of a single row.
func (ct *Tree) ref(tx *gorm.DB, id uint) (*nodeRef, error) {
	var ref nodeRef
	err := tx.Table(ct.nodesTbl).Select(refColumns).
		Where("node_id = ?", id).
		Take(&ref).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNodeNotFound
		}
		return nil, err
	}
	return &ref, nil
}

// parentOf returns the most direct ancestor, nil for roots.
// The result is memoized on the ref to help in loops.
func (ct *Tree) parentOf(tx *gorm.DB, ref *nodeRef) (*nodeRef, error) {
	if ref.isRoot() {
		return nil, nil
	}
	if ref.parent != nil {
		return ref.parent, nil
	}

	var p nodeRef
	err := tx.Table(ct.nodesTbl).Select(refColumns).
		Where("tree_id = ? AND lft < ? AND rgt > ?", ref.TreeId, ref.Lft, ref.Rgt).
		Order("lft DESC").
		Take(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNodeNotFound
		}
		return nil, err
	}
	ref.parent = &p
	return ref.parent, nil
}

// lastRootRef returns the root with the highest tree id, nil on an empty table.
func (ct *Tree) lastRootRef(tx *gorm.DB) (*nodeRef, error) {
	var refs []nodeRef
	err := tx.Table(ct.nodesTbl).Select(refColumns).
		Where("lft = 1").
		Order("tree_id DESC").
		Limit(1).
		Find(&refs).Error
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, nil
	}
	return &refs[0], nil
}

// lastChildRef returns the rightmost child of parent, nil for leaves.
func (ct *Tree) lastChildRef(tx *gorm.DB, parent *nodeRef) (*nodeRef, error) {
	var refs []nodeRef
	err := tx.Table(ct.nodesTbl).Select(refColumns).
		Where("tree_id = ? AND lft > ? AND rgt < ? AND depth = ?",
			parent.TreeId, parent.Lft, parent.Rgt, parent.Depth+1).
		Order("lft DESC").
		Limit(1).
		Find(&refs).Error
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, nil
	}
	refs[0].parent = parent
	return &refs[0], nil
}

// siblingRefs returns the node's siblings including the node itself, in
// (tree_id, lft) order. For roots this is the list of all root nodes.
func (ct *Tree) siblingRefs(tx *gorm.DB, ref *nodeRef) ([]nodeRef, error) {
	var refs []nodeRef
	if ref.isRoot() {
		err := tx.Table(ct.nodesTbl).Select(refColumns).
			Where("lft = 1").
			Order("tree_id").
			Find(&refs).Error
		return refs, err
	}

	p, err := ct.parentOf(tx, ref)
	if err != nil {
		return nil, err
	}
	err = tx.Table(ct.nodesTbl).Select(refColumns).
		Where("tree_id = ? AND lft > ? AND rgt < ? AND depth = ?",
			p.TreeId, p.Lft, p.Rgt, ref.Depth).
		Order("lft").
		Find(&refs).Error
	return refs, err
}

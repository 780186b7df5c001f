package nestedset

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"
)

// nodeRange is a (tree_id, lft, rgt) interval scheduled for removal.
type nodeRange struct {
	treeID uint
	lft    int
	rgt    int
}

const deleteRangeQuery = `DELETE FROM %s WHERE tree_id = ? AND lft BETWEEN ? AND ?`

// Delete removes the given nodes and all their descendants, keeping the
// encoding consistent: no orphans, no holes in the numeric space. Ids whose
// ancestors are also listed are redundant and get folded into the ancestor's
// range.
func (ct *Tree) Delete(ctx context.Context, ids ...uint) error {
	if len(ids) == 0 {
		return nil
	}
	return ct.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		refs := make([]*nodeRef, 0, len(ids))
		for _, id := range ids {
			ref, err := ct.ref(tx, id)
			if err != nil {
				return err
			}
			refs = append(refs, ref)
		}
		sort.Slice(refs, func(i, j int) bool {
			if refs[i].TreeId != refs[j].TreeId {
				return refs[i].TreeId < refs[j].TreeId
			}
			return refs[i].Lft < refs[j].Lft
		})

		// minimal cover: in (tree_id, lft) order an ancestor always comes
		// before its descendants, so a node is dropped when an accumulated
		// node already contains it
		var cover []*nodeRef
		for _, ref := range refs {
			covered := false
			for _, kept := range cover {
				if ref.NodeId == kept.NodeId || ref.isDescendantOf(kept) {
					covered = true
					break
				}
			}
			if !covered {
				cover = append(cover, ref)
			}
		}

		ranges := make([]nodeRange, 0, len(cover))
		for _, ref := range cover {
			ranges = append(ranges, nodeRange{treeID: ref.TreeId, lft: ref.Lft, rgt: ref.Rgt})
		}
		return ct.deleteRanges(tx, ranges)
	})
}

// deleteRanges is the hot path: it removes the rows of every range, then
// closes the gaps in descending (tree_id, lft, rgt) order. Closing a lower
// gap first would shift the upper bounds and invalidate the stored ranges.
func (ct *Tree) deleteRanges(tx *gorm.DB, ranges []nodeRange) error {
	for _, r := range ranges {
		delSQL := fmt.Sprintf(deleteRangeQuery, ct.nodesTbl)
		if err := tx.Exec(delSQL, r.treeID, r.lft, r.rgt).Error; err != nil {
			return err
		}
	}

	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].treeID != ranges[j].treeID {
			return ranges[i].treeID > ranges[j].treeID
		}
		if ranges[i].lft != ranges[j].lft {
			return ranges[i].lft > ranges[j].lft
		}
		return ranges[i].rgt > ranges[j].rgt
	})
	for _, r := range ranges {
		stmt, params := ct.closeGapSQL(r.lft, r.rgt, r.treeID)
		if err := tx.Exec(stmt, params...).Error; err != nil {
			return err
		}
		if r.lft == 1 {
			// the range was a whole tree, keep the tree indexes contiguous
			stmt, params = ct.closeTreeGapSQL(r.treeID)
			if err := tx.Exec(stmt, params...).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

package nestedset

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"gorm.io/gorm"
)

// Position tells a mutation where the new or moved node lands relative to a
// pivot node. The child forms are only meaningful for Move; AddSibling takes
// the sibling forms. The zero value resolves to the last (or sorted, when an
// order key is configured) position.
type Position string

const (
	FirstChild    Position = "first-child"
	LastChild     Position = "last-child"
	SortedChild   Position = "sorted-child"
	FirstSibling  Position = "first-sibling"
	LastSibling   Position = "last-sibling"
	Left          Position = "left"
	Right         Position = "right"
	SortedSibling Position = "sorted-sibling"
)

// fixSiblingPos applies the default and validates a sibling-form position.
// With an order key configured only sorted-sibling is accepted, anything else
// would silently break the sort invariant.
func (ct *Tree) fixSiblingPos(pos Position) (Position, error) {
	if pos == "" {
		if len(ct.orderBy) > 0 {
			return SortedSibling, nil
		}
		return LastSibling, nil
	}
	switch pos {
	case FirstSibling, LastSibling, SortedSibling, Left, Right:
	default:
		return "", ErrInvalidPosition
	}
	if len(ct.orderBy) > 0 && pos != SortedSibling {
		return "", ErrInvalidPosition
	}
	return pos, nil
}

// fixMovePos applies the default and validates a Move position, which may
// also be one of the child forms.
func (ct *Tree) fixMovePos(pos Position) (Position, error) {
	if pos == "" {
		if len(ct.orderBy) > 0 {
			return SortedSibling, nil
		}
		return LastSibling, nil
	}
	switch pos {
	case FirstChild, LastChild, SortedChild, FirstSibling, LastSibling, SortedSibling, Left, Right:
	default:
		return "", ErrInvalidPosition
	}
	if len(ct.orderBy) > 0 && pos != SortedSibling && pos != SortedChild {
		return "", ErrInvalidPosition
	}
	return pos, nil
}

// normalizeSiblingPos rewrites left/right/first-sibling against the pivot's
// sibling list: right of the last sibling is last-sibling, otherwise right
// becomes left against the next sibling; left of the first sibling is
// first-sibling; first-sibling repoints the pivot to the first sibling.
func (ct *Tree) normalizeSiblingPos(tx *gorm.DB, pos Position, target *nodeRef) (Position, *nodeRef, error) {
	siblings, err := ct.siblingRefs(tx, target)
	if err != nil {
		return "", nil, err
	}
	if len(siblings) == 0 {
		return "", nil, ErrNodeNotFound
	}

	if pos == Right {
		if siblings[len(siblings)-1].NodeId == target.NodeId {
			pos = LastSibling
		} else {
			pos = Left
			for i := range siblings {
				if siblings[i].NodeId == target.NodeId {
					target = &siblings[i+1]
					break
				}
			}
		}
	}
	if pos == Left && siblings[0].NodeId == target.NodeId {
		pos = FirstSibling
	}
	if pos == FirstSibling {
		target = &siblings[0]
	}
	return pos, target, nil
}

// sortKeyValues extracts the configured order columns from an item.
func (ct *Tree) sortKeyValues(ctx context.Context, item any) ([]any, error) {
	rv := reflect.ValueOf(item)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	vals := make([]any, 0, len(ct.orderBy))
	for _, col := range ct.orderBy {
		field := ct.schema.LookUpField(col)
		if field == nil {
			return nil, fmt.Errorf("order column %q not found in %s", col, ct.nodesTbl)
		}
		v, _ := field.ValueOf(ctx, rv)
		vals = append(vals, v)
	}
	return vals, nil
}

// sortKeyCondition builds the lexicographic "tuple not less than vals"
// predicate over the order columns.
func sortKeyCondition(columns []string, vals []any) (string, []any) {
	var clauses []string
	var args []any
	for i, col := range columns {
		var parts []string
		for j := 0; j < i; j++ {
			parts = append(parts, columns[j]+" = ?")
			args = append(args, vals[j])
		}
		op := " > ?"
		if i == len(columns)-1 {
			op = " >= ?"
		}
		parts = append(parts, col+op)
		args = append(args, vals[i])
		clauses = append(clauses, "("+strings.Join(parts, " AND ")+")")
	}
	return strings.Join(clauses, " OR "), args
}

// sortedPosTarget returns the first sibling of target whose order key tuple
// is not less than keys, nil if every sibling sorts before the new values.
// The caller turns a non-nil result into a left insertion against it.
func (ct *Tree) sortedPosTarget(tx *gorm.DB, target *nodeRef, keys []any) (*nodeRef, error) {
	q := tx.Table(ct.nodesTbl).Select(refColumns)
	if target.isRoot() {
		q = q.Where("lft = 1")
	} else {
		p, err := ct.parentOf(tx, target)
		if err != nil {
			return nil, err
		}
		q = q.Where("tree_id = ? AND lft > ? AND rgt < ? AND depth = ?",
			p.TreeId, p.Lft, p.Rgt, target.Depth)
	}
	cond, args := sortKeyCondition(ct.orderBy, keys)
	q = q.Where(cond, args...)

	var refs []nodeRef
	err := q.Order("tree_id, lft").Limit(1).Find(&refs).Error
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, nil
	}
	return &refs[0], nil
}

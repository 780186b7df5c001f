package nestedset

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"gorm.io/gorm"
)

// Record is the bulk interchange shape of one node: the payload columns in
// Data, the subtree in Children (absent for leaves) and, when ids are kept,
// the primary key in Id. The encoding columns never appear in Data.
type Record struct {
	Data     map[string]any `json:"data"`
	Children []*Record      `json:"children,omitempty"`
	Id       any            `json:"id,omitempty"`
}

func (ct *Tree) pkColumn() string {
	return ct.schema.PrioritizedPrimaryField.DBName
}

func (ct *Tree) isEncodingColumn(col string) bool {
	switch col {
	case ct.pkColumn(), "tree_id", "lft", "rgt", "depth":
		return true
	}
	return false
}

// DumpBulk serializes a subtree, or with parentID 0 the full forest, into a
// nested record structure in DFS order.
func (ct *Tree) DumpBulk(ctx context.Context, parentID uint, keepIDs bool) ([]*Record, error) {
	q := ct.db.WithContext(ctx).Table(ct.nodesTbl).Order("tree_id, lft")
	if parentID != 0 {
		ref, err := ct.ref(ct.db.WithContext(ctx), parentID)
		if err != nil {
			return nil, err
		}
		if ref.isLeaf() {
			q = q.Where("node_id = ?", ref.NodeId)
		} else {
			q = q.Where("tree_id = ? AND lft BETWEEN ? AND ?", ref.TreeId, ref.Lft, ref.Rgt-1)
		}
	}

	var rows []map[string]any
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	// walk the rows in DFS order keeping a stack of the open intervals, so
	// every node appends itself to its parent's children in one pass
	var ret []*Record
	var stack []nodeRef
	lnk := make(map[uint]*Record)

	for _, row := range rows {
		ref := nodeRef{
			NodeId: asUint(row[ct.pkColumn()]),
			TreeId: asUint(row["tree_id"]),
			Lft:    asInt(row["lft"]),
			Rgt:    asInt(row["rgt"]),
			Depth:  asInt(row["depth"]),
		}

		data := make(map[string]any, len(row))
		for col, val := range row {
			if ct.isEncodingColumn(col) {
				continue
			}
			// some drivers hand text columns back as raw bytes
			if b, ok := val.([]byte); ok {
				val = string(b)
			}
			data[col] = val
		}
		rec := &Record{Data: data}
		if keepIDs {
			rec.Id = row[ct.pkColumn()]
		}

		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if top.TreeId == ref.TreeId && top.Lft < ref.Lft && ref.Rgt < top.Rgt {
				break
			}
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			ret = append(ret, rec)
		} else {
			par := lnk[stack[len(stack)-1].NodeId]
			par.Children = append(par.Children, rec)
		}
		lnk[ref.NodeId] = rec
		stack = append(stack, ref)
	}
	return ret, nil
}

// LoadBulk reconstructs a record structure by iterative preorder insertion
// under the given parent (0 for the forest top level) and returns the created
// ids in insertion order. With keepIDs the records' ids are stored verbatim.
func (ct *Tree) LoadBulk(ctx context.Context, data []*Record, parentID uint, keepIDs bool) ([]uint, error) {
	if err := validateRecords(data, keepIDs); err != nil {
		return nil, err
	}

	var added []uint
	err := ct.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		type frame struct {
			parentID uint
			rec      *Record
		}
		// seed the stack in reverse so that pop order is source order
		stack := make([]frame, 0, len(data))
		for i := len(data) - 1; i >= 0; i-- {
			stack = append(stack, frame{parentID: parentID, rec: data[i]})
		}

		for len(stack) > 0 {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			item, err := ct.itemFromRecord(f.rec)
			if err != nil {
				return err
			}
			var forceID uint
			if keepIDs {
				forceID = asUint(f.rec.Id)
			}

			var id uint
			if f.parentID != 0 {
				// the parent row changes as its children are inserted,
				// reload it every time
				parent, err := ct.ref(tx, f.parentID)
				if err != nil {
					if errors.Is(err, ErrNodeNotFound) {
						return ErrParentNotFound
					}
					return err
				}
				id, err = ct.addChild(ctx, tx, parent, item, forceID)
				if err != nil {
					return err
				}
			} else {
				id, err = ct.addRoot(ctx, tx, item, forceID)
				if err != nil {
					return err
				}
			}
			added = append(added, id)

			for i := len(f.rec.Children) - 1; i >= 0; i-- {
				stack = append(stack, frame{parentID: id, rec: f.rec.Children[i]})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// validateRecords rejects malformed structures before the first write.
func validateRecords(data []*Record, keepIDs bool) error {
	for _, rec := range data {
		if rec == nil || rec.Data == nil {
			return fmt.Errorf("%w: missing data", ErrMalformedRecord)
		}
		if keepIDs && asUint(rec.Id) == 0 {
			return fmt.Errorf("%w: missing id", ErrMalformedRecord)
		}
		if err := validateRecords(rec.Children, keepIDs); err != nil {
			return err
		}
	}
	return nil
}

// itemFromRecord builds a payload item from a record's data map. An id column
// inside the data is ignored, ids only travel in the record's Id field.
func (ct *Tree) itemFromRecord(rec *Record) (any, error) {
	itemPtr := reflect.New(ct.itemType)
	elem := itemPtr.Elem()

	for col, val := range rec.Data {
		if ct.isEncodingColumn(col) {
			continue
		}
		fieldName, ok := ct.col2FieldMap[col]
		if !ok {
			return nil, fmt.Errorf("%w: unknown column %q", ErrMalformedRecord, col)
		}
		if val == nil {
			continue
		}

		fieldVal := elem.FieldByName(fieldName)
		if !fieldVal.IsValid() || !fieldVal.CanSet() {
			continue
		}
		v := reflect.ValueOf(val)
		switch {
		case v.Type().AssignableTo(fieldVal.Type()):
			fieldVal.Set(v)
		case v.Type().ConvertibleTo(fieldVal.Type()):
			fieldVal.Set(v.Convert(fieldVal.Type()))
		default:
			return nil, fmt.Errorf("%w: cannot assign type %s to field %s", ErrMalformedRecord, v.Type(), fieldName)
		}
	}
	return itemPtr.Interface(), nil
}

// asInt widens the numeric types the SQL drivers hand back.
func asInt(v any) int {
	switch n := v.(type) {
	case uint:
		return int(n)
	case uint32:
		return int(n)
	case uint64:
		return int(n)
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func asUint(v any) uint {
	return uint(asInt(v))
}

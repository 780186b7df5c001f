package nestedset

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"gorm.io/gorm"
)

// Leave is an embeddable ID for payload rows that hang off tree nodes without
// being part of the encoding, this is mandatory if you want to use leaves
// functionality.
type Leave struct {
	LeaveId uint `gorm:"AUTO_INCREMENT;PRIMARY_KEY;not null"`
}

func (n *Leave) Id() uint {
	return n.LeaveId
}

var ErrItemIsNotTreeLeave = errors.New("the item does not embed Leave")

// isLeaveSlice uses reflection to verify if the passed item is a pointer to a
// slice of structs that embed Leave and carry a gorm many2many relation.
// returns an error for every condition checked, returns nil if the passed item is as expected
func isLeaveSlice(item any) error {
	if item == nil {
		return fmt.Errorf("item is nil")
	}

	itemType := reflect.TypeOf(item)
	if itemType.Kind() != reflect.Ptr {
		return fmt.Errorf("item is not a pointer")
	}

	sliceType := itemType.Elem()
	if sliceType.Kind() != reflect.Slice {
		return fmt.Errorf("item is not slice")
	}

	elemType := sliceType.Elem()
	if elemType.Kind() != reflect.Struct {
		return fmt.Errorf("item is not a slice of structs")
	}

	hasLeave := false
	hasManyToMany := false
	for i := 0; i < elemType.NumField(); i++ {
		field := elemType.Field(i)
		if field.Anonymous && field.Type == reflect.TypeOf(Leave{}) {
			hasLeave = true
		}
		if field.Type.Kind() == reflect.Slice {
			if strings.Contains(field.Tag.Get("gorm"), "many2many:") {
				hasManyToMany = true
			}
		}
	}

	if !hasLeave {
		return ErrItemIsNotTreeLeave
	}
	if !hasManyToMany {
		return fmt.Errorf("item struct does not contain a many2many gorm tag")
	}
	return nil
}

func getGormM2MTblName(item any) (string, string, error) {
	if item == nil {
		return "", "", fmt.Errorf("item is nil")
	}

	itemType := reflect.TypeOf(item)
	sliceType := itemType.Elem()
	elemType := sliceType.Elem()

	for i := 0; i < elemType.NumField(); i++ {
		field := elemType.Field(i)
		if field.Type.Kind() == reflect.Slice {
			gormTag := field.Tag.Get("gorm")
			if strings.Contains(gormTag, "many2many:") {
				parts := strings.Split(gormTag, ";")
				for _, part := range parts {
					if strings.HasPrefix(part, "many2many:") {
						return field.Name, strings.TrimPrefix(part, "many2many:"), nil
					}
				}
			}
		}
	}
	return "", "", fmt.Errorf("many2many annotation not found")
}

const nodeIdDBField = "node_id"
const leaveIDDBField = "leave_id"

const leavesJoinQuery = `INNER JOIN %s ON %s.%s = %s.%s_%s`
const leavesWhereQuery = `%s.%s_%s IN ?`

// GetLeaves loads the leave rows attached to any node of the subtree below
// parentID (the parent included, the whole forest with parentID 0).
func (ct *Tree) GetLeaves(ctx context.Context, target any, parentID uint) error {
	if err := isLeaveSlice(target); err != nil {
		return err
	}

	ids, err := ct.DescendantIds(ctx, parentID)
	if err != nil {
		return err
	}
	if parentID != 0 {
		ids = append(ids, parentID)
	}

	stmt := &gorm.Statement{DB: ct.db}
	err = stmt.Parse(target)
	if err != nil {
		return fmt.Errorf("error parsing schema: %w", err)
	}
	leaveTblName := stmt.Schema.Table

	fieldName, m2mTbl, err := getGormM2MTblName(target)
	if err != nil {
		return err
	}

	// gorm names the join table columns after the struct names, e.g.
	// Category.NodeId => category_node_id
	namer := ct.db.NamingStrategy
	joinSQL := fmt.Sprintf(leavesJoinQuery, m2mTbl, leaveTblName, leaveIDDBField, m2mTbl, namer.ColumnName("", stmt.Schema.Name), leaveIDDBField)
	whereSQL := fmt.Sprintf(leavesWhereQuery, m2mTbl, namer.ColumnName("", ct.schema.Name), nodeIdDBField)
	return ct.db.WithContext(ctx).Model(target).InnerJoins(joinSQL).
		Preload(fieldName).
		Where(whereSQL, ids).
		Distinct().
		Find(target).Error
}

// DescendantIds returns the ids of the subtree below a node in DFS order, not
// including the node itself. With nodeID 0 the whole forest is listed.
func (ct *Tree) DescendantIds(ctx context.Context, nodeID uint) ([]uint, error) {
	ids := []uint{}
	q := ct.db.WithContext(ctx).Table(ct.nodesTbl).Select("node_id").Order("tree_id, lft")
	if nodeID != 0 {
		ref, err := ct.ref(ct.db.WithContext(ctx), nodeID)
		if err != nil {
			return nil, err
		}
		q = q.Where("tree_id = ? AND lft > ? AND rgt < ?", ref.TreeId, ref.Lft, ref.Rgt)
	}
	err := q.Scan(&ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch descendants: %w", err)
	}
	return ids, nil
}

// if the input string ends on s, return it without the s ending
// e.g. songs => song
func singular(in string) string {
	if strings.HasSuffix(in, "s") {
		return in[:len(in)-1]
	}
	return in
}

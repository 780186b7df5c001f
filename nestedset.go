// Package nestedset stores hierarchical data in a flat relational table using
// the Celko nested sets encoding (lft, rgt, tree_id, depth). Reads are pure
// index lookups over the interval columns; writes maintain the encoding with a
// small sequence of set-based UPDATE statements.
package nestedset

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

var ErrItemIsNotTreeNode = errors.New("the item does not embed Node")
var ErrParentNotFound = errors.New("wrong parent ID")
var ErrNodeNotFound = errors.New("node not found")
var ErrInvalidPosition = errors.New("invalid position")
var ErrInvalidMoveToDescendant = errors.New("cannot move a node to one of its descendants")
var ErrMalformedRecord = errors.New("malformed bulk record")

// Tree represents the access to one nested sets forest, bound to the table of
// the payload item passed to New.
type Tree struct {
	db       *gorm.DB
	nodesTbl string
	schema   *schema.Schema
	itemType reflect.Type
	// column name to field name, used by bulk load
	col2FieldMap map[string]string
	orderBy      []string
}

// Option configures a Tree on creation.
type Option func(*Tree)

// OrderBy enables sorted sibling ordering: siblings under any common parent
// are kept non-decreasing under the given column tuple. With an order key
// configured, only the sorted positions are accepted by AddSibling and Move.
func OrderBy(columns ...string) Option {
	return func(ct *Tree) {
		ct.orderBy = columns
	}
}

// New returns a Tree for the given item on the specific gorm Database.
// The item has to embed a Node struct; its table is migrated with the
// encoding columns (node_id, tree_id, lft, rgt, depth), all indexed.
func New(db *gorm.DB, item any, opts ...Option) (*Tree, error) {
	if !hasNode(item) {
		return nil, ErrItemIsNotTreeNode
	}

	stmt := &gorm.Statement{DB: db}
	err := stmt.Parse(item)
	if err != nil {
		return nil, fmt.Errorf("error parsing schema: %w", err)
	}

	// Generate a map of column names to field names
	columnFieldMap := make(map[string]string)
	for _, field := range stmt.Schema.Fields {
		columnFieldMap[field.DBName] = field.Name
	}

	t := reflect.TypeOf(item)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	ct := Tree{
		db:           db,
		nodesTbl:     stmt.Schema.Table,
		schema:       stmt.Schema,
		itemType:     t,
		col2FieldMap: columnFieldMap,
	}
	for _, opt := range opts {
		opt(&ct)
	}
	for _, col := range ct.orderBy {
		if stmt.Schema.LookUpField(col) == nil {
			return nil, fmt.Errorf("order column %q not found in %s", col, ct.nodesTbl)
		}
	}

	err = db.AutoMigrate(item)
	if err != nil {
		return nil, fmt.Errorf("unable to migrate node table: %v", err)
	}
	return &ct, nil
}

// GetNodeTableName returns the table name of the stored nodes, used if you
// need to interact directly with the database. The table's canonical ordering
// is (tree_id, lft), which is the DFS preorder of the forest.
func (ct *Tree) GetNodeTableName() string {
	return ct.nodesTbl
}

// GetNode loads a single item into the passed pointer.
func (ct *Tree) GetNode(ctx context.Context, nodeID uint, item any) error {
	if !hasNode(item) {
		return ErrItemIsNotTreeNode
	}
	if reflect.TypeOf(item).Kind() != reflect.Ptr {
		return fmt.Errorf("item needs to be a pointer to a struct")
	}

	err := ct.db.WithContext(ctx).Table(ct.nodesTbl).
		Where("node_id = ?", nodeID).
		Take(item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNodeNotFound
		}
		return fmt.Errorf("unable to load node: %v", err)
	}
	return nil
}

// Update will update the payload of the entry with the given ID.
// Note: the passed item has to embed a Node struct, but any value set on the
// Node is ignored, the encoding columns are never written by Update.
func (ct *Tree) Update(ctx context.Context, nodeID uint, item any) error {
	if !hasNode(item) {
		return ErrItemIsNotTreeNode
	}

	reflectItem, err := cloneWithNode(item, Node{})
	if err != nil {
		return err
	}

	return ct.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Table(ct.nodesTbl).Where("node_id = ?", nodeID).Updates(reflectItem)
		if res.Error != nil {
			return fmt.Errorf("unable to update node: %v", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNodeNotFound
		}
		return nil
	})
}

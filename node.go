package nestedset

import (
	"errors"
	"reflect"
)

// Node is the embeddable set of encoding columns, this is mandatory.
// lft and rgt are the bounds of the node's interval within its tree: every
// ancestor interval strictly contains its descendants' intervals, and within
// one tree the lft and rgt values form the contiguous set {1 .. 2N}.
type Node struct {
	NodeId uint `gorm:"AUTO_INCREMENT;PRIMARY_KEY;not null" json:"id"`
	TreeId uint `gorm:"index" json:"treeId"`
	Lft    int  `gorm:"index" json:"lft"`
	Rgt    int  `gorm:"index" json:"rgt"`
	Depth  int  `gorm:"index" json:"depth"`
}

func (n *Node) Id() uint {
	return n.NodeId
}

// IsRoot reports whether the node is the root of its tree.
func (n *Node) IsRoot() bool {
	return n.Lft == 1
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return n.Rgt-n.Lft == 1
}

// DescendantCount returns the number of descendants, derived from the
// interval width without touching the database.
func (n *Node) DescendantCount() int {
	return (n.Rgt - n.Lft - 1) / 2
}

const nodeIDField = "NodeId"

// hasNode uses reflection to verify if the passed struct has the embedded Node struct
func hasNode(item any) bool {
	if item == nil {
		return false
	}

	itemType := reflect.TypeOf(item)
	if itemType.Kind() == reflect.Ptr {
		itemType = itemType.Elem()
	}

	if itemType.Kind() != reflect.Struct {
		return false
	}

	if itemType == reflect.TypeOf(Node{}) {
		return true
	}

	for i := 0; i < itemType.NumField(); i++ {
		field := itemType.Field(i)
		if field.Anonymous && field.Type == reflect.TypeOf(Node{}) {
			return true
		}
	}
	return false
}

// cloneWithNode returns a pointer to a copy of item whose embedded Node is
// replaced by meta, so values the caller set on the Node are never trusted.
func cloneWithNode(item any, meta Node) (any, error) {
	t := reflect.TypeOf(item)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	clone := reflect.New(t)

	src := reflect.ValueOf(item)
	if src.Kind() == reflect.Ptr {
		src = src.Elem()
	}
	clone.Elem().Set(src)

	v := clone.Elem()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		if t.Field(i).Anonymous && field.Type() == reflect.TypeOf(Node{}) {
			if field.CanSet() {
				field.Set(reflect.ValueOf(meta))
				return clone.Interface(), nil
			}
		}
	}
	return nil, ErrItemIsNotTreeNode
}

// nodeMeta reads the embedded Node out of an item.
func nodeMeta(item any) (Node, error) {
	if item == nil {
		return Node{}, errors.New("nodeMeta: item cannot be nil")
	}

	itemType := reflect.TypeOf(item)
	itemValue := reflect.ValueOf(item)
	if itemType.Kind() == reflect.Ptr {
		itemType = itemType.Elem()
		itemValue = itemValue.Elem()
	}
	if itemType.Kind() != reflect.Struct {
		return Node{}, errors.New("nodeMeta: item is not a struct")
	}

	if itemType == reflect.TypeOf(Node{}) {
		return itemValue.Interface().(Node), nil
	}

	for i := 0; i < itemType.NumField(); i++ {
		field := itemType.Field(i)
		if field.Anonymous && field.Type == reflect.TypeOf(Node{}) {
			return itemValue.Field(i).Interface().(Node), nil
		}
	}
	return Node{}, ErrItemIsNotTreeNode
}

// copyNodeBack writes meta into the embedded Node of dst, if dst is a pointer.
// Used after inserts so the caller sees the assigned id and interval.
func copyNodeBack(dst any, meta Node) error {
	if reflect.TypeOf(dst).Kind() != reflect.Ptr {
		return nil
	}

	v := reflect.ValueOf(dst).Elem()
	t := v.Type()
	if t.Kind() != reflect.Struct {
		return errors.New("item is not a pointer to a struct")
	}
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		if t.Field(i).Anonymous && field.Type() == reflect.TypeOf(Node{}) {
			if !field.CanSet() {
				return errors.New("embedded Node is not settable")
			}
			field.Set(reflect.ValueOf(meta))
			return nil
		}
	}
	return ErrItemIsNotTreeNode
}

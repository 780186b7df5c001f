package nestedset

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type tag struct {
	Name string
	Node
}

type nonEmbeddingStruct struct {
	Name string
}

type plainID struct {
	NodeId uint
}

func TestHasNode(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected bool
	}{
		{
			name:     "Struct is Node",
			input:    Node{},
			expected: true,
		},
		{
			name:     "Struct is Node pointer",
			input:    &Node{},
			expected: true,
		},
		{
			name:     "Struct that embeds Node",
			input:    tag{},
			expected: true,
		},
		{
			name:     "Pointer to struct that embeds Node",
			input:    &tag{},
			expected: true,
		},
		{
			name:     "Struct that does not embed Node",
			input:    nonEmbeddingStruct{Name: "test"},
			expected: false,
		},
		{
			name:     "Plain id field is not enough",
			input:    plainID{NodeId: 1},
			expected: false,
		},
		{
			name:     "Non-struct input (string)",
			input:    "not a struct",
			expected: false,
		},
		{
			name:     "Non-struct input (integer)",
			input:    123,
			expected: false,
		},
		{
			name:     "Nil input",
			input:    nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := hasNode(tt.input)
			if result != tt.expected {
				t.Errorf("hasNode(%v) = %v; want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestCloneWithNode(t *testing.T) {
	meta := Node{NodeId: 7, TreeId: 2, Lft: 3, Rgt: 4, Depth: 2}

	t.Run("caller values on the Node are discarded", func(t *testing.T) {
		in := tag{Name: "sample", Node: Node{NodeId: 99, Lft: 42}}
		out, err := cloneWithNode(in, meta)
		if err != nil {
			t.Fatal(err)
		}
		got, ok := out.(*tag)
		if !ok {
			t.Fatalf("expected *tag, got %T", out)
		}
		if got.Name != "sample" {
			t.Errorf("payload not copied, got %q", got.Name)
		}
		if diff := cmp.Diff(meta, got.Node); diff != "" {
			t.Errorf("unexpected node (-want +got):\n%s", diff)
		}
	})

	t.Run("pointer input is not mutated", func(t *testing.T) {
		in := &tag{Name: "sample"}
		_, err := cloneWithNode(in, meta)
		if err != nil {
			t.Fatal(err)
		}
		if in.NodeId != 0 {
			t.Errorf("input was mutated, NodeId = %d", in.NodeId)
		}
	})

	t.Run("struct without Node", func(t *testing.T) {
		_, err := cloneWithNode(nonEmbeddingStruct{}, meta)
		if err != ErrItemIsNotTreeNode {
			t.Errorf("expected ErrItemIsNotTreeNode, got %v", err)
		}
	})
}

func TestNodeMeta(t *testing.T) {
	want := Node{NodeId: 5, TreeId: 1, Lft: 2, Rgt: 3, Depth: 2}

	tests := []struct {
		name    string
		input   any
		want    Node
		wantErr bool
	}{
		{name: "Node value", input: want, want: want},
		{name: "Node pointer", input: &want, want: want},
		{name: "embedded", input: tag{Node: want}, want: want},
		{name: "embedded pointer", input: &tag{Node: want}, want: want},
		{name: "no Node", input: nonEmbeddingStruct{}, wantErr: true},
		{name: "nil", input: nil, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nodeMeta(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if err == nil {
				if diff := cmp.Diff(tt.want, got); diff != "" {
					t.Errorf("unexpected node (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestCopyNodeBack(t *testing.T) {
	meta := Node{NodeId: 9, TreeId: 1, Lft: 4, Rgt: 5, Depth: 3}

	t.Run("pointer destination", func(t *testing.T) {
		dst := &tag{Name: "keep me"}
		if err := copyNodeBack(dst, meta); err != nil {
			t.Fatal(err)
		}
		if dst.Name != "keep me" {
			t.Errorf("payload clobbered: %q", dst.Name)
		}
		if diff := cmp.Diff(meta, dst.Node); diff != "" {
			t.Errorf("unexpected node (-want +got):\n%s", diff)
		}
	})

	t.Run("value destination is a no-op", func(t *testing.T) {
		if err := copyNodeBack(tag{}, meta); err != nil {
			t.Fatal(err)
		}
	})
}

func TestNodeHelpers(t *testing.T) {
	root := Node{TreeId: 1, Lft: 1, Rgt: 8, Depth: 1}
	leaf := Node{TreeId: 1, Lft: 2, Rgt: 3, Depth: 2}

	if !root.IsRoot() || leaf.IsRoot() {
		t.Error("IsRoot misreported")
	}
	if !leaf.IsLeaf() || root.IsLeaf() {
		t.Error("IsLeaf misreported")
	}
	if got := root.DescendantCount(); got != 3 {
		t.Errorf("DescendantCount = %d, want 3", got)
	}
	if got := leaf.DescendantCount(); got != 0 {
		t.Errorf("DescendantCount = %d, want 0", got)
	}
}

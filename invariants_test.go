package nestedset_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	nestedset "github.com/go-bumbu/nested-set"
	"github.com/go-bumbu/testdbs"
)

// TestEncodingInvariants runs a seeded pseudo random mix of mutations and
// verifies the nested interval invariants on the raw table after every
// single operation.
func TestEncodingInvariants(t *testing.T) {
	for _, db := range testdbs.DBs() {
		t.Run(db.DbType(), func(t *testing.T) {
			conn := db.ConnDbName("invariants")
			ct, err := nestedset.New(conn, Category{})
			if err != nil {
				t.Fatal(err)
			}
			ctx := context.Background()
			rnd := rand.New(rand.NewSource(42))

			siblingPositions := []nestedset.Position{
				nestedset.FirstSibling, nestedset.LastSibling, nestedset.Left, nestedset.Right,
			}
			movePositions := append([]nestedset.Position{
				nestedset.FirstChild, nestedset.LastChild,
			}, siblingPositions...)

			for i := 0; i < 150; i++ {
				var all []Category
				if err := ct.GetTree(ctx, 0, &all); err != nil {
					t.Fatal(err)
				}

				op := rnd.Intn(10)
				switch {
				case len(all) == 0 || op == 0:
					if err := ct.AddRoot(ctx, &Category{Name: fmt.Sprintf("n%d", i)}); err != nil {
						t.Fatalf("op %d AddRoot: %v", i, err)
					}
				case op <= 3:
					parent := all[rnd.Intn(len(all))]
					if err := ct.AddChild(ctx, parent.NodeId, &Category{Name: fmt.Sprintf("n%d", i)}); err != nil {
						t.Fatalf("op %d AddChild: %v", i, err)
					}
				case op <= 5:
					pivot := all[rnd.Intn(len(all))]
					pos := siblingPositions[rnd.Intn(len(siblingPositions))]
					if err := ct.AddSibling(ctx, pivot.NodeId, pos, &Category{Name: fmt.Sprintf("n%d", i)}); err != nil {
						t.Fatalf("op %d AddSibling %s: %v", i, pos, err)
					}
				case op <= 8 && len(all) >= 2:
					node := all[rnd.Intn(len(all))]
					target := all[rnd.Intn(len(all))]
					if node.NodeId == target.NodeId {
						continue
					}
					pos := movePositions[rnd.Intn(len(movePositions))]
					err := ct.Move(ctx, node.NodeId, target.NodeId, pos)
					// moving into the own subtree is the one legal refusal
					if err != nil && !errors.Is(err, nestedset.ErrInvalidMoveToDescendant) {
						t.Fatalf("op %d Move %s: %v", i, pos, err)
					}
				default:
					node := all[rnd.Intn(len(all))]
					if err := ct.Delete(ctx, node.NodeId); err != nil {
						t.Fatalf("op %d Delete: %v", i, err)
					}
				}

				checkEncoding(t, conn, ct.GetNodeTableName())
			}
		})
	}
}

// TestSortedInvariants drives a sorted model and checks that siblings stay
// non-decreasing under the order key after every operation.
func TestSortedInvariants(t *testing.T) {
	for _, db := range testdbs.DBs() {
		t.Run(db.DbType(), func(t *testing.T) {
			conn := db.ConnDbName("sortedinvariants")
			ct, err := nestedset.New(conn, SortedRec{}, nestedset.OrderBy("k"))
			if err != nil {
				t.Fatal(err)
			}
			ctx := context.Background()
			rnd := rand.New(rand.NewSource(7))

			for i := 0; i < 80; i++ {
				var all []SortedRec
				if err := ct.GetTree(ctx, 0, &all); err != nil {
					t.Fatal(err)
				}

				item := &SortedRec{K: rnd.Intn(50), Name: fmt.Sprintf("n%d", i)}
				switch {
				case len(all) == 0 || rnd.Intn(4) == 0:
					if err := ct.AddRoot(ctx, item); err != nil {
						t.Fatalf("op %d AddRoot: %v", i, err)
					}
				case rnd.Intn(5) == 0 && len(all) >= 2:
					node := all[rnd.Intn(len(all))]
					target := all[rnd.Intn(len(all))]
					if node.NodeId == target.NodeId {
						continue
					}
					err := ct.Move(ctx, node.NodeId, target.NodeId, nestedset.SortedChild)
					if err != nil && !errors.Is(err, nestedset.ErrInvalidMoveToDescendant) {
						t.Fatalf("op %d Move: %v", i, err)
					}
				default:
					parent := all[rnd.Intn(len(all))]
					if err := ct.AddChild(ctx, parent.NodeId, item); err != nil {
						t.Fatalf("op %d AddChild: %v", i, err)
					}
				}

				checkEncoding(t, conn, ct.GetNodeTableName())
				checkSorted(t, ct)
			}
		})
	}
}

// checkSorted walks every sibling group and asserts the keys never decrease.
func checkSorted(t *testing.T, ct *nestedset.Tree) {
	t.Helper()
	ctx := context.Background()

	var roots []SortedRec
	if err := ct.Roots(ctx, &roots); err != nil {
		t.Fatal(err)
	}
	assertNonDecreasing(t, "roots", roots)

	var all []SortedRec
	if err := ct.GetTree(ctx, 0, &all); err != nil {
		t.Fatal(err)
	}
	for _, node := range all {
		var children []SortedRec
		if err := ct.Children(ctx, node.NodeId, &children); err != nil {
			t.Fatal(err)
		}
		assertNonDecreasing(t, fmt.Sprintf("children of %d", node.NodeId), children)
	}
}

func assertNonDecreasing(t *testing.T, group string, items []SortedRec) {
	t.Helper()
	for i := 1; i < len(items); i++ {
		if items[i].K < items[i-1].K {
			t.Fatalf("%s out of order: k=%d before k=%d", group, items[i-1].K, items[i].K)
		}
	}
}

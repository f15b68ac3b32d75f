package vectorstore

import "testing"

func TestPointID_Deterministic(t *testing.T) {
	a := PointID("01DOC", 3)
	b := PointID("01DOC", 3)
	if a != b {
		t.Fatalf("same document and index must yield the same id: %s vs %s", a, b)
	}
}

func TestPointID_DistinguishesInputs(t *testing.T) {
	seen := map[string]bool{}
	for _, doc := range []string{"01DOC", "01OTHER"} {
		for i := 0; i < 4; i++ {
			id := PointID(doc, i)
			if seen[id] {
				t.Fatalf("collision for %s/%d: %s", doc, i, id)
			}
			seen[id] = true
		}
	}
}

func TestPointID_NoIndexAmbiguity(t *testing.T) {
	// "doc1"+index 2 must not collide with "doc12"+index nothing-like.
	if PointID("doc1", 23) == PointID("doc12", 3) {
		t.Fatalf("document id and chunk index must be separated unambiguously")
	}
}

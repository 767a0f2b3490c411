package docstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
)

func setupTestCollection(t *testing.T) Collection {
	t.Helper()
	store, err := OpenInMemory(zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store.Collection("records")
}

func insertFixture(t *testing.T, c Collection, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		doc := Doc{
			"uid":           fmt.Sprintf("rec%03d", i),
			"last_modified": fmt.Sprintf("2026-01-01T00:00:%02dZ", i),
			"metadata": map[string]interface{}{
				"dataset": []string{"alpha", "beta"}[i%2],
				"index":   float64(i),
			},
		}
		if err := c.InsertOne(ctx, doc); err != nil {
			t.Fatalf("Failed to insert doc %d: %v", i, err)
		}
	}
}

func TestInsertAndFindOne(t *testing.T) {
	c := setupTestCollection(t)
	ctx := context.Background()
	insertFixture(t, c, 3)

	doc, err := c.FindOne(ctx, Filter{"uid": "rec001"})
	if err != nil {
		t.Fatalf("Failed to find: %v", err)
	}
	if doc["uid"] != "rec001" {
		t.Errorf("Expected rec001, got %v", doc["uid"])
	}

	if _, err := c.FindOne(ctx, Filter{"uid": "nope"}); err != ErrNoDocuments {
		t.Errorf("Expected ErrNoDocuments, got %v", err)
	}
}

func TestInsertRejectsDuplicatesAndMissingID(t *testing.T) {
	c := setupTestCollection(t)
	ctx := context.Background()

	if err := c.InsertOne(ctx, Doc{"name": "no id"}); err != ErrMissingID {
		t.Errorf("Expected ErrMissingID, got %v", err)
	}

	if err := c.InsertOne(ctx, Doc{"uid": "dup"}); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	if err := c.InsertOne(ctx, Doc{"uid": "dup"}); err != ErrDuplicateID {
		t.Errorf("Expected ErrDuplicateID, got %v", err)
	}
}

func TestCountAndFilter(t *testing.T) {
	c := setupTestCollection(t)
	ctx := context.Background()
	insertFixture(t, c, 10)

	total, err := c.Count(ctx, All())
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if total != 10 {
		t.Errorf("Expected 10, got %d", total)
	}

	alpha, err := c.Count(ctx, Filter{"metadata.dataset": "alpha"})
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if alpha != 5 {
		t.Errorf("Expected 5, got %d", alpha)
	}
}

func TestFindPaginationIsStable(t *testing.T) {
	c := setupTestCollection(t)
	ctx := context.Background()
	insertFixture(t, c, 10)

	full, err := c.Find(ctx, All(), FindOptions{Limit: -1})
	if err != nil {
		t.Fatalf("Failed to find: %v", err)
	}
	if len(full) != 10 {
		t.Fatalf("Expected 10 docs, got %d", len(full))
	}

	// any split point must reproduce the full listing
	for k := 0; k <= 10; k++ {
		head, err := c.Find(ctx, All(), FindOptions{Skip: 0, Limit: k})
		if err != nil {
			t.Fatalf("Failed to find head: %v", err)
		}
		tail, err := c.Find(ctx, All(), FindOptions{Skip: k, Limit: -1})
		if err != nil {
			t.Fatalf("Failed to find tail: %v", err)
		}
		combined := append(append([]Doc{}, head...), tail...)
		if len(combined) != len(full) {
			t.Fatalf("Split at %d: expected %d docs, got %d", k, len(full), len(combined))
		}
		for i := range full {
			if combined[i]["uid"] != full[i]["uid"] {
				t.Errorf("Split at %d: position %d differs: %v vs %v", k, i, combined[i]["uid"], full[i]["uid"])
			}
		}
	}
}

func TestFindProjection(t *testing.T) {
	c := setupTestCollection(t)
	ctx := context.Background()
	insertFixture(t, c, 2)

	docs, err := c.Find(ctx, All(), FindOptions{Limit: -1, Projection: []string{"metadata.dataset"}})
	if err != nil {
		t.Fatalf("Failed to find: %v", err)
	}
	for _, d := range docs {
		if _, ok := d["uid"]; !ok {
			t.Errorf("Expected uid in projected doc")
		}
		if _, ok := lookupPath(d, "metadata.dataset"); !ok {
			t.Errorf("Expected metadata.dataset in projected doc")
		}
		if _, ok := lookupPath(d, "metadata.index"); ok {
			t.Errorf("Expected metadata.index to be projected away")
		}
	}
}

func TestDistinct(t *testing.T) {
	c := setupTestCollection(t)
	ctx := context.Background()
	insertFixture(t, c, 10)

	values, err := c.Distinct(ctx, "metadata.dataset", All())
	if err != nil {
		t.Fatalf("Failed to get distinct: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("Expected 2 distinct values, got %d: %v", len(values), values)
	}
	if values[0] != "alpha" || values[1] != "beta" {
		t.Errorf("Expected sorted [alpha beta], got %v", values)
	}

	scoped, err := c.Distinct(ctx, "metadata.dataset", Filter{"metadata.dataset": "alpha"})
	if err != nil {
		t.Fatalf("Failed to get distinct: %v", err)
	}
	if len(scoped) != 1 || scoped[0] != "alpha" {
		t.Errorf("Expected [alpha], got %v", scoped)
	}
}

func TestUpdateOne(t *testing.T) {
	c := setupTestCollection(t)
	ctx := context.Background()
	insertFixture(t, c, 3)

	res, err := c.UpdateOne(ctx, Filter{"uid": "rec001"}, Update{Set: map[string]interface{}{
		"data_url": "file://localhost/data/re/rec001",
	}})
	if err != nil {
		t.Fatalf("Failed to update: %v", err)
	}
	if res.MatchedCount != 1 || res.ModifiedCount != 1 {
		t.Errorf("Expected matched=1 modified=1, got %+v", res)
	}

	doc, err := c.FindOne(ctx, Filter{"uid": "rec001"})
	if err != nil {
		t.Fatalf("Failed to find: %v", err)
	}
	if doc["data_url"] != "file://localhost/data/re/rec001" {
		t.Errorf("Expected data_url to be set, got %v", doc["data_url"])
	}

	// updating a missing document matches nothing
	res, err = c.UpdateOne(ctx, Filter{"uid": "nope"}, Update{Set: map[string]interface{}{"x": 1}})
	if err != nil {
		t.Fatalf("Failed to update: %v", err)
	}
	if res.MatchedCount != 0 {
		t.Errorf("Expected matched=0, got %+v", res)
	}
}

func TestDeleteOne(t *testing.T) {
	c := setupTestCollection(t)
	ctx := context.Background()
	insertFixture(t, c, 3)

	res, err := c.DeleteOne(ctx, Filter{"uid": "rec002"})
	if err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if res.DeletedCount != 1 {
		t.Errorf("Expected deleted=1, got %+v", res)
	}

	if _, err := c.FindOne(ctx, Filter{"uid": "rec002"}); err != ErrNoDocuments {
		t.Errorf("Expected ErrNoDocuments after delete, got %v", err)
	}

	res, err = c.DeleteOne(ctx, Filter{"uid": "rec002"})
	if err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if res.DeletedCount != 0 {
		t.Errorf("Expected deleted=0 for missing doc, got %+v", res)
	}
}

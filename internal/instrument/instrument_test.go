package instrument

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/aimmlab/xascat/internal/logger"
	"github.com/aimmlab/xascat/internal/metrics"
	"github.com/aimmlab/xascat/pkg/docstore"
)

// promauto registers into the default registry, so the test binary
// creates its metrics exactly once.
var testMetrics = metrics.NewMetrics()

func setupTestCollection(t *testing.T, out *bytes.Buffer) docstore.Collection {
	t.Helper()
	store, err := docstore.OpenInMemory(zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	log := logger.NewLogger(logger.Config{Level: "debug", Output: out})
	return Collection(store.Collection("records"), testMetrics, log)
}

func TestOperationsCountedByStatus(t *testing.T) {
	var out bytes.Buffer
	coll := setupTestCollection(t, &out)
	ctx := context.Background()

	success := testutil.ToFloat64(testMetrics.StoreOperationsTotal.WithLabelValues("insert_one", "success"))
	failure := testutil.ToFloat64(testMetrics.StoreOperationsTotal.WithLabelValues("find_one", "error"))

	if err := coll.InsertOne(ctx, docstore.Doc{"uid": "a", "metadata": map[string]interface{}{}}); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	if _, err := coll.FindOne(ctx, docstore.Filter{"uid": "missing"}); err != docstore.ErrNoDocuments {
		t.Fatalf("Expected ErrNoDocuments, got %v", err)
	}

	got := testutil.ToFloat64(testMetrics.StoreOperationsTotal.WithLabelValues("insert_one", "success"))
	if got != success+1 {
		t.Errorf("Expected insert success counter to advance, got %v", got)
	}
	got = testutil.ToFloat64(testMetrics.StoreOperationsTotal.WithLabelValues("find_one", "error"))
	if got != failure+1 {
		t.Errorf("Expected find_one error counter to advance, got %v", got)
	}
}

func TestOperationsLogged(t *testing.T) {
	var out bytes.Buffer
	coll := setupTestCollection(t, &out)
	ctx := context.Background()

	if err := coll.InsertOne(ctx, docstore.Doc{"uid": "b"}); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	if _, err := coll.Count(ctx, docstore.All()); err != nil {
		t.Fatalf("Failed to count: %v", err)
	}

	logged := out.String()
	if !strings.Contains(logged, `"operation":"insert_one"`) {
		t.Errorf("Expected insert_one in the operation log, got %s", logged)
	}
	if !strings.Contains(logged, `"operation":"count"`) {
		t.Errorf("Expected count in the operation log, got %s", logged)
	}
}

func TestResultsPassThrough(t *testing.T) {
	var out bytes.Buffer
	coll := setupTestCollection(t, &out)
	ctx := context.Background()

	if err := coll.InsertOne(ctx, docstore.Doc{"uid": "c", "metadata": map[string]interface{}{"dataset": "sandbox"}}); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	doc, err := coll.FindOne(ctx, docstore.Filter{"uid": "c"})
	if err != nil {
		t.Fatalf("Failed to find: %v", err)
	}
	if doc["uid"] != "c" {
		t.Errorf("Expected uid c, got %v", doc["uid"])
	}

	res, err := coll.UpdateOne(ctx, docstore.Filter{"uid": "c"}, docstore.Update{Set: map[string]interface{}{"metadata.dataset": "core"}})
	if err != nil {
		t.Fatalf("Failed to update: %v", err)
	}
	if res.MatchedCount != 1 || res.ModifiedCount != 1 {
		t.Errorf("Expected one modified document, got %+v", res)
	}

	del, err := coll.DeleteOne(ctx, docstore.Filter{"uid": "c"})
	if err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if del.DeletedCount != 1 {
		t.Errorf("Expected one deleted document, got %+v", del)
	}
}

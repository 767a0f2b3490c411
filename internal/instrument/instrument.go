// Package instrument decorates document collections with store metrics
// and structured operation logging
package instrument

import (
	"context"
	"time"

	"github.com/aimmlab/xascat/internal/logger"
	"github.com/aimmlab/xascat/internal/metrics"
	"github.com/aimmlab/xascat/pkg/docstore"
)

// Collection wraps a docstore.Collection, timing every operation into the
// store metrics and the operation log. A nil Metrics or Logger disables
// that side.
func Collection(c docstore.Collection, m *metrics.Metrics, log *logger.Logger) docstore.Collection {
	return &collection{inner: c, metrics: m, log: log}
}

type collection struct {
	inner   docstore.Collection
	metrics *metrics.Metrics
	log     *logger.Logger
}

func (c *collection) observe(operation string, start time.Time, count int, err error) {
	elapsed := time.Since(start)
	if c.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordStoreOperation(operation, status, elapsed)
	}
	if c.log != nil {
		c.log.LogStoreOperation(operation, elapsed, count, err)
	}
}

func (c *collection) Count(ctx context.Context, filter docstore.Filter) (int, error) {
	start := time.Now()
	n, err := c.inner.Count(ctx, filter)
	c.observe("count", start, n, err)
	return n, err
}

func (c *collection) Find(ctx context.Context, filter docstore.Filter, opts docstore.FindOptions) ([]docstore.Doc, error) {
	start := time.Now()
	docs, err := c.inner.Find(ctx, filter, opts)
	c.observe("find", start, len(docs), err)
	return docs, err
}

func (c *collection) FindOne(ctx context.Context, filter docstore.Filter) (docstore.Doc, error) {
	start := time.Now()
	doc, err := c.inner.FindOne(ctx, filter)
	count := 0
	if doc != nil {
		count = 1
	}
	c.observe("find_one", start, count, err)
	return doc, err
}

func (c *collection) Distinct(ctx context.Context, field string, filter docstore.Filter) ([]interface{}, error) {
	start := time.Now()
	values, err := c.inner.Distinct(ctx, field, filter)
	c.observe("distinct", start, len(values), err)
	return values, err
}

func (c *collection) InsertOne(ctx context.Context, doc docstore.Doc) error {
	start := time.Now()
	err := c.inner.InsertOne(ctx, doc)
	c.observe("insert_one", start, 1, err)
	return err
}

func (c *collection) UpdateOne(ctx context.Context, filter docstore.Filter, update docstore.Update) (docstore.UpdateResult, error) {
	start := time.Now()
	res, err := c.inner.UpdateOne(ctx, filter, update)
	c.observe("update_one", start, res.ModifiedCount, err)
	return res, err
}

func (c *collection) DeleteOne(ctx context.Context, filter docstore.Filter) (docstore.DeleteResult, error) {
	start := time.Now()
	res, err := c.inner.DeleteOne(ctx, filter)
	c.observe("delete_one", start, res.DeletedCount, err)
	return res, err
}

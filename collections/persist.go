package collections

import (
	"context"
	"encoding/json"
	"time"

	"github.com/giygas/pharmaprice-api/entities"
	"github.com/giygas/pharmaprice-api/kvstore"
	"github.com/giygas/pharmaprice-api/logging"
	"github.com/giygas/pharmaprice-api/metrics"
)

// Persister returns a hook writing each mutated collection under its name.
// Failures are logged and counted; the in-memory state stays authoritative.
func Persister(store kvstore.Store, timeout time.Duration) MutationHook {
	return func(collection string, records []entities.PriceRecord) {
		if records == nil {
			records = []entities.PriceRecord{}
		}
		data, err := json.Marshal(records)
		if err != nil {
			metrics.PersistenceErrors.WithLabelValues("encode").Inc()
			logging.Error("Failed to encode collection", "collection", collection, "error", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := store.Set(ctx, collection, string(data)); err != nil {
			metrics.PersistenceErrors.WithLabelValues("save").Inc()
			logging.Error("Failed to persist collection",
				"collection", collection,
				"backend", store.Backend(),
				"error", err,
			)
		}
	}
}

// SizeGauge keeps the collection_size gauge in step with the collections
func SizeGauge() MutationHook {
	return func(collection string, records []entities.PriceRecord) {
		metrics.CollectionSize.WithLabelValues(collection).Set(float64(len(records)))
	}
}

package alerts

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/threadline-retail/threadline/internal/catalog"
)

// CatalogReader is the read-only slice of the catalog the evaluator needs.
type CatalogReader interface {
	ListActive(ctx context.Context) ([]catalog.Product, error)
}

// Alerts partitions products by stock level against a threshold.
type Alerts struct {
	Threshold  int               `json:"threshold"`
	OutOfStock []catalog.Product `json:"out_of_stock"`
	LowStock   []catalog.Product `json:"low_stock"`
}

// ErrInvalidThreshold indicates a non-positive threshold.
var ErrInvalidThreshold = errors.New("alerts: threshold must be > 0")

// Service evaluates low-stock alerts. Pure read side; concurrent misses for
// the same threshold collapse into one catalog scan.
type Service struct {
	catalog CatalogReader
	cache   *Cache
	group   singleflight.Group
}

// NewService builds Service.
func NewService(reader CatalogReader, cache *Cache) *Service {
	return &Service{catalog: reader, cache: cache}
}

// Evaluate partitions visible products into out-of-stock and low-stock
// buckets. Trashed products are not in the active collection and hidden
// ones are excluded by the reader.
func (s *Service) Evaluate(ctx context.Context, threshold int) (Alerts, error) {
	if threshold <= 0 {
		return Alerts{}, ErrInvalidThreshold
	}
	if cached, ok := s.cache.Get(ctx, threshold); ok {
		return cached, nil
	}
	result, err, _ := s.group.Do(fmt.Sprintf("threshold:%d", threshold), func() (any, error) {
		alerts, err := s.evaluate(ctx, threshold)
		if err != nil {
			return Alerts{}, err
		}
		s.cache.Set(ctx, threshold, alerts)
		return alerts, nil
	})
	if err != nil {
		return Alerts{}, err
	}
	return result.(Alerts), nil
}

// Refresh recomputes and re-caches the given thresholds, used by the
// warmup job.
func (s *Service) Refresh(ctx context.Context, thresholds []int) error {
	for _, threshold := range thresholds {
		if threshold <= 0 {
			continue
		}
		alerts, err := s.evaluate(ctx, threshold)
		if err != nil {
			return err
		}
		s.cache.Set(ctx, threshold, alerts)
	}
	return nil
}

func (s *Service) evaluate(ctx context.Context, threshold int) (Alerts, error) {
	products, err := s.catalog.ListActive(ctx)
	if err != nil {
		return Alerts{}, err
	}
	alerts := Alerts{Threshold: threshold, OutOfStock: []catalog.Product{}, LowStock: []catalog.Product{}}
	for _, product := range products {
		switch {
		case product.TotalStock == 0:
			alerts.OutOfStock = append(alerts.OutOfStock, product)
		case product.TotalStock <= threshold:
			alerts.LowStock = append(alerts.LowStock, product)
		}
	}
	return alerts, nil
}

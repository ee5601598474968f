package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nimburion/catalog/pkg/config"
	"github.com/nimburion/catalog/pkg/health"
	"github.com/nimburion/catalog/pkg/observability/logger"
	"github.com/nimburion/catalog/pkg/repository"
	"github.com/nimburion/catalog/pkg/resilience"
	"github.com/nimburion/catalog/pkg/specification"
	"github.com/nimburion/catalog/pkg/store"
)

// ErrInvalidProduct is returned when a product fails validation before staging.
var ErrInvalidProduct = errors.New("invalid product")

// Pagination is one page of query results together with the total match count.
type Pagination[T any] struct {
	PageIndex int   `json:"pageIndex"`
	PageSize  int   `json:"pageSize"`
	Count     int64 `json:"count"`
	Data      []T   `json:"data"`
}

// Service runs catalog operations. Every call takes its own repository from the factory.
type Service struct {
	adapter store.Adapter
	newRepo RepositoryFactory
	cfg     config.CatalogConfig
	logger  logger.Logger

	cache     store.Cache
	cacheTTL  time.Duration
	keyPrefix string
	breaker   *resilience.CircuitBreaker
	health    *health.Registry
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithProjectionCache keeps the brand and type listings in cache for ttl. Writes through the
// service invalidate them. A nil cache leaves caching disabled.
func WithProjectionCache(cache store.Cache, ttl time.Duration, keyPrefix string) ServiceOption {
	return func(s *Service) {
		s.cache = cache
		s.cacheTTL = ttl
		s.keyPrefix = keyPrefix
	}
}

// WithCacheBreaker replaces the circuit breaker guarding the projection cache. Without it
// the cache is skipped for 30s after 5 consecutive failures.
func WithCacheBreaker(breaker *resilience.CircuitBreaker) ServiceOption {
	return func(s *Service) { s.breaker = breaker }
}

// NewService creates a catalog service over adapter. The adapter is only used for health
// checks and Close; queries go through repositories returned by newRepo.
func NewService(adapter store.Adapter, newRepo RepositoryFactory, cfg config.CatalogConfig, log logger.Logger, opts ...ServiceOption) (*Service, error) {
	if newRepo == nil {
		return nil, fmt.Errorf("repository factory is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = config.DefaultConfig().Catalog.DefaultPageSize
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		cfg.MaxPageSize = cfg.DefaultPageSize
	}
	s := &Service{adapter: adapter, newRepo: newRepo, cfg: cfg, logger: log}
	for _, opt := range opts {
		opt(s)
	}

	s.health = health.NewRegistry()
	if adapter != nil {
		s.health.Register(health.NewAdapterChecker("store", adapter, 5*time.Second))
	}
	if s.cache != nil {
		if s.breaker == nil {
			s.breaker = resilience.NewCircuitBreaker(5, 30*time.Second, resilience.OnStateChange(func(from, to resilience.State) {
				s.logger.Warn("projection cache circuit changed", "from", from.String(), "to", to.String())
			}))
		}
		s.health.Register(health.NewOptionalChecker("projection_cache", s.cache, 3*time.Second))
	}
	return s, nil
}

// ListProducts returns the requested page of products matching params, plus the number of
// matches across all pages.
func (s *Service) ListProducts(ctx context.Context, params QueryParams) (Pagination[Product], error) {
	params = params.Normalize(s.cfg.DefaultPageSize, s.cfg.MaxPageSize)
	page := Pagination[Product]{PageIndex: params.PageIndex, PageSize: params.PageSize}

	repo, err := s.newRepo()
	if err != nil {
		return page, err
	}
	spec := NewProductSpecification(params)

	items, err := repo.List(ctx, spec)
	if err != nil {
		return page, fmt.Errorf("failed to list products: %w", err)
	}
	count, err := repo.Count(ctx, spec)
	if err != nil {
		return page, fmt.Errorf("failed to count products: %w", err)
	}

	if items == nil {
		items = []Product{}
	}
	page.Count = count
	page.Data = items
	return page, nil
}

// CountProducts returns the number of products matching params. Paging is ignored.
func (s *Service) CountProducts(ctx context.Context, params QueryParams) (int64, error) {
	repo, err := s.newRepo()
	if err != nil {
		return 0, err
	}
	params = params.Normalize(s.cfg.DefaultPageSize, s.cfg.MaxPageSize)
	return repo.Count(ctx, NewProductSpecification(params))
}

// GetProduct looks a product up by id.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, bool, error) {
	repo, err := s.newRepo()
	if err != nil {
		return Product{}, false, err
	}
	return repo.GetByID(ctx, id)
}

// Brands lists the distinct product brands in order.
func (s *Service) Brands(ctx context.Context) ([]string, error) {
	return s.projection(ctx, brandsCacheKey, BrandsSpecification())
}

// Types lists the distinct product types in order.
func (s *Service) Types(ctx context.Context) ([]string, error) {
	return s.projection(ctx, typesCacheKey, TypesSpecification())
}

const (
	brandsCacheKey = "brands"
	typesCacheKey  = "types"
)

func (s *Service) projection(ctx context.Context, key string, spec *specification.Projection[Product, string]) ([]string, error) {
	if values, ok := s.cachedProjection(ctx, key); ok {
		return values, nil
	}

	repo, err := s.newRepo()
	if err != nil {
		return nil, err
	}
	values, err := repository.ListProjected(ctx, repo, spec)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(values); err == nil {
			err = s.breaker.Execute(func() error {
				return s.cache.Set(ctx, s.keyPrefix+key, payload, s.cacheTTL)
			})
			if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
				s.logger.Warn("failed to cache projection", "key", s.keyPrefix+key, "error", err)
			}
		}
	}
	return values, nil
}

func (s *Service) cachedProjection(ctx context.Context, key string) ([]string, bool) {
	if s.cache == nil {
		return nil, false
	}
	var (
		payload []byte
		found   bool
	)
	err := s.breaker.Execute(func() error {
		var err error
		payload, found, err = s.cache.Get(ctx, s.keyPrefix+key)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		s.logger.Debug("projection cache bypassed", "key", s.keyPrefix+key)
		return nil, false
	}
	if err != nil {
		s.logger.Warn("projection cache read failed", "key", s.keyPrefix+key, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var values []string
	if err := json.Unmarshal(payload, &values); err != nil {
		s.logger.Warn("discarding malformed cached projection", "key", s.keyPrefix+key, "error", err)
		return nil, false
	}
	return values, true
}

// invalidateProjections drops cached brand and type listings after a write.
func (s *Service) invalidateProjections(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, s.keyPrefix+brandsCacheKey, s.keyPrefix+typesCacheKey); err != nil {
		s.logger.Warn("projection cache invalidation failed", "error", err)
	}
}

// CreateProduct stores a new product. A zero id is replaced by a generated one and the
// partition key is assigned from the brand.
func (s *Service) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if err := validateProduct(p); err != nil {
		return Product{}, err
	}
	AssignPartitionKey(&p)

	repo, err := s.newRepo()
	if err != nil {
		return Product{}, err
	}
	repo.Add(p)
	if _, err := repo.SaveAll(ctx); err != nil {
		return Product{}, fmt.Errorf("failed to create product %d: %w", p.ID, err)
	}

	s.invalidateProjections(ctx)
	s.logger.Info("product created", "product_id", p.ID, "partition_key", p.PartitionKey)
	return p, nil
}

// UpdateProduct replaces an existing product. An empty partition key keeps the stored one;
// any other value must match it.
func (s *Service) UpdateProduct(ctx context.Context, p Product) (Product, error) {
	if err := validateProduct(p); err != nil {
		return Product{}, err
	}

	repo, err := s.newRepo()
	if err != nil {
		return Product{}, err
	}
	current, ok, err := repo.GetByID(ctx, p.ID)
	if err != nil {
		return Product{}, err
	}
	if !ok {
		return Product{}, &repository.ClientError{EntityID: p.ID, Err: repository.ErrNotFound}
	}
	if strings.TrimSpace(p.PartitionKey) == "" {
		p.PartitionKey = current.PartitionKey
	}

	if err := repo.Update(p); err != nil {
		return Product{}, err
	}
	if _, err := repo.SaveAll(ctx); err != nil {
		return Product{}, fmt.Errorf("failed to update product %d: %w", p.ID, err)
	}

	s.invalidateProjections(ctx)
	s.logger.Info("product updated", "product_id", p.ID)
	return p, nil
}

// DeleteProduct removes a product. It reports false when there was nothing to delete.
func (s *Service) DeleteProduct(ctx context.Context, id int64) (bool, error) {
	repo, err := s.newRepo()
	if err != nil {
		return false, err
	}
	current, ok, err := repo.GetByID(ctx, id)
	if err != nil || !ok {
		return false, err
	}

	repo.Remove(current)
	if _, err := repo.SaveAll(ctx); err != nil {
		return false, fmt.Errorf("failed to delete product %d: %w", id, err)
	}

	s.invalidateProjections(ctx)
	s.logger.Info("product deleted", "product_id", id)
	return true, nil
}

// Health checks the store and, when configured, the projection cache. A failing cache
// only degrades the catalog since reads fall back to the store.
func (s *Service) Health(ctx context.Context) health.AggregatedResult {
	return s.health.Check(ctx)
}

// HealthCheck fails when the catalog cannot serve queries.
func (s *Service) HealthCheck(ctx context.Context) error {
	result := s.Health(ctx)
	if result.IsServing() {
		return nil
	}
	var errs []error
	for _, check := range result.Checks {
		if check.Status == health.StatusUnhealthy {
			errs = append(errs, fmt.Errorf("%s: %s", check.Name, check.Error))
		}
	}
	return errors.Join(errs...)
}

// Close releases the storage adapter and the projection cache.
func (s *Service) Close() error {
	var errs []error
	if s.adapter != nil {
		errs = append(errs, s.adapter.Close())
	}
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	return errors.Join(errs...)
}

func validateProduct(p Product) error {
	var errs []error
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if p.Price < 0 {
		errs = append(errs, errors.New("price cannot be negative"))
	}
	if p.QuantityInStock < 0 {
		errs = append(errs, errors.New("quantity_in_stock cannot be negative"))
	}
	if p.ID < 0 {
		errs = append(errs, errors.New("id cannot be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidProduct, errors.Join(errs...))
	}
	return nil
}

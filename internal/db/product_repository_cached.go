package db

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/NicolaiBoKunkel/e-commerace-project/internal/cache"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/models"
)

// CachedProductRepository is a read-through cache over ProductRepository.
// Writes, including stock deductions from the event consumer, invalidate the
// affected keys so CRUD reads don't serve stale stock.
type CachedProductRepository struct {
	repo  *ProductRepository
	cache *cache.RedisCache
	log   *zap.SugaredLogger
}

func NewCachedProductRepository(log *zap.SugaredLogger, repo *ProductRepository, cache *cache.RedisCache) *CachedProductRepository {
	return &CachedProductRepository{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// Cache key helpers
func productKey(id string) string {
	return fmt.Sprintf("product:%s", id)
}

func allProductsKey() string {
	return "products:all"
}

// GetAll returns all products (with caching)
func (r *CachedProductRepository) GetAll(ctx context.Context) ([]models.Product, error) {
	cacheKey := allProductsKey()

	var products []models.Product
	err := r.cache.Get(ctx, cacheKey, &products)
	if err == nil {
		r.log.Debug("📦 Cache HIT: all products")
		return products, nil
	}

	r.log.Debug("💾 Cache MISS: all products - fetching from DB")
	products, err = r.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, cacheKey, products); err != nil {
		r.log.Warnf("⚠️ Failed to cache products: %v", err)
	}

	return products, nil
}

// GetByID returns a single product (with caching)
func (r *CachedProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	cacheKey := productKey(id)

	var product models.Product
	err := r.cache.Get(ctx, cacheKey, &product)
	if err == nil {
		r.log.Debugf("📦 Cache HIT: product %s", id)
		return &product, nil
	}

	if err != redis.Nil {
		r.log.Warnf("⚠️ Cache error: %v", err)
	}

	r.log.Debugf("💾 Cache MISS: product %s - fetching from DB", id)
	p, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if p == nil {
		return nil, nil
	}

	if err := r.cache.Set(ctx, cacheKey, p); err != nil {
		r.log.Warnf("⚠️ Failed to cache product: %v", err)
	}

	return p, nil
}

// Create inserts a new product and invalidates cache
func (r *CachedProductRepository) Create(ctx context.Context, req models.CreateProductRequest) (*models.Product, error) {
	product, err := r.repo.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Delete(ctx, allProductsKey()); err != nil {
		r.log.Warnf("⚠️ Failed to invalidate cache: %v", err)
	}

	return product, nil
}

// Delete removes a product and invalidates cache
func (r *CachedProductRepository) Delete(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cache.Delete(ctx, productKey(id))
	r.cache.Delete(ctx, allProductsKey())

	return nil
}

// DeductStock delegates to the guarded UPDATE and invalidates the cached
// entries for the product on success.
func (r *CachedProductRepository) DeductStock(ctx context.Context, id string, quantity int) (*models.Product, error) {
	product, err := r.repo.DeductStock(ctx, id, quantity)
	if err != nil {
		return nil, err
	}

	r.cache.Delete(ctx, productKey(id))
	r.cache.Delete(ctx, allProductsKey())

	return product, nil
}

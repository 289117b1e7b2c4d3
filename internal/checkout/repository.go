package checkout

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/putrabttart/dropstore-backend/pkg/db/models"
	pkgerrors "github.com/putrabttart/dropstore-backend/pkg/errors"
)

// ProductRepository loads sellable products.
type ProductRepository interface {
	WithTx(tx *gorm.DB) ProductRepository
	FindByCode(ctx context.Context, code string) (*models.Product, error)
}

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository builds a product repository backed by the provided DB.
func NewProductRepository(db *gorm.DB) ProductRepository {
	if db == nil {
		return nil
	}
	return &productRepository{db: db}
}

func (r *productRepository) WithTx(tx *gorm.DB) ProductRepository {
	if tx == nil {
		return r
	}
	return &productRepository{db: tx}
}

// FindByCode returns an active product or CodeNotFound. Inactive products are
// invisible to buyers.
func (r *productRepository) FindByCode(ctx context.Context, code string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("code = ? AND active = ?", code, true).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return &product, nil
}

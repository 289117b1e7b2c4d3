package checkout

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/putrabttart/dropstore-backend/pkg/db/models"
	pkgerrors "github.com/putrabttart/dropstore-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:checkout_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Product{}))
	return db
}

func TestFindByCodeReturnsActiveProduct(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	require.NoError(t, db.Create(&models.Product{
		Code:      "NFLX1M",
		Name:      "Streaming 1 Month",
		UnitPrice: decimal.NewFromInt(15000),
		Active:    true,
	}).Error)

	repo := NewProductRepository(db)
	product, err := repo.FindByCode(context.Background(), "NFLX1M")
	require.NoError(t, err)
	assert.Equal(t, "Streaming 1 Month", product.Name)
	assert.True(t, product.UnitPrice.Equal(decimal.NewFromInt(15000)))
}

func TestFindByCodeHidesInactiveProduct(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	require.NoError(t, db.Create(&models.Product{
		Code:      "GONE",
		Name:      "Retired",
		UnitPrice: decimal.NewFromInt(5000),
		Active:    false,
	}).Error)

	repo := NewProductRepository(db)
	_, err := repo.FindByCode(context.Background(), "GONE")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestFindByCodeMissingProduct(t *testing.T) {
	t.Parallel()

	repo := NewProductRepository(newTestDB(t))
	_, err := repo.FindByCode(context.Background(), "NOPE")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge_PreservesAbsentFields(t *testing.T) {
	persisted := Product{
		Name:     "Linen Shirt",
		Price:    "$120.00",
		URL:      "https://example.com/products/linen-shirt",
		Image:    "https://cdn.example.com/shirt.jpg",
		InStock:  false,
		Sizes:    []string{"S", "M"},
		Color:    "Navy",
		Quantity: 3,
	}

	// A listing-card snapshot carries no sizes, color or quantity.
	snapshot := Product{
		Name:    "Linen Shirt",
		Price:   "$110.00",
		URL:     "https://example.com/products/linen-shirt",
		InStock: true,
	}

	merged := persisted.Merge(snapshot)
	assert.Equal(t, "$110.00", merged.Price)
	assert.True(t, merged.InStock)
	assert.Equal(t, []string{"S", "M"}, merged.Sizes)
	assert.Equal(t, "Navy", merged.Color)
	assert.Equal(t, 3, merged.Quantity)
	assert.Equal(t, "https://cdn.example.com/shirt.jpg", merged.Image)
}

func TestMerge_InStockAlwaysTaken(t *testing.T) {
	persisted := Product{Name: "Linen Shirt", InStock: true}
	merged := persisted.Merge(Product{Name: "Linen Shirt", InStock: false})
	assert.False(t, merged.InStock)
}

func TestMerge_SnapshotOverwrites(t *testing.T) {
	persisted := Product{Name: "Old", Color: "Navy"}
	merged := persisted.Merge(Product{Name: "New", Color: "Moss", Quantity: 2})
	assert.Equal(t, "New", merged.Name)
	assert.Equal(t, "Moss", merged.Color)
	assert.Equal(t, 2, merged.Quantity)
}

func TestEffectiveQuantity(t *testing.T) {
	assert.Equal(t, 1, Product{}.EffectiveQuantity())
	assert.Equal(t, 1, Product{Quantity: -2}.EffectiveQuantity())
	assert.Equal(t, 4, Product{Quantity: 4}.EffectiveQuantity())
}

func TestPageTypeString(t *testing.T) {
	assert.Equal(t, "product", PageProduct.String())
	assert.Equal(t, "listing", PageListing.String())
	assert.Equal(t, "other", PageOther.String())
}

package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UnitKind enumerates how an ingredient is measured.
type UnitKind string

const (
	// UnitWeight quantities are stored in kilograms.
	UnitWeight UnitKind = "weight"
	// UnitCount quantities are whole pieces.
	UnitCount UnitKind = "count"
)

// Valid reports whether the unit kind is supported.
func (u UnitKind) Valid() bool {
	return u == UnitWeight || u == UnitCount
}

// Ingredient is a stock-keeping item counted at open and close.
type Ingredient struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Unit      UnitKind        `json:"unit"`
	UnitLabel string          `json:"unit_label"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Product groups sellable variants.
type Product struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	Variants  []Variant `json:"variants,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Variant is a sellable unit with a price and a recipe.
type Variant struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Active    bool            `json:"active"`
	Recipe    []RecipeEntry   `json:"recipe"`
}

// RecipeEntry defines consumption of one ingredient per unit sold.
type RecipeEntry struct {
	IngredientID int64           `json:"ingredient_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	IsPrimary    bool            `json:"is_primary"`
}

// Primaries returns every recipe entry flagged as primary.
func (v Variant) Primaries() []RecipeEntry {
	var out []RecipeEntry
	for _, entry := range v.Recipe {
		if entry.IsPrimary {
			out = append(out, entry)
		}
	}
	return out
}

// CreateIngredientInput captures a new ingredient.
type CreateIngredientInput struct {
	Name      string
	Unit      UnitKind
	UnitLabel string
	UnitCost  decimal.Decimal
	ActorID   int64
}

// Validate checks required fields.
func (in CreateIngredientInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: ingredient name required", ErrInvalidInput)
	}
	if !in.Unit.Valid() {
		return ErrInvalidUnit
	}
	if in.UnitCost.IsNegative() {
		return fmt.Errorf("%w: unit cost must be >= 0", ErrInvalidInput)
	}
	return nil
}

// UpdateIngredientInput changes display fields of an ingredient. Unit kind is immutable.
type UpdateIngredientInput struct {
	ID        int64
	Name      string
	UnitLabel string
	UnitCost  decimal.Decimal
	ActorID   int64
}

// CreateProductInput captures a new product.
type CreateProductInput struct {
	Name    string
	ActorID int64
}

// CreateVariantInput captures a new variant for a product.
type CreateVariantInput struct {
	ProductID int64
	Name      string
	Price     decimal.Decimal
	ActorID   int64
}

// Validate checks required fields.
func (in CreateVariantInput) Validate() error {
	if in.ProductID == 0 {
		return fmt.Errorf("%w: product required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: variant name required", ErrInvalidInput)
	}
	if in.Price.IsNegative() {
		return fmt.Errorf("%w: price must be >= 0", ErrInvalidInput)
	}
	return nil
}

// SetRecipeInput replaces the recipe of a variant.
type SetRecipeInput struct {
	VariantID int64
	Entries   []RecipeEntry
	ActorID   int64
}

var (
	// ErrIngredientNotFound indicates a missing ingredient.
	ErrIngredientNotFound = errors.New("catalog: ingredient not found")
	// ErrProductNotFound indicates a missing product.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrVariantNotFound indicates a missing variant.
	ErrVariantNotFound = errors.New("catalog: variant not found")
	// ErrInvalidUnit indicates an unsupported unit kind.
	ErrInvalidUnit = errors.New("catalog: unit must be weight or count")
	// ErrDuplicateName indicates a name clash.
	ErrDuplicateName = errors.New("catalog: name already exists")
	// ErrInvalidInput indicates a malformed create or update request.
	ErrInvalidInput = errors.New("catalog: invalid input")
)

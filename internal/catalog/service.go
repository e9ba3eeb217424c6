package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/daybook/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListIngredients(ctx context.Context, includeInactive bool) ([]Ingredient, error)
	GetIngredient(ctx context.Context, id int64) (Ingredient, error)
	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListVariants(ctx context.Context, includeInactive bool) ([]Variant, error)
	GetVariant(ctx context.Context, id int64) (Variant, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ChangeNotifier is told when catalog data that feeds reconciliation changes.
type ChangeNotifier interface {
	Bump(ctx context.Context) error
}

// Service coordinates catalog maintenance.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	changes ChangeNotifier
	now     func() time.Time
}

// NewService builds Service. audit and changes may be nil.
func NewService(repo RepositoryPort, audit AuditPort, changes ChangeNotifier) *Service {
	return &Service{
		repo:    repo,
		audit:   audit,
		changes: changes,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateIngredient registers a new ingredient.
func (s *Service) CreateIngredient(ctx context.Context, in CreateIngredientInput) (Ingredient, error) {
	if err := in.Validate(); err != nil {
		return Ingredient{}, err
	}
	ing := Ingredient{
		Name:      strings.TrimSpace(in.Name),
		Unit:      in.Unit,
		UnitLabel: strings.TrimSpace(in.UnitLabel),
		UnitCost:  in.UnitCost,
	}
	if ing.UnitLabel == "" {
		ing.UnitLabel = defaultLabel(in.Unit)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		ing, err = tx.InsertIngredient(ctx, ing)
		return err
	})
	if err != nil {
		return Ingredient{}, err
	}
	s.record(ctx, in.ActorID, "catalog:ingredient_created", "ingredient", ing.ID, map[string]any{
		"name": ing.Name,
		"unit": ing.Unit,
	})
	return ing, nil
}

// UpdateIngredient changes name, label or reference cost. The unit kind is fixed
// once created since historical counts depend on it.
func (s *Service) UpdateIngredient(ctx context.Context, in UpdateIngredientInput) (Ingredient, error) {
	if in.UnitCost.IsNegative() {
		return Ingredient{}, fmt.Errorf("%w: unit cost must be >= 0", ErrInvalidInput)
	}
	current, err := s.repo.GetIngredient(ctx, in.ID)
	if err != nil {
		return Ingredient{}, err
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		current.Name = name
	}
	if label := strings.TrimSpace(in.UnitLabel); label != "" {
		current.UnitLabel = label
	}
	current.UnitCost = in.UnitCost
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err = tx.UpdateIngredient(ctx, current)
		return err
	})
	if err != nil {
		return Ingredient{}, err
	}
	s.record(ctx, in.ActorID, "catalog:ingredient_updated", "ingredient", current.ID, map[string]any{
		"name":      current.Name,
		"unit_cost": current.UnitCost.String(),
	})
	s.bump(ctx)
	return current, nil
}

// DeactivateIngredient soft-deletes an ingredient. Historical snapshots keep
// referencing it.
func (s *Service) DeactivateIngredient(ctx context.Context, id, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetIngredientActive(ctx, id, false)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "catalog:ingredient_deactivated", "ingredient", id, nil)
	s.bump(ctx)
	return nil
}

// ListIngredients returns ingredients ordered by id.
func (s *Service) ListIngredients(ctx context.Context, includeInactive bool) ([]Ingredient, error) {
	return s.repo.ListIngredients(ctx, includeInactive)
}

// CreateProduct registers a product without variants.
func (s *Service) CreateProduct(ctx context.Context, in CreateProductInput) (Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Product{}, fmt.Errorf("%w: product name required", ErrInvalidInput)
	}
	var p Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		p, err = tx.InsertProduct(ctx, Product{Name: name})
		return err
	})
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, in.ActorID, "catalog:product_created", "product", p.ID, map[string]any{"name": p.Name})
	return p, nil
}

// ListProducts returns every product with its variants.
func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	return s.repo.ListProducts(ctx)
}

// CreateVariant adds a sellable variant. The recipe is set separately.
func (s *Service) CreateVariant(ctx context.Context, in CreateVariantInput) (Variant, error) {
	if err := in.Validate(); err != nil {
		return Variant{}, err
	}
	if _, err := s.repo.GetProduct(ctx, in.ProductID); err != nil {
		return Variant{}, err
	}
	v := Variant{ProductID: in.ProductID, Name: strings.TrimSpace(in.Name), Price: in.Price}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		v, err = tx.InsertVariant(ctx, v)
		return err
	})
	if err != nil {
		return Variant{}, err
	}
	s.record(ctx, in.ActorID, "catalog:variant_created", "variant", v.ID, map[string]any{
		"product_id": v.ProductID,
		"price":      v.Price.String(),
	})
	s.bump(ctx)
	return v, nil
}

// SetRecipe replaces a variant recipe. The single-primary rule, positive
// quantities, distinct and existing ingredients, an active primary and entry
// precision are enforced here so the engine only sees well-formed recipes.
func (s *Service) SetRecipe(ctx context.Context, in SetRecipeInput) (Variant, error) {
	ingredients, err := s.repo.ListIngredients(ctx, true)
	if err != nil {
		return Variant{}, err
	}
	byID := make(map[int64]Ingredient, len(ingredients))
	for _, ing := range ingredients {
		byID[ing.ID] = ing
	}
	lookup := func(id int64) (Ingredient, bool) {
		ing, ok := byID[id]
		return ing, ok
	}

	var out Variant
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		v, err := tx.GetVariantForUpdate(ctx, in.VariantID)
		if err != nil {
			return err
		}
		v.Recipe = in.Entries
		problems := CheckRecipe(v, lookup)
		problems = append(problems, checkRecipePrecision(v, lookup)...)
		if len(problems) > 0 {
			return &RecipeError{VariantID: v.ID, Problems: problems}
		}
		if err := tx.ReplaceRecipe(ctx, v.ID, in.Entries); err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return Variant{}, err
	}
	primary := out.Primaries()[0]
	s.record(ctx, in.ActorID, "catalog:recipe_set", "variant", out.ID, map[string]any{
		"entries":            len(out.Recipe),
		"primary_ingredient": primary.IngredientID,
		"primary_quantity":   primary.Quantity.String(),
	})
	s.bump(ctx)
	return out, nil
}

// DeactivateVariant removes a variant from future reconciliations.
func (s *Service) DeactivateVariant(ctx context.Context, id, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetVariantActive(ctx, id, false)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "catalog:variant_deactivated", "variant", id, nil)
	s.bump(ctx)
	return nil
}

// ListVariants returns variants with recipes attached.
func (s *Service) ListVariants(ctx context.Context, includeInactive bool) ([]Variant, error) {
	return s.repo.ListVariants(ctx, includeInactive)
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	})
}

func (s *Service) bump(ctx context.Context) {
	if s.changes == nil {
		return
	}
	_ = s.changes.Bump(ctx)
}

func defaultLabel(u UnitKind) string {
	if u == UnitCount {
		return "pcs"
	}
	return "kg"
}

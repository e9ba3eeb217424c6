package cataloghttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/daybook/internal/catalog"
	"github.com/odyssey-erp/daybook/internal/platform/httpx"
)

type catalogService interface {
	CreateIngredient(ctx context.Context, in catalog.CreateIngredientInput) (catalog.Ingredient, error)
	UpdateIngredient(ctx context.Context, in catalog.UpdateIngredientInput) (catalog.Ingredient, error)
	DeactivateIngredient(ctx context.Context, id, actorID int64) error
	ListIngredients(ctx context.Context, includeInactive bool) ([]catalog.Ingredient, error)
	CreateProduct(ctx context.Context, in catalog.CreateProductInput) (catalog.Product, error)
	ListProducts(ctx context.Context) ([]catalog.Product, error)
	CreateVariant(ctx context.Context, in catalog.CreateVariantInput) (catalog.Variant, error)
	SetRecipe(ctx context.Context, in catalog.SetRecipeInput) (catalog.Variant, error)
	DeactivateVariant(ctx context.Context, id, actorID int64) error
	ListVariants(ctx context.Context, includeInactive bool) ([]catalog.Variant, error)
}

// Handler exposes catalog maintenance over JSON.
type Handler struct {
	logger  *slog.Logger
	service catalogService
}

// NewHandler constructs the catalog HTTP handler.
func NewHandler(logger *slog.Logger, service catalogService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/ingredients", func(r chi.Router) {
		r.Get("/", h.listIngredients)
		r.Post("/", h.createIngredient)
		r.Patch("/{id}", h.updateIngredient)
		r.Post("/{id}/deactivate", h.deactivateIngredient)
	})
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Post("/", h.createProduct)
		r.Post("/{id}/variants", h.createVariant)
	})
	r.Route("/variants", func(r chi.Router) {
		r.Get("/", h.listVariants)
		r.Put("/{id}/recipe", h.setRecipe)
		r.Post("/{id}/deactivate", h.deactivateVariant)
	})
}

type ingredientRequest struct {
	Name      string           `json:"name" validate:"required,max=120"`
	Unit      catalog.UnitKind `json:"unit" validate:"required,oneof=weight count"`
	UnitLabel string           `json:"unit_label" validate:"max=16"`
	UnitCost  decimal.Decimal  `json:"unit_cost"`
}

type ingredientUpdateRequest struct {
	Name      string          `json:"name" validate:"max=120"`
	UnitLabel string          `json:"unit_label" validate:"max=16"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

type productRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

type variantRequest struct {
	Name  string          `json:"name" validate:"required,max=120"`
	Price decimal.Decimal `json:"price"`
}

type recipeRequest struct {
	Entries []recipeEntryRequest `json:"entries" validate:"required,min=1,dive"`
}

type recipeEntryRequest struct {
	IngredientID int64           `json:"ingredient_id" validate:"required,gt=0"`
	Quantity     decimal.Decimal `json:"quantity"`
	IsPrimary    bool            `json:"is_primary"`
}

func (h *Handler) listIngredients(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListIngredients(r.Context(), r.URL.Query().Get("include_inactive") == "true")
	if err != nil {
		h.fail(w, "list ingredients", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ingredients": emptyIfNil(items)})
}

func (h *Handler) createIngredient(w http.ResponseWriter, r *http.Request) {
	var req ingredientRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ing, err := h.service.CreateIngredient(r.Context(), catalog.CreateIngredientInput{
		Name:      req.Name,
		Unit:      req.Unit,
		UnitLabel: req.UnitLabel,
		UnitCost:  req.UnitCost,
		ActorID:   httpx.ActorID(r),
	})
	if err != nil {
		h.fail(w, "create ingredient", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ing)
}

func (h *Handler) updateIngredient(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ingredientUpdateRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ing, err := h.service.UpdateIngredient(r.Context(), catalog.UpdateIngredientInput{
		ID:        id,
		Name:      req.Name,
		UnitLabel: req.UnitLabel,
		UnitCost:  req.UnitCost,
		ActorID:   httpx.ActorID(r),
	})
	if err != nil {
		h.fail(w, "update ingredient", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ing)
}

func (h *Handler) deactivateIngredient(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeactivateIngredient(r.Context(), id, httpx.ActorID(r)); err != nil {
		h.fail(w, "deactivate ingredient", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.fail(w, "list products", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": emptyIfNil(items)})
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.CreateProduct(r.Context(), catalog.CreateProductInput{Name: req.Name, ActorID: httpx.ActorID(r)})
	if err != nil {
		h.fail(w, "create product", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) createVariant(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req variantRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.CreateVariant(r.Context(), catalog.CreateVariantInput{
		ProductID: productID,
		Name:      req.Name,
		Price:     req.Price,
		ActorID:   httpx.ActorID(r),
	})
	if err != nil {
		h.fail(w, "create variant", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, v)
}

func (h *Handler) listVariants(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListVariants(r.Context(), r.URL.Query().Get("include_inactive") == "true")
	if err != nil {
		h.fail(w, "list variants", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"variants": emptyIfNil(items)})
}

func (h *Handler) setRecipe(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req recipeRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entries := make([]catalog.RecipeEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		entries = append(entries, catalog.RecipeEntry{IngredientID: e.IngredientID, Quantity: e.Quantity, IsPrimary: e.IsPrimary})
	}
	v, err := h.service.SetRecipe(r.Context(), catalog.SetRecipeInput{VariantID: id, Entries: entries, ActorID: httpx.ActorID(r)})
	if err != nil {
		h.fail(w, "set recipe", err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) deactivateVariant(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeactivateVariant(r.Context(), id, httpx.ActorID(r)); err != nil {
		h.fail(w, "deactivate variant", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	var recipeErr *catalog.RecipeError
	switch {
	case errors.As(err, &recipeErr):
		httpx.ProblemWithErrors(w, http.StatusUnprocessableEntity, "Invalid Recipe", recipeErr.Error(), recipeErr.Problems)
	case errors.Is(err, catalog.ErrIngredientNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, catalog.ErrVariantNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, catalog.ErrDuplicateName):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, catalog.ErrInvalidUnit), errors.Is(err, catalog.ErrInvalidQuantity), errors.Is(err, catalog.ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		var verr *httpx.ValidationError
		if errors.As(err, &verr) {
			httpx.RespondError(w, err)
			return
		}
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/daybook/internal/platform/db"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository persists catalog data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	db   dbtx
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, db: pool}
}

// TxRepository exposes the write operations used by the service.
type TxRepository interface {
	InsertIngredient(ctx context.Context, ing Ingredient) (Ingredient, error)
	UpdateIngredient(ctx context.Context, ing Ingredient) (Ingredient, error)
	SetIngredientActive(ctx context.Context, id int64, active bool) error
	InsertProduct(ctx context.Context, p Product) (Product, error)
	InsertVariant(ctx context.Context, v Variant) (Variant, error)
	SetVariantActive(ctx context.Context, id int64, active bool) error
	GetVariantForUpdate(ctx context.Context, id int64) (Variant, error)
	ReplaceRecipe(ctx context.Context, variantID int64, entries []RecipeEntry) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const ingredientColumns = `id, name, unit, unit_label, unit_cost, active, created_at, updated_at`

func scanIngredient(row pgx.Row) (Ingredient, error) {
	var ing Ingredient
	err := row.Scan(&ing.ID, &ing.Name, &ing.Unit, &ing.UnitLabel, &ing.UnitCost, &ing.Active, &ing.CreatedAt, &ing.UpdatedAt)
	return ing, err
}

// ListIngredients returns ingredients ordered by id.
func (r *Repository) ListIngredients(ctx context.Context, includeInactive bool) ([]Ingredient, error) {
	rows, err := r.db.Query(ctx, `SELECT `+ingredientColumns+` FROM ingredients WHERE active OR $1 ORDER BY id`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Ingredient
	for rows.Next() {
		ing, err := scanIngredient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ing)
	}
	return out, rows.Err()
}

// GetIngredient loads an ingredient by id.
func (r *Repository) GetIngredient(ctx context.Context, id int64) (Ingredient, error) {
	ing, err := scanIngredient(r.db.QueryRow(ctx, `SELECT `+ingredientColumns+` FROM ingredients WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Ingredient{}, ErrIngredientNotFound
	}
	return ing, err
}

// ListProducts returns products with their variants and recipes.
func (r *Repository) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, active, created_at FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Active, &p.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		products = append(products, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	variants, err := r.ListVariants(ctx, true)
	if err != nil {
		return nil, err
	}
	byProduct := make(map[int64][]Variant, len(products))
	for _, v := range variants {
		byProduct[v.ProductID] = append(byProduct[v.ProductID], v)
	}
	for i := range products {
		products[i].Variants = byProduct[products[i].ID]
	}
	return products, nil
}

// GetProduct loads a product without variants.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.db.QueryRow(ctx, `SELECT id, name, active, created_at FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.Active, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

// ListVariants returns variants ordered by id with recipes attached.
func (r *Repository) ListVariants(ctx context.Context, includeInactive bool) ([]Variant, error) {
	rows, err := r.db.Query(ctx, `SELECT v.id, v.product_id, v.name, v.price, v.active AND p.active
		FROM product_variants v JOIN products p ON p.id = v.product_id
		WHERE (v.active AND p.active) OR $1
		ORDER BY v.id`, includeInactive)
	if err != nil {
		return nil, err
	}
	var variants []Variant
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name, &v.Price, &v.Active); err != nil {
			rows.Close()
			return nil, err
		}
		variants = append(variants, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	recipes, err := loadRecipes(ctx, r.db)
	if err != nil {
		return nil, err
	}
	for i := range variants {
		variants[i].Recipe = recipes[variants[i].ID]
	}
	return variants, nil
}

// GetVariant loads a variant with its recipe.
func (r *Repository) GetVariant(ctx context.Context, id int64) (Variant, error) {
	return getVariant(ctx, r.db, id, false)
}

func getVariant(ctx context.Context, q dbtx, id int64, lock bool) (Variant, error) {
	query := `SELECT id, product_id, name, price, active FROM product_variants WHERE id=$1`
	if lock {
		query += ` FOR UPDATE`
	}
	var v Variant
	err := q.QueryRow(ctx, query, id).Scan(&v.ID, &v.ProductID, &v.Name, &v.Price, &v.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Variant{}, ErrVariantNotFound
	}
	if err != nil {
		return Variant{}, err
	}
	rows, err := q.Query(ctx, `SELECT ingredient_id, quantity, is_primary FROM recipe_entries WHERE variant_id=$1 ORDER BY ingredient_id`, id)
	if err != nil {
		return Variant{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var entry RecipeEntry
		if err := rows.Scan(&entry.IngredientID, &entry.Quantity, &entry.IsPrimary); err != nil {
			return Variant{}, err
		}
		v.Recipe = append(v.Recipe, entry)
	}
	return v, rows.Err()
}

func loadRecipes(ctx context.Context, q dbtx) (map[int64][]RecipeEntry, error) {
	rows, err := q.Query(ctx, `SELECT variant_id, ingredient_id, quantity, is_primary FROM recipe_entries ORDER BY variant_id, ingredient_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]RecipeEntry)
	for rows.Next() {
		var variantID int64
		var entry RecipeEntry
		if err := rows.Scan(&variantID, &entry.IngredientID, &entry.Quantity, &entry.IsPrimary); err != nil {
			return nil, err
		}
		out[variantID] = append(out[variantID], entry)
	}
	return out, rows.Err()
}

func (t *txRepo) InsertIngredient(ctx context.Context, ing Ingredient) (Ingredient, error) {
	out, err := scanIngredient(t.tx.QueryRow(ctx, `INSERT INTO ingredients (name, unit, unit_label, unit_cost, active)
		VALUES ($1, $2, $3, $4, TRUE) RETURNING `+ingredientColumns,
		ing.Name, ing.Unit, ing.UnitLabel, ing.UnitCost))
	return out, mapUnique(err)
}

func (t *txRepo) UpdateIngredient(ctx context.Context, ing Ingredient) (Ingredient, error) {
	out, err := scanIngredient(t.tx.QueryRow(ctx, `UPDATE ingredients SET name=$2, unit_label=$3, unit_cost=$4, updated_at=NOW()
		WHERE id=$1 RETURNING `+ingredientColumns,
		ing.ID, ing.Name, ing.UnitLabel, ing.UnitCost))
	if errors.Is(err, pgx.ErrNoRows) {
		return Ingredient{}, ErrIngredientNotFound
	}
	return out, mapUnique(err)
}

func (t *txRepo) SetIngredientActive(ctx context.Context, id int64, active bool) error {
	tag, err := t.tx.Exec(ctx, `UPDATE ingredients SET active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIngredientNotFound
	}
	return nil
}

func (t *txRepo) InsertProduct(ctx context.Context, p Product) (Product, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO products (name, active) VALUES ($1, TRUE) RETURNING id, active, created_at`, p.Name).
		Scan(&p.ID, &p.Active, &p.CreatedAt)
	return p, mapUnique(err)
}

func (t *txRepo) InsertVariant(ctx context.Context, v Variant) (Variant, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO product_variants (product_id, name, price, active) VALUES ($1, $2, $3, TRUE) RETURNING id, active`,
		v.ProductID, v.Name, v.Price).Scan(&v.ID, &v.Active)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return Variant{}, ErrProductNotFound
	}
	return v, mapUnique(err)
}

func (t *txRepo) SetVariantActive(ctx context.Context, id int64, active bool) error {
	tag, err := t.tx.Exec(ctx, `UPDATE product_variants SET active=$2 WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVariantNotFound
	}
	return nil
}

func (t *txRepo) GetVariantForUpdate(ctx context.Context, id int64) (Variant, error) {
	return getVariant(ctx, t.tx, id, true)
}

func (t *txRepo) ReplaceRecipe(ctx context.Context, variantID int64, entries []RecipeEntry) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM recipe_entries WHERE variant_id=$1`, variantID); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, entry := range entries {
		batch.Queue(`INSERT INTO recipe_entries (variant_id, ingredient_id, quantity, is_primary) VALUES ($1, $2, $3, $4)`,
			variantID, entry.IngredientID, entry.Quantity, entry.IsPrimary)
	}
	if batch.Len() == 0 {
		return nil
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func mapUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateName
	}
	return err
}

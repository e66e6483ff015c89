package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/NicolaiBoKunkel/e-commerace-project/internal/models"
)

// ErrInsufficientStock is returned by DeductStock when the requested quantity
// exceeds what is available at evaluation time.
var ErrInsufficientStock = errors.New("insufficient stock")

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(database *PostgresDB) *ProductRepository {
	return &ProductRepository{db: database.Conn}
}

// GetAll returns all products
func (r *ProductRepository) GetAll(ctx context.Context) ([]models.Product, error) {
	query := "SELECT id, name, price, stock, created_at FROM products ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	return products, nil
}

// GetByID returns a single product
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	query := "SELECT id, name, price, stock, created_at FROM products WHERE id = $1"

	var p models.Product
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return &p, nil
}

// Create inserts a new product
func (r *ProductRepository) Create(ctx context.Context, req models.CreateProductRequest) (*models.Product, error) {
	query := `
		INSERT INTO products (id, name, price, stock)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, price, stock, created_at
	`

	var p models.Product
	err := r.db.QueryRowContext(ctx, query, req.ID, req.Name, req.Price, req.Stock).
		Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	return &p, nil
}

// Delete removes a product
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	query := "DELETE FROM products WHERE id = $1"

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("product not found")
	}

	return nil
}

// DeductStock subtracts quantity from a product's stock in a single guarded
// UPDATE, so the read-modify-write is atomic in the database and stock can
// never go negative — even when the same product appears twice in one order
// or in overlapping messages. Returns ErrInsufficientStock when the guard
// rejects the deduction.
func (r *ProductRepository) DeductStock(ctx context.Context, id string, quantity int) (*models.Product, error) {
	query := `
		UPDATE products
		SET stock = stock - $2
		WHERE id = $1 AND stock >= $2
		RETURNING id, name, price, stock, created_at
	`

	var p models.Product
	err := r.db.QueryRowContext(ctx, query, id, quantity).
		Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrInsufficientStock
		}
		return nil, fmt.Errorf("failed to deduct stock: %w", err)
	}

	return &p, nil
}

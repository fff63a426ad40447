package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pharmatech-uz/pharmacy-core/internal/domain"
)

type CartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) *CartRepository {
	return &CartRepository{db: db}
}

// GetByUser returns the user's cart with items, creating the cart row on
// first use.
func (r *CartRepository) GetByUser(ctx context.Context, userID string) (*domain.Cart, error) {
	cart := &domain.Cart{UserID: userID}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, created_at FROM carts WHERE user_id = $1
	`, userID).Scan(&cart.ID, &cart.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		cart.ID = uuid.New().String()
		cart.CreatedAt = time.Now().UTC()
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO carts (id, user_id, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO NOTHING
		`, cart.ID, userID, cart.CreatedAt)
		if err != nil {
			return nil, err
		}
		// Concurrent first use may have won the insert.
		err = r.db.QueryRowContext(ctx, `
			SELECT id, created_at FROM carts WHERE user_id = $1
		`, userID).Scan(&cart.ID, &cart.CreatedAt)
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT ci.id, ci.product_id, p.name, p.price, ci.quantity
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.created_at
	`, cart.ID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cart.Items = []domain.CartItem{}
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Name, &item.Price, &item.Quantity); err != nil {
			return nil, err
		}
		cart.Items = append(cart.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return cart, nil
}

// AddItem upserts a cart item, accumulating quantity for repeated adds of
// the same product.
func (r *CartRepository) AddItem(ctx context.Context, userID, productID string, quantity int) error {
	if quantity < domain.CartItemMinQuantity || quantity > domain.CartItemMaxQuantity {
		return domain.ErrInvalidQuantity
	}
	if uuid.Validate(productID) != nil {
		return domain.ErrProductNotFound
	}

	cart, err := r.GetByUser(ctx, userID)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var stock int
	var active bool
	err = tx.QueryRowContext(ctx, `
		SELECT stock, active FROM products WHERE id = $1
	`, productID).Scan(&stock, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrProductNotFound
	}
	if err != nil {
		return err
	}
	if !active {
		return domain.ErrProductNotFound
	}
	if stock < quantity {
		return domain.ErrInsufficientStock
	}

	var newQuantity int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO cart_items (id, cart_id, product_id, quantity, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING quantity
	`, uuid.New().String(), cart.ID, productID, quantity).Scan(&newQuantity)
	if err != nil {
		return err
	}

	if newQuantity > domain.CartItemMaxQuantity {
		return fmt.Errorf("%w: cart would hold %d", domain.ErrInvalidQuantity, newQuantity)
	}

	return tx.Commit()
}

func (r *CartRepository) UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) error {
	if quantity < domain.CartItemMinQuantity || quantity > domain.CartItemMaxQuantity {
		return domain.ErrInvalidQuantity
	}
	// Same outcome as the conditional update missing: nothing to change.
	if uuid.Validate(itemID) != nil {
		return domain.ErrInsufficientStock
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE cart_items ci
		SET quantity = $3
		FROM carts c, products p
		WHERE ci.id = $2 AND c.id = ci.cart_id AND c.user_id = $1
		  AND p.id = ci.product_id AND p.stock >= $3
	`, userID, itemID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return domain.ErrInsufficientStock
	}

	return nil
}

func (r *CartRepository) RemoveItem(ctx context.Context, userID, itemID string) error {
	if uuid.Validate(itemID) != nil {
		return domain.ErrProductNotFound
	}

	result, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_items ci
		USING carts c
		WHERE ci.id = $2 AND c.id = ci.cart_id AND c.user_id = $1
	`, userID, itemID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return domain.ErrProductNotFound
	}

	return nil
}

func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_items ci
		USING carts c
		WHERE c.id = ci.cart_id AND c.user_id = $1
	`, userID)
	return err
}

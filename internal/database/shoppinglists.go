package database

import (
	"context"
	"fmt"
)

// CreateShoppingList creates a new named list for a user.
func CreateShoppingList(ctx context.Context, userID int64, name string) (*ShoppingList, error) {
	pool := Pool()

	var l ShoppingList
	err := pool.QueryRow(ctx, `
		INSERT INTO shopping_lists (user_id, name, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING id, user_id, name, created_at, updated_at
	`, userID, name).Scan(&l.ID, &l.UserID, &l.Name, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create shopping list for user %d: %w", userID, err)
	}
	return &l, nil
}

// AddShoppingListItem appends a free-text or resolved item to a list.
func AddShoppingListItem(ctx context.Context, listID int64, productID *int64, rawText string, quantity int) (*ShoppingListItem, error) {
	pool := Pool()

	var item ShoppingListItem
	err := pool.QueryRow(ctx, `
		INSERT INTO shopping_list_items (shopping_list_id, product_id, raw_text, quantity)
		VALUES ($1, $2, $3, $4)
		RETURNING id, shopping_list_id, product_id, raw_text, quantity
	`, listID, productID, rawText, quantity).Scan(
		&item.ID, &item.ShoppingListID, &item.ProductID, &item.RawText, &item.Quantity,
	)
	if err != nil {
		return nil, fmt.Errorf("add shopping list item to list %d: %w", listID, err)
	}
	return &item, nil
}

// GetShoppingListItems returns every item on a list, in insertion order.
func GetShoppingListItems(ctx context.Context, listID int64) ([]ShoppingListItem, error) {
	pool := Pool()

	rows, err := pool.Query(ctx, `
		SELECT id, shopping_list_id, product_id, raw_text, quantity
		FROM shopping_list_items
		WHERE shopping_list_id = $1
		ORDER BY id
	`, listID)
	if err != nil {
		return nil, fmt.Errorf("query shopping list items for list %d: %w", listID, err)
	}
	defer rows.Close()

	out := make([]ShoppingListItem, 0)
	for rows.Next() {
		var item ShoppingListItem
		if err := rows.Scan(
			&item.ID, &item.ShoppingListID, &item.ProductID, &item.RawText, &item.Quantity,
		); err != nil {
			return nil, fmt.Errorf("scan shopping list item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// ListShoppingListsByUser returns every list owned by a user.
func ListShoppingListsByUser(ctx context.Context, userID int64) ([]ShoppingList, error) {
	pool := Pool()

	rows, err := pool.Query(ctx, `
		SELECT id, user_id, name, created_at, updated_at
		FROM shopping_lists WHERE user_id = $1 ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list shopping lists for user %d: %w", userID, err)
	}
	defer rows.Close()

	out := make([]ShoppingList, 0)
	for rows.Next() {
		var l ShoppingList
		if err := rows.Scan(&l.ID, &l.UserID, &l.Name, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan shopping list: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

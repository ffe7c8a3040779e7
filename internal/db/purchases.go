package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jonathan/purchase-tracker/internal/types"
)

// -----------------------------------------------------------------------------
// Purchase History Methods
// -----------------------------------------------------------------------------

var itemSortColumns = map[string]string{
	"title":      "i.title",
	"asin":       "i.asin",
	"price":      "i.price",
	"order_date": "o.order_date",
}

var repeatSortColumns = map[string]string{
	"title":          "title",
	"current_price":  "current_price",
	"current_date":   "current_on",
	"previous_price": "previous_price",
	"previous_date":  "previous_on",
}

// SpendingSummary totals owner's orders overall and per month. An order
// without a stored total counts the sum of its lines.
func (db *DB) SpendingSummary(ctx context.Context, owner uuid.UUID) (*types.SpendingSummary, error) {
	rows, err := db.pool.Query(ctx,
		`WITH amounts AS (
		     SELECT date_trunc('month', o.order_date) AS month,
		            COALESCE(o.total,
		                     (SELECT SUM(i.price * i.quantity) FROM order_items i WHERE i.order_id = o.id),
		                     0) AS amount
		     FROM orders o
		     WHERE o.user_id = $1
		 )
		 SELECT to_char(month, 'YYYY-MM'), SUM(amount), COUNT(*)
		 FROM amounts
		 GROUP BY month
		 ORDER BY month NULLS LAST`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query spending summary: %w", err)
	}
	defer rows.Close()

	summary := &types.SpendingSummary{SpendingTrend: []types.MonthlySpending{}}
	for rows.Next() {
		var month *string
		var amount decimal.Decimal
		var orders int
		if err := rows.Scan(&month, &amount, &orders); err != nil {
			return nil, fmt.Errorf("failed to scan monthly spending: %w", err)
		}
		summary.TotalSpending = summary.TotalSpending.Add(amount)
		summary.TotalOrders += orders
		// undated orders count toward the totals only
		if month != nil {
			summary.SpendingTrend = append(summary.SpendingTrend, types.MonthlySpending{
				Month:         *month,
				TotalSpending: amount,
				Orders:        orders,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating spending summary: %w", err)
	}
	return summary, nil
}

// ListPurchasedItems returns one page of owner's order lines.
func (db *DB) ListPurchasedItems(ctx context.Context, owner uuid.UUID, q types.ItemQuery) (*types.ItemPage, error) {
	column, ok := itemSortColumns[q.SortBy]
	if !ok {
		return nil, fmt.Errorf("unsupported item sort %q", q.SortBy)
	}
	where := `FROM order_items i JOIN orders o ON o.id = i.order_id
		WHERE o.user_id = $1
		  AND ($2::text IS NULL OR i.title ILIKE $2 OR o.order_date::text ILIKE $2)`
	pattern := likePattern(q.Filter)

	page := &types.ItemPage{Data: []types.PurchasedItem{}, Page: q.Page, Limit: q.Limit}
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) `+where, owner, pattern).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("failed to count purchased items: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT o.external_order_id, o.order_date, i.title, i.asin, i.url, i.price, i.quantity `+where+`
		 ORDER BY `+column+` `+sortDirection(q.SortOrder)+` NULLS LAST, o.order_date DESC, i.line_no
		 LIMIT $3 OFFSET $4`,
		owner, pattern, q.Limit, q.Offset(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchased items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it types.PurchasedItem
		if err := rows.Scan(&it.OrderID, &it.OrderDate, &it.Title, &it.ASIN, &it.URL, &it.Price, &it.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan purchased item: %w", err)
		}
		page.Data = append(page.Data, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purchased items: %w", err)
	}
	return page, nil
}

// RepeatItems returns products owner bought in more than one order line,
// with the latest unit price and up to three earlier ones.
func (db *DB) RepeatItems(ctx context.Context, owner uuid.UUID, q types.RepeatItemQuery) ([]types.RepeatItem, error) {
	column, ok := repeatSortColumns[q.SortBy]
	if !ok {
		return nil, fmt.Errorf("unsupported repeat item sort %q", q.SortBy)
	}

	rows, err := db.pool.Query(ctx,
		`WITH ranked AS (
		     SELECT i.asin, i.title, i.url, i.price, o.order_date,
		            ROW_NUMBER() OVER (
		                PARTITION BY i.asin
		                ORDER BY o.order_date DESC NULLS LAST, o.created_at DESC, i.line_no
		            ) AS rn
		     FROM order_items i JOIN orders o ON o.id = i.order_id
		     WHERE o.user_id = $1 AND i.asin IS NOT NULL
		 ),
		 repeats AS (
		     SELECT cur.asin, cur.title, cur.url,
		            cur.price AS current_price, cur.order_date AS current_on,
		            p1.price AS previous_price, p1.order_date AS previous_on,
		            p2.price AS p2_price, p2.order_date AS p2_on,
		            p3.price AS p3_price, p3.order_date AS p3_on
		     FROM ranked cur
		     JOIN ranked p1 ON p1.asin = cur.asin AND p1.rn = 2
		     LEFT JOIN ranked p2 ON p2.asin = cur.asin AND p2.rn = 3
		     LEFT JOIN ranked p3 ON p3.asin = cur.asin AND p3.rn = 4
		     WHERE cur.rn = 1
		 )
		 SELECT asin, title, url, current_price, current_on, previous_price, previous_on,
		        p2_price, p2_on, p3_price, p3_on
		 FROM repeats
		 WHERE ($2::text IS NULL OR title ILIKE $2)
		   AND (NOT $3::boolean OR current_price <> previous_price)
		 ORDER BY `+column+` `+sortDirection(q.SortOrder)+` NULLS LAST, title, asin`,
		owner, likePattern(q.Filter), q.PriceChangedOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query repeat items: %w", err)
	}
	defer rows.Close()

	items := []types.RepeatItem{}
	for rows.Next() {
		var it types.RepeatItem
		var prev types.PricePoint
		var p2, p3 decimal.NullDecimal
		var p2On, p3On *time.Time
		if err := rows.Scan(&it.ASIN, &it.Title, &it.URL, &it.Current.Price, &it.Current.Date,
			&prev.Price, &prev.Date, &p2, &p2On, &p3, &p3On); err != nil {
			return nil, fmt.Errorf("failed to scan repeat item: %w", err)
		}
		it.Previous = []types.PricePoint{prev}
		if p2.Valid {
			it.Previous = append(it.Previous, types.PricePoint{Price: p2.Decimal, Date: p2On})
		}
		if p3.Valid {
			it.Previous = append(it.Previous, types.PricePoint{Price: p3.Decimal, Date: p3On})
		}
		it.PriceChange = it.Current.Price.Sub(prev.Price)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating repeat items: %w", err)
	}
	return items, nil
}

// likePattern turns a filter into an ILIKE substring pattern, or nil for no filter.
func likePattern(filter string) *string {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return nil
	}
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(filter)
	pattern := "%" + escaped + "%"
	return &pattern
}

func sortDirection(order string) string {
	if strings.EqualFold(order, "asc") {
		return "ASC"
	}
	return "DESC"
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-fan-billing/app/entity"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAlreadyExists = errors.New("order already exists")
)

const orderColumns = `
	id, user_id, package_id, payment_method, subtotal, tax, total, currency, status,
	invoice_url, apple_original_transaction_id, google_purchase_token, google_purchase_id,
	callback_payload, expired_at, created_at, updated_at
`

type OrderRepository struct {
	db DBTX
}

func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, order *entity.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		order.ID,
		order.UserID,
		order.PackageID,
		string(order.PaymentMethod),
		order.Subtotal,
		order.Tax,
		order.Total,
		order.Currency,
		string(order.Status),
		nullableStringValue(order.InvoiceURL),
		nullableStringValue(order.AppleOriginalTransactionID),
		nullableStringValue(order.GooglePurchaseToken),
		nullableStringValue(order.GooglePurchaseID),
		nullableBytesValue(order.CallbackPayload),
		nullableTimeValue(order.ExpiredAt),
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrOrderAlreadyExists
		}
		return err
	}
	return nil
}

func (r *OrderRepository) Update(ctx context.Context, order *entity.Order) error {
	query := `
		UPDATE orders
		SET status = ?, invoice_url = ?, apple_original_transaction_id = ?,
		    google_purchase_token = ?, google_purchase_id = ?, callback_payload = ?,
		    expired_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(order.Status),
		nullableStringValue(order.InvoiceURL),
		nullableStringValue(order.AppleOriginalTransactionID),
		nullableStringValue(order.GooglePurchaseToken),
		nullableStringValue(order.GooglePurchaseID),
		nullableBytesValue(order.CallbackPayload),
		nullableTimeValue(order.ExpiredAt),
		order.UpdatedAt,
		order.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	return r.findOne(ctx, query, id)
}

// LockByID reads the order with a row lock; callers must run inside a transaction.
func (r *OrderRepository) LockByID(ctx context.Context, id string) (*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ? FOR UPDATE`
	return r.findOne(ctx, query, id)
}

func (r *OrderRepository) LockLatestByAppleOriginalTransactionID(ctx context.Context, originalTransactionID string) (*entity.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE apple_original_transaction_id = ?
		  AND payment_method = ?
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`
	return r.findOne(ctx, query, originalTransactionID, string(entity.PaymentMethodAppleIAP))
}

func (r *OrderRepository) LockByGooglePurchaseToken(ctx context.Context, purchaseToken string) (*entity.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE google_purchase_token = ?
		  AND payment_method = ?
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`
	return r.findOne(ctx, query, purchaseToken, string(entity.PaymentMethodGooglePlay))
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = ? ORDER BY created_at DESC`
	return r.listByQuery(ctx, query, userID)
}

func (r *OrderRepository) ListEntitledByUser(ctx context.Context, userID string, now time.Time) ([]*entity.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = ?
		  AND status = ?
		  AND expired_at IS NOT NULL
		  AND expired_at > ?
		ORDER BY expired_at DESC
	`
	return r.listByQuery(ctx, query, userID, string(entity.OrderStatusSuccess), now)
}

func (r *OrderRepository) ListExpired(ctx context.Context, now time.Time) ([]*entity.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = ?
		  AND expired_at IS NOT NULL
		  AND expired_at < ?
		ORDER BY expired_at ASC
	`
	return r.listByQuery(ctx, query, string(entity.OrderStatusSuccess), now)
}

func (r *OrderRepository) HasEntitledOrder(ctx context.Context, userID string, now time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM orders
			WHERE user_id = ? AND status = ? AND expired_at IS NOT NULL AND expired_at > ?
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, string(entity.OrderStatusSuccess), now).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *OrderRepository) HasOtherEntitledOrder(ctx context.Context, userID, excludeOrderID string, now time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM orders
			WHERE user_id = ? AND id <> ? AND status = ? AND expired_at IS NOT NULL AND expired_at > ?
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, excludeOrderID, string(entity.OrderStatusSuccess), now).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *OrderRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.Order, error) {
	item := &entity.Order{}
	if err := scanOrder(r.db.QueryRowContext(ctx, query, args...), item); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *OrderRepository) listByQuery(ctx context.Context, query string, args ...interface{}) ([]*entity.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.Order, 0)
	for rows.Next() {
		item := &entity.Order{}
		if err := scanOrder(rows, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanOrder(scanner rowScanner, item *entity.Order) error {
	var paymentMethod string
	var status string
	var invoiceURL sql.NullString
	var appleOriginalTransactionID sql.NullString
	var googlePurchaseToken sql.NullString
	var googlePurchaseID sql.NullString
	var payload []byte
	var expiredAt sql.NullTime

	err := scanner.Scan(
		&item.ID,
		&item.UserID,
		&item.PackageID,
		&paymentMethod,
		&item.Subtotal,
		&item.Tax,
		&item.Total,
		&item.Currency,
		&status,
		&invoiceURL,
		&appleOriginalTransactionID,
		&googlePurchaseToken,
		&googlePurchaseID,
		&payload,
		&expiredAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return err
	}

	item.PaymentMethod = entity.PaymentMethod(paymentMethod)
	item.Status = entity.OrderStatus(status)
	item.InvoiceURL = stringPtr(invoiceURL)
	item.AppleOriginalTransactionID = stringPtr(appleOriginalTransactionID)
	item.GooglePurchaseToken = stringPtr(googlePurchaseToken)
	item.GooglePurchaseID = stringPtr(googlePurchaseID)
	if len(payload) > 0 {
		item.CallbackPayload = append([]byte(nil), payload...)
	} else {
		item.CallbackPayload = nil
	}
	item.ExpiredAt = timePtr(expiredAt)

	return nil
}

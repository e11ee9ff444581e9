package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	svcerror "summershop-saga/pkg/error"
	"summershop-saga/pkg/models"
	"summershop-saga/pkg/utils"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

type Database struct {
	DB *pgxpool.Pool
}

// Init Database
func NewPGDatabase() *Database {
	dbConn, err := pgxpool.New(context.Background(), utils.GetEnv("PGSQL_URL", ""))
	if err != nil {
		panic(fmt.Errorf("Failed to connect to Postgres DB."))
	}

	return &Database{
		DB: dbConn,
	}
}

func dbError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return svcerror.New(
			svcerror.ErrNotFound,
			svcerror.WithOp(op),
			svcerror.WithCause(err),
			svcerror.WithTime(time.Now().UTC()),
		)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return svcerror.New(
			svcerror.ErrConflict,
			svcerror.WithOp(op),
			svcerror.WithMsg("unique constraint violated"),
			svcerror.WithCause(err),
			svcerror.WithTime(time.Now().UTC()),
		)
	}
	return svcerror.New(
		svcerror.ErrDatabaseError,
		svcerror.WithOp(op),
		svcerror.WithCause(err),
		svcerror.WithTime(time.Now().UTC()),
	)
}

// versionConflict covers the zero-rows case of a version-guarded UPDATE: the
// row was modified (or removed) since it was read. Coded ErrStaleVersion so
// the caller retries against the re-read row instead of giving up.
func versionConflict(op, id string) error {
	return svcerror.New(
		svcerror.ErrStaleVersion,
		svcerror.WithOp(op),
		svcerror.WithMsg(fmt.Sprintf("stale version for %s", id)),
		svcerror.WithTime(time.Now().UTC()),
	)
}

// ORDERS
func (d *Database) SaveOrder(ctx context.Context, order models.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return dbError("Database.SaveOrder", err)
	}

	query := `INSERT INTO orders(id, customer_id, order_status, payment_status, payment_id,
			  total_amount_cents, items, shipping_address, version, created_at, updated_at)
			  VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);`
	if _, err := d.DB.Exec(ctx, query,
		order.OrderId, order.CustomerId, string(order.OrderStatus), string(order.PaymentStatus),
		order.PaymentId, order.TotalAmountCents, items, order.ShippingAddress,
		order.Version, order.CreatedAt, order.UpdatedAt); err != nil {
		return dbError("Database.SaveOrder", err)
	}

	return nil
}

func (d *Database) GetOrder(ctx context.Context, orderId string) (models.Order, error) {
	query := `SELECT id, customer_id, order_status, payment_status, payment_id,
			  total_amount_cents, items, shipping_address, version, created_at, updated_at
			  FROM orders WHERE id = $1 FOR UPDATE;`
	var order models.Order
	var items []byte
	row := d.DB.QueryRow(ctx, query, orderId)
	err := row.Scan(&order.OrderId, &order.CustomerId, &order.OrderStatus, &order.PaymentStatus,
		&order.PaymentId, &order.TotalAmountCents, &items, &order.ShippingAddress,
		&order.Version, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return order, dbError("Database.GetOrder", err)
	}
	if err := json.Unmarshal(items, &order.Items); err != nil {
		return order, dbError("Database.GetOrder", err)
	}
	return order, nil
}

// UpdateOrderShipping touches the shipping address only, never the payment
// projection. The version guard rejects writes against a stale read.
func (d *Database) UpdateOrderShipping(ctx context.Context, orderId, shippingAddress string, version int64) error {
	query := `UPDATE orders
			  SET shipping_address = $1, version = version + 1, updated_at = $2
			  WHERE id = $3 AND version = $4;`
	tag, err := d.DB.Exec(ctx, query, shippingAddress, time.Now().UTC(), orderId, version)
	if err != nil {
		return dbError("Database.UpdateOrderShipping", err)
	}
	if tag.RowsAffected() == 0 {
		return versionConflict("Database.UpdateOrderShipping", orderId)
	}
	return nil
}

func (d *Database) UpdateOrderStatus(ctx context.Context, orderId string, status models.OrderStatus, version int64) error {
	query := `UPDATE orders
			  SET order_status = $1, version = version + 1, updated_at = $2
			  WHERE id = $3 AND version = $4;`
	tag, err := d.DB.Exec(ctx, query, string(status), time.Now().UTC(), orderId, version)
	if err != nil {
		return dbError("Database.UpdateOrderStatus", err)
	}
	if tag.RowsAffected() == 0 {
		return versionConflict("Database.UpdateOrderStatus", orderId)
	}
	return nil
}

// UpdateOrderPayment persists the payment projection (payment_status,
// payment_id and, when a mapping rule applied, order_status) and nothing
// else, so it cannot clobber a concurrent shipping-address update.
func (d *Database) UpdateOrderPayment(ctx context.Context, orderId string, paymentStatus models.PaymentStatus, orderStatus models.OrderStatus, paymentId string, version int64) error {
	query := `UPDATE orders
			  SET payment_status = $1, order_status = $2, payment_id = $3,
			  version = version + 1, updated_at = $4
			  WHERE id = $5 AND version = $6;`
	tag, err := d.DB.Exec(ctx, query,
		string(paymentStatus), string(orderStatus), paymentId, time.Now().UTC(), orderId, version)
	if err != nil {
		return dbError("Database.UpdateOrderPayment", err)
	}
	if tag.RowsAffected() == 0 {
		return versionConflict("Database.UpdateOrderPayment", orderId)
	}
	return nil
}

// PAYMENTS
func (d *Database) SavePayment(ctx context.Context, payment models.Payment) error {
	query := `INSERT INTO payments(id, idempotency_key, order_id, amount_cents, currency,
			  payment_method, status, transaction_id, failure_reason, refunded_amount_cents,
			  version, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);`
	_, err := d.DB.Exec(ctx, query,
		payment.Id, payment.IdempotencyKey, payment.OrderId, payment.AmountCents,
		payment.Currency, payment.PaymentMethod, string(payment.Status),
		payment.TransactionId, payment.FailureReason, payment.RefundedAmountCents,
		payment.Version, payment.CreatedAt, payment.UpdatedAt)
	if err != nil {
		return dbError("Database.SavePayment", err)
	}
	return nil
}

const paymentColumns = `id, idempotency_key, order_id, amount_cents, currency,
			  payment_method, status, transaction_id, failure_reason, refunded_amount_cents,
			  version, created_at, updated_at`

func (d *Database) scanPayment(row pgx.Row) (models.Payment, error) {
	var p models.Payment
	err := row.Scan(&p.Id, &p.IdempotencyKey, &p.OrderId, &p.AmountCents, &p.Currency,
		&p.PaymentMethod, &p.Status, &p.TransactionId, &p.FailureReason, &p.RefundedAmountCents,
		&p.Version, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (d *Database) GetPayment(ctx context.Context, paymentId string) (models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE;`
	p, err := d.scanPayment(d.DB.QueryRow(ctx, query, paymentId))
	if err != nil {
		return p, dbError("Database.GetPayment", err)
	}
	return p, nil
}

func (d *Database) GetPaymentByIdempotencyKey(ctx context.Context, key string) (models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE idempotency_key = $1;`
	p, err := d.scanPayment(d.DB.QueryRow(ctx, query, key))
	if err != nil {
		return p, dbError("Database.GetPaymentByIdempotencyKey", err)
	}
	return p, nil
}

func (d *Database) GetPaymentByOrderId(ctx context.Context, orderId string) (models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1
			  ORDER BY created_at DESC LIMIT 1 FOR UPDATE;`
	p, err := d.scanPayment(d.DB.QueryRow(ctx, query, orderId))
	if err != nil {
		return p, dbError("Database.GetPaymentByOrderId", err)
	}
	return p, nil
}

// UpdatePaymentStatus writes the outcome fields of a payment (status,
// transaction id, failure reason, refunded amount) under a version guard.
func (d *Database) UpdatePaymentStatus(ctx context.Context, payment models.Payment) error {
	query := `UPDATE payments
			  SET status = $1, transaction_id = $2, failure_reason = $3,
			  refunded_amount_cents = $4, version = version + 1, updated_at = $5
			  WHERE id = $6 AND version = $7;`
	tag, err := d.DB.Exec(ctx, query,
		string(payment.Status), payment.TransactionId, payment.FailureReason,
		payment.RefundedAmountCents, time.Now().UTC(), payment.Id, payment.Version)
	if err != nil {
		return dbError("Database.UpdatePaymentStatus", err)
	}
	if tag.RowsAffected() == 0 {
		return versionConflict("Database.UpdatePaymentStatus", payment.Id)
	}
	return nil
}

func (d *Database) UpdatePaymentMethod(ctx context.Context, paymentId, paymentMethod string, version int64) error {
	query := `UPDATE payments
			  SET payment_method = $1, version = version + 1, updated_at = $2
			  WHERE id = $3 AND version = $4;`
	tag, err := d.DB.Exec(ctx, query, paymentMethod, time.Now().UTC(), paymentId, version)
	if err != nil {
		return dbError("Database.UpdatePaymentMethod", err)
	}
	if tag.RowsAffected() == 0 {
		return versionConflict("Database.UpdatePaymentMethod", paymentId)
	}
	return nil
}

// GetProcessingPayments feeds the reconciliation sweep with payments stuck
// in PROCESSING longer than the given age.
func (d *Database) GetProcessingPayments(ctx context.Context, olderThan time.Duration, limit int) ([]models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
			  WHERE status = 'PROCESSING' AND updated_at < $1
			  LIMIT $2;`
	rows, err := d.DB.Query(ctx, query, time.Now().UTC().Add(-olderThan), limit)
	if err != nil {
		return nil, dbError("Database.GetProcessingPayments", err)
	}
	defer rows.Close()

	var batch []models.Payment
	for rows.Next() {
		p, err := d.scanPayment(rows)
		if err != nil {
			return nil, dbError("Database.GetProcessingPayments", err)
		}
		batch = append(batch, p)
	}
	return batch, nil
}

// OUTBOX
func (d *Database) SaveOutbox(ctx context.Context, outbox models.Outbox) error {
	query := `INSERT INTO outbox(id, key, event_type, payload, topic)
			  VALUES ($1, $2, $3, $4, $5);`
	_, err := d.DB.Exec(ctx, query,
		outbox.Id, outbox.Key, outbox.EventType, outbox.Payload, outbox.Topic,
	)
	if err != nil {
		return dbError("Database.SaveOutbox", err)
	}
	return nil
}

func (d *Database) GetUnpublishedOutbox(ctx context.Context, limit int, topic string) ([]models.Outbox, error) {
	query := `SELECT id, key, event_type, payload
			  FROM outbox
			  WHERE published = FALSE AND topic = $1
			  LIMIT $2 FOR UPDATE SKIP LOCKED;`
	rows, err := d.DB.Query(ctx, query, topic, limit)
	if err != nil {
		return nil, dbError("Database.GetUnpublishedOutbox", err)
	}
	defer rows.Close()

	var batch []models.Outbox
	for rows.Next() {
		var outbox models.Outbox
		if err := rows.Scan(&outbox.Id, &outbox.Key, &outbox.EventType, &outbox.Payload); err != nil {
			return nil, dbError("Database.GetUnpublishedOutbox", err)
		}
		batch = append(batch, outbox)
	}

	return batch, nil
}

func (d *Database) UpdateOutboxPublished(ctx context.Context, ids []string) error {
	query := `UPDATE outbox SET published = TRUE WHERE id = ANY($1::text[]);`
	if _, err := d.DB.Exec(ctx, query, ids); err != nil {
		return dbError("Database.UpdateOutboxPublished", err)
	}
	return nil
}

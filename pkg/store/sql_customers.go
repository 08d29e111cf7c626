package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/voxlane/backoffice/pkg/models"
)

const customerColumns = `id, account_number, name, company, email, phone, country, status, plan, currency,
	balance, credit_limit, rate_card_id, channel_limit, kyc_status, external_id, synced_at, sync_error,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (*models.Customer, error) {
	var c models.Customer
	var rateCardID sql.NullString
	var syncedAt sql.NullTime
	err := row.Scan(&c.ID, &c.AccountNumber, &c.Name, &c.Company, &c.Email, &c.Phone, &c.Country,
		&c.Status, &c.Plan, &c.Currency, &c.Balance, &c.CreditLimit, &rateCardID, &c.ChannelLimit,
		&c.KYCStatus, &c.ExternalID, &syncedAt, &c.SyncError, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.RateCardID = rateCardID.String
	c.SyncedAt = timePtr(syncedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

// CreateCustomer inserts a customer
func (s *SQLStore) CreateCustomer(ctx context.Context, c *models.Customer) error {
	_, err := s.exec(ctx, s.db, `INSERT INTO customers (`+customerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AccountNumber, c.Name, c.Company, c.Email, c.Phone, c.Country, c.Status, c.Plan,
		c.Currency, c.Balance, c.CreditLimit, nullString(c.RateCardID), c.ChannelLimit, c.KYCStatus,
		c.ExternalID, nullTime(c.SyncedAt), c.SyncError, utc(c.CreatedAt), utc(c.UpdatedAt))
	return err
}

// GetCustomer retrieves a customer by ID
func (s *SQLStore) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	c, err := scanCustomer(s.queryRow(ctx, s.db, `SELECT `+customerColumns+` FROM customers WHERE id = ?`, id))
	return c, notFound(err)
}

// GetCustomerByAccountNumber retrieves a customer by account number
func (s *SQLStore) GetCustomerByAccountNumber(ctx context.Context, accountNumber string) (*models.Customer, error) {
	c, err := scanCustomer(s.queryRow(ctx, s.db, `SELECT `+customerColumns+` FROM customers WHERE account_number = ?`, accountNumber))
	return c, notFound(err)
}

// ListCustomers returns customers newest first
func (s *SQLStore) ListCustomers(ctx context.Context, f models.CustomerFilter) ([]*models.Customer, int, error) {
	var w where
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		op := s.d.like
		w.add("(name "+op+" ? OR email "+op+" ? OR account_number "+op+" ? OR company "+op+" ?)",
			pattern, pattern, pattern, pattern)
	}

	total, err := s.count(ctx, `SELECT COUNT(*) FROM customers`+w.String(), w.args...)
	if err != nil {
		return nil, 0, err
	}

	page := f.Page.Normalize()
	rows, err := s.query(ctx, s.db, `SELECT `+customerColumns+` FROM customers`+w.String()+
		` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, append(w.args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []*models.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// UpdateCustomer replaces a customer. The balance is owned by ApplyTransaction and is left untouched.
func (s *SQLStore) UpdateCustomer(ctx context.Context, c *models.Customer) error {
	return expectOne(s.exec(ctx, s.db, `UPDATE customers SET name = ?, company = ?, email = ?, phone = ?,
		country = ?, status = ?, plan = ?, currency = ?, credit_limit = ?, rate_card_id = ?,
		channel_limit = ?, kyc_status = ?, external_id = ?, synced_at = ?, sync_error = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.Company, c.Email, c.Phone, c.Country, c.Status, c.Plan, c.Currency,
		c.CreditLimit, nullString(c.RateCardID), c.ChannelLimit, c.KYCStatus, c.ExternalID,
		nullTime(c.SyncedAt), c.SyncError, utc(c.UpdatedAt), c.ID))
}

// DeleteCustomer removes a customer and its sessions.
// A customer that still holds numbers cannot be deleted.
func (s *SQLStore) DeleteCustomer(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var held int
		if err := s.queryRow(ctx, tx, `SELECT COUNT(*) FROM dids WHERE customer_id = ?`, id).Scan(&held); err != nil {
			return err
		}
		if held > 0 {
			return ErrConflict
		}
		if err := expectOne(s.exec(ctx, tx, `DELETE FROM customers WHERE id = ?`, id)); err != nil {
			return err
		}
		_, err := s.exec(ctx, tx, `DELETE FROM sessions WHERE customer_id = ?`, id)
		return err
	})
}

// ApplyTransaction changes the balance and appends the ledger row atomically
func (s *SQLStore) ApplyTransaction(ctx context.Context, txn *models.Transaction) (*models.Customer, error) {
	var updated *models.Customer
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		c, err := scanCustomer(s.queryRow(ctx, tx, `SELECT `+customerColumns+` FROM customers WHERE id = ?`+s.d.forUpdate, txn.CustomerID))
		if err != nil {
			return notFound(err)
		}

		next := c.Balance + txn.Amount
		if txn.IsDebit() && next < -c.CreditLimit {
			return ErrInsufficientFunds
		}
		txn.BalanceAfter = next

		if _, err := s.exec(ctx, tx, `UPDATE customers SET balance = ?, updated_at = ? WHERE id = ?`,
			next, utc(txn.CreatedAt), c.ID); err != nil {
			return err
		}
		if _, err := s.exec(ctx, tx, `INSERT INTO transactions
			(id, customer_id, kind, amount, balance_after, reference, description, actor, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			txn.ID, txn.CustomerID, txn.Kind, txn.Amount, txn.BalanceAfter, txn.Reference,
			txn.Description, txn.Actor, utc(txn.CreatedAt)); err != nil {
			return err
		}

		c.Balance = next
		c.UpdatedAt = utc(txn.CreatedAt)
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListTransactions returns the ledger newest first
func (s *SQLStore) ListTransactions(ctx context.Context, customerID string, page models.Page) ([]*models.Transaction, int, error) {
	total, err := s.count(ctx, `SELECT COUNT(*) FROM transactions WHERE customer_id = ?`, customerID)
	if err != nil {
		return nil, 0, err
	}

	page = page.Normalize()
	rows, err := s.query(ctx, s.db, `SELECT id, customer_id, kind, amount, balance_after, reference,
		description, actor, created_at FROM transactions WHERE customer_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, customerID, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []*models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.CustomerID, &t.Kind, &t.Amount, &t.BalanceAfter, &t.Reference,
			&t.Description, &t.Actor, &t.CreatedAt); err != nil {
			return nil, 0, err
		}
		t.CreatedAt = t.CreatedAt.UTC()
		out = append(out, &t)
	}
	return out, total, rows.Err()
}

// User operations

const userColumns = `id, customer_id, email, password_hash, full_name, role, status, last_login_at, created_at, updated_at`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var lastLogin sql.NullTime
	if err := row.Scan(&u.ID, &u.CustomerID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role,
		&u.Status, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.LastLoginAt = timePtr(lastLogin)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

// CreateUser inserts a user. Emails are unique across the platform.
func (s *SQLStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.exec(ctx, s.db, `INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.CustomerID, u.Email, u.PasswordHash, u.FullName, u.Role, u.Status,
		nullTime(u.LastLoginAt), utc(u.CreatedAt), utc(u.UpdatedAt))
	return err
}

// GetUser retrieves a user by ID
func (s *SQLStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(s.queryRow(ctx, s.db, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	return u, notFound(err)
}

// GetUserByEmail retrieves a user by email, case-insensitively
func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.queryRow(ctx, s.db, `SELECT `+userColumns+` FROM users WHERE lower(email) = ?`, strings.ToLower(email)))
	return u, notFound(err)
}

// ListUsers returns the users of a customer, or staff users when customerID is empty
func (s *SQLStore) ListUsers(ctx context.Context, customerID string) ([]*models.User, error) {
	rows, err := s.query(ctx, s.db, `SELECT `+userColumns+` FROM users WHERE customer_id = ? ORDER BY email`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UpdateUser replaces a user
func (s *SQLStore) UpdateUser(ctx context.Context, u *models.User) error {
	return expectOne(s.exec(ctx, s.db, `UPDATE users SET email = ?, password_hash = ?, full_name = ?, role = ?,
		status = ?, last_login_at = ?, updated_at = ? WHERE id = ?`,
		u.Email, u.PasswordHash, u.FullName, u.Role, u.Status, nullTime(u.LastLoginAt), utc(u.UpdatedAt), u.ID))
}

// DeleteUser removes a user and its sessions
func (s *SQLStore) DeleteUser(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, `DELETE FROM sessions WHERE user_id = ?`, id); err != nil {
			return err
		}
		return expectOne(s.exec(ctx, tx, `DELETE FROM users WHERE id = ?`, id))
	})
}

// Session operations

// CreateSession stores a session keyed by its token hash
func (s *SQLStore) CreateSession(ctx context.Context, sess *models.Session) error {
	_, err := s.exec(ctx, s.db, `INSERT INTO sessions
		(token_hash, id, user_id, customer_id, ip_address, user_agent, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.TokenHash, sess.ID, sess.UserID, sess.CustomerID, sess.IPAddress, sess.UserAgent,
		utc(sess.ExpiresAt), utc(sess.CreatedAt))
	return err
}

// GetSession retrieves a session by token hash
func (s *SQLStore) GetSession(ctx context.Context, tokenHash string) (*models.Session, error) {
	var sess models.Session
	err := s.queryRow(ctx, s.db, `SELECT token_hash, id, user_id, customer_id, ip_address, user_agent,
		expires_at, created_at FROM sessions WHERE token_hash = ?`, tokenHash).
		Scan(&sess.TokenHash, &sess.ID, &sess.UserID, &sess.CustomerID, &sess.IPAddress, &sess.UserAgent,
			&sess.ExpiresAt, &sess.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	sess.CreatedAt = sess.CreatedAt.UTC()
	return &sess, nil
}

// DeleteSession removes a session
func (s *SQLStore) DeleteSession(ctx context.Context, tokenHash string) error {
	return expectOne(s.exec(ctx, s.db, `DELETE FROM sessions WHERE token_hash = ?`, tokenHash))
}

// DeleteExpiredSessions removes sessions that expired at or before now
func (s *SQLStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	res, err := s.exec(ctx, s.db, `DELETE FROM sessions WHERE expires_at <= ?`, utc(now))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/voxlane/backoffice/pkg/models"
)

// CDR operations

const cdrColumns = `id, customer_id, call_id, direction, from_number, to_number, started_at, duration,
	billsec, disposition, prefix, rate_per_min, cost, billing_status, created_at`

func scanCDR(row rowScanner) (*models.CDR, error) {
	var c models.CDR
	if err := row.Scan(&c.ID, &c.CustomerID, &c.CallID, &c.Direction, &c.From, &c.To, &c.StartedAt,
		&c.Duration, &c.Billsec, &c.Disposition, &c.Prefix, &c.RatePerMin, &c.Cost, &c.BillingStatus,
		&c.CreatedAt); err != nil {
		return nil, err
	}
	c.StartedAt = c.StartedAt.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

// InsertCDR stores a call record. Call IDs are unique.
func (s *SQLStore) InsertCDR(ctx context.Context, c *models.CDR) error {
	_, err := s.exec(ctx, s.db, `INSERT INTO cdrs (`+cdrColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CustomerID, c.CallID, c.Direction, c.From, c.To, utc(c.StartedAt), c.Duration, c.Billsec,
		c.Disposition, c.Prefix, c.RatePerMin, c.Cost, c.BillingStatus, utc(c.CreatedAt))
	return err
}

// CDRExists reports whether a record with callID is stored
func (s *SQLStore) CDRExists(ctx context.Context, callID string) (bool, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM cdrs WHERE call_id = ?`, callID)
	return n > 0, err
}

// ListCDRs returns call records newest first
func (s *SQLStore) ListCDRs(ctx context.Context, f models.CDRFilter) ([]*models.CDR, int, error) {
	var w where
	if f.CustomerID != "" {
		w.add("customer_id = ?", f.CustomerID)
	}
	if f.Direction != "" {
		w.add("direction = ?", f.Direction)
	}
	if f.From != nil {
		w.add("started_at >= ?", utc(*f.From))
	}
	if f.To != nil {
		w.add("started_at < ?", utc(*f.To))
	}
	if f.Number != "" {
		pattern := "%" + f.Number + "%"
		w.add("(from_number LIKE ? OR to_number LIKE ?)", pattern, pattern)
	}
	if f.CreatedUntil != nil {
		w.add("created_at <= ?", utc(*f.CreatedUntil))
	}

	total, err := s.count(ctx, `SELECT COUNT(*) FROM cdrs`+w.String(), w.args...)
	if err != nil {
		return nil, 0, err
	}

	page := f.Page.Normalize()
	rows, err := s.query(ctx, s.db, `SELECT `+cdrColumns+` FROM cdrs`+w.String()+
		` ORDER BY started_at DESC, id LIMIT ? OFFSET ?`, append(w.args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []*models.CDR{}
	for rows.Next() {
		c, err := scanCDR(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// KYC operations

const kycColumns = `id, customer_id, status, legal_name, document_type, document_ref, address, country,
	review_note, reviewed_by, reviewed_at, created_at, updated_at`

func scanKYC(row rowScanner) (*models.KYCSubmission, error) {
	var k models.KYCSubmission
	var reviewedAt sql.NullTime
	if err := row.Scan(&k.ID, &k.CustomerID, &k.Status, &k.LegalName, &k.DocumentType, &k.DocumentRef,
		&k.Address, &k.Country, &k.ReviewNote, &k.ReviewedBy, &reviewedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
		return nil, err
	}
	k.ReviewedAt = timePtr(reviewedAt)
	k.CreatedAt = k.CreatedAt.UTC()
	k.UpdatedAt = k.UpdatedAt.UTC()
	return &k, nil
}

// CreateKYC inserts a submission
func (s *SQLStore) CreateKYC(ctx context.Context, k *models.KYCSubmission) error {
	_, err := s.exec(ctx, s.db, `INSERT INTO kyc_submissions (`+kycColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.CustomerID, k.Status, k.LegalName, k.DocumentType, k.DocumentRef, k.Address, k.Country,
		k.ReviewNote, k.ReviewedBy, nullTime(k.ReviewedAt), utc(k.CreatedAt), utc(k.UpdatedAt))
	return err
}

// GetKYC retrieves a submission by ID
func (s *SQLStore) GetKYC(ctx context.Context, id string) (*models.KYCSubmission, error) {
	k, err := scanKYC(s.queryRow(ctx, s.db, `SELECT `+kycColumns+` FROM kyc_submissions WHERE id = ?`, id))
	return k, notFound(err)
}

// ListKYC returns submissions newest first
func (s *SQLStore) ListKYC(ctx context.Context, status models.KYCStatus, customerID string) ([]*models.KYCSubmission, error) {
	var w where
	if status != "" {
		w.add("status = ?", status)
	}
	if customerID != "" {
		w.add("customer_id = ?", customerID)
	}
	rows, err := s.query(ctx, s.db, `SELECT `+kycColumns+` FROM kyc_submissions`+w.String()+
		` ORDER BY created_at DESC, id`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.KYCSubmission{}
	for rows.Next() {
		k, err := scanKYC(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// UpdateKYC replaces a submission
func (s *SQLStore) UpdateKYC(ctx context.Context, k *models.KYCSubmission) error {
	return expectOne(s.exec(ctx, s.db, `UPDATE kyc_submissions SET status = ?, legal_name = ?, document_type = ?,
		document_ref = ?, address = ?, country = ?, review_note = ?, reviewed_by = ?, reviewed_at = ?,
		updated_at = ? WHERE id = ?`,
		k.Status, k.LegalName, k.DocumentType, k.DocumentRef, k.Address, k.Country, k.ReviewNote,
		k.ReviewedBy, nullTime(k.ReviewedAt), utc(k.UpdatedAt), k.ID))
}

// Audit operations

const auditColumns = `id, actor_id, actor_email, actor_role, customer_id, action, entity_type, entity_id,
	before_data, after_data, ip_address, user_agent, created_at`

func scanAudit(row rowScanner) (*models.AuditLog, error) {
	var a models.AuditLog
	var before, after sql.NullString
	if err := row.Scan(&a.ID, &a.ActorID, &a.ActorEmail, &a.ActorRole, &a.CustomerID, &a.Action,
		&a.EntityType, &a.EntityID, &before, &after, &a.IPAddress, &a.UserAgent, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Before = rawJSON(before)
	a.After = rawJSON(after)
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

// InsertAudit stores an audit entry
func (s *SQLStore) InsertAudit(ctx context.Context, a *models.AuditLog) error {
	_, err := s.exec(ctx, s.db, `INSERT INTO audit_logs (`+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ActorID, a.ActorEmail, a.ActorRole, a.CustomerID, a.Action, a.EntityType, a.EntityID,
		nullJSON(a.Before), nullJSON(a.After), a.IPAddress, a.UserAgent, utc(a.CreatedAt))
	return err
}

// ListAudit returns audit entries newest first
func (s *SQLStore) ListAudit(ctx context.Context, f models.AuditFilter) ([]*models.AuditLog, int, error) {
	var w where
	if f.CustomerID != "" {
		w.add("customer_id = ?", f.CustomerID)
	}
	if f.ActorID != "" {
		w.add("actor_id = ?", f.ActorID)
	}
	if f.EntityType != "" {
		w.add("entity_type = ?", f.EntityType)
	}
	if f.EntityID != "" {
		w.add("entity_id = ?", f.EntityID)
	}
	if f.Action != "" {
		w.add("action = ?", f.Action)
	}
	if f.Since != nil {
		w.add("created_at >= ?", utc(*f.Since))
	}
	if f.Until != nil {
		w.add("created_at < ?", utc(*f.Until))
	}

	total, err := s.count(ctx, `SELECT COUNT(*) FROM audit_logs`+w.String(), w.args...)
	if err != nil {
		return nil, 0, err
	}

	page := f.Page.Normalize()
	rows, err := s.query(ctx, s.db, `SELECT `+auditColumns+` FROM audit_logs`+w.String()+
		` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, append(w.args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []*models.AuditLog{}
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// DeleteAuditBefore removes entries created before t
func (s *SQLStore) DeleteAuditBefore(ctx context.Context, t time.Time) (int, error) {
	res, err := s.exec(ctx, s.db, `DELETE FROM audit_logs WHERE created_at < ?`, utc(t))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Trash operations

const trashColumns = `id, entity_type, entity_id, customer_id, label, snapshot, deleted_by, deleted_at, expires_at`

func scanTrash(row rowScanner) (*models.TrashItem, error) {
	var t models.TrashItem
	var snapshot string
	if err := row.Scan(&t.ID, &t.EntityType, &t.EntityID, &t.CustomerID, &t.Label, &snapshot, &t.DeletedBy,
		&t.DeletedAt, &t.ExpiresAt); err != nil {
		return nil, err
	}
	t.Snapshot = []byte(snapshot)
	t.DeletedAt = t.DeletedAt.UTC()
	t.ExpiresAt = t.ExpiresAt.UTC()
	return &t, nil
}

// InsertTrash stores a deleted entity snapshot
func (s *SQLStore) InsertTrash(ctx context.Context, t *models.TrashItem) error {
	_, err := s.exec(ctx, s.db, `INSERT INTO trash_items (`+trashColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.EntityType, t.EntityID, t.CustomerID, t.Label, string(t.Snapshot), t.DeletedBy,
		utc(t.DeletedAt), utc(t.ExpiresAt))
	return err
}

// GetTrash retrieves a trash item by ID
func (s *SQLStore) GetTrash(ctx context.Context, id string) (*models.TrashItem, error) {
	t, err := scanTrash(s.queryRow(ctx, s.db, `SELECT `+trashColumns+` FROM trash_items WHERE id = ?`, id))
	return t, notFound(err)
}

// ListTrash returns trash items most recently deleted first
func (s *SQLStore) ListTrash(ctx context.Context, f models.TrashFilter) ([]*models.TrashItem, int, error) {
	var w where
	if f.EntityType != "" {
		w.add("entity_type = ?", f.EntityType)
	}
	if f.CustomerID != "" {
		w.add("customer_id = ?", f.CustomerID)
	}

	total, err := s.count(ctx, `SELECT COUNT(*) FROM trash_items`+w.String(), w.args...)
	if err != nil {
		return nil, 0, err
	}

	page := f.Page.Normalize()
	rows, err := s.query(ctx, s.db, `SELECT `+trashColumns+` FROM trash_items`+w.String()+
		` ORDER BY deleted_at DESC, id LIMIT ? OFFSET ?`, append(w.args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []*models.TrashItem{}
	for rows.Next() {
		t, err := scanTrash(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// DeleteTrash removes a trash item
func (s *SQLStore) DeleteTrash(ctx context.Context, id string) error {
	return expectOne(s.exec(ctx, s.db, `DELETE FROM trash_items WHERE id = ?`, id))
}

// ListExpiredTrash returns up to limit items whose expiry is at or before now, oldest first
func (s *SQLStore) ListExpiredTrash(ctx context.Context, now time.Time, limit int) ([]*models.TrashItem, error) {
	if limit <= 0 {
		limit = models.MaxPageLimit
	}
	rows, err := s.query(ctx, s.db, `SELECT `+trashColumns+` FROM trash_items WHERE expires_at <= ?
		ORDER BY expires_at, id LIMIT ?`, utc(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.TrashItem{}
	for rows.Next() {
		t, err := scanTrash(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Aggregates

// DashboardCounts computes the portal home page figures
func (s *SQLStore) DashboardCounts(ctx context.Context, customerID string, since time.Time) (*models.DashboardCounts, error) {
	c, err := s.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	out := &models.DashboardCounts{Balance: c.Balance}
	side, err := s.SidebarCounts(ctx, customerID)
	if err != nil {
		return nil, err
	}
	out.DIDs, out.Extensions, out.IVRMenus, out.VoiceAgents = side.DIDs, side.Extensions, side.IVRMenus, side.VoiceAgents

	var billsec int64
	var spend int64
	err = s.queryRow(ctx, s.db, `SELECT COUNT(*), COALESCE(SUM(billsec), 0),
		COALESCE(SUM(CASE WHEN billing_status = ? THEN cost ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN billing_status <> ? THEN 1 ELSE 0 END), 0)
		FROM cdrs WHERE customer_id = ? AND started_at >= ?`,
		models.BillingStatusBilled, models.BillingStatusBilled, customerID, utc(since)).
		Scan(&out.CallsToday, &billsec, &spend, &out.UnbilledCalls)
	if err != nil {
		return nil, err
	}
	out.MinutesToday = int(billsec / 60)
	out.SpendToday = models.Money(spend)
	return out, nil
}

// SidebarCounts computes the portal navigation badges
func (s *SQLStore) SidebarCounts(ctx context.Context, customerID string) (*models.SidebarCounts, error) {
	out := &models.SidebarCounts{}
	err := s.queryRow(ctx, s.db, `SELECT
		(SELECT COUNT(*) FROM dids WHERE customer_id = ?),
		(SELECT COUNT(*) FROM extensions WHERE customer_id = ?),
		(SELECT COUNT(*) FROM ivr_menus WHERE customer_id = ?),
		(SELECT COUNT(*) FROM voice_agents WHERE customer_id = ?),
		(SELECT COUNT(*) FROM users WHERE customer_id = ?)`,
		customerID, customerID, customerID, customerID, customerID).
		Scan(&out.DIDs, &out.Extensions, &out.IVRMenus, &out.VoiceAgents, &out.Users)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AdminCounts computes the admin console figures
func (s *SQLStore) AdminCounts(ctx context.Context, since time.Time) (*models.AdminCounts, error) {
	out := &models.AdminCounts{}
	err := s.queryRow(ctx, s.db, `SELECT
		(SELECT COUNT(*) FROM customers),
		(SELECT COUNT(*) FROM customers WHERE status = ?),
		(SELECT COUNT(*) FROM customers WHERE status = ?),
		(SELECT COUNT(*) FROM carriers),
		(SELECT COUNT(*) FROM rate_cards),
		(SELECT COUNT(*) FROM routes),
		(SELECT COUNT(*) FROM dids),
		(SELECT COUNT(*) FROM dids WHERE status = ?),
		(SELECT COUNT(*) FROM kyc_submissions WHERE status = ?),
		(SELECT COUNT(*) FROM trash_items),
		(SELECT COUNT(*) FROM cdrs WHERE started_at >= ?)`,
		models.CustomerStatusActive, models.CustomerStatusSuspended, models.DIDStatusAssigned,
		models.KYCStatusPending, utc(since)).
		Scan(&out.Customers, &out.ActiveCustomers, &out.SuspendedCustomers, &out.Carriers, &out.RateCards,
			&out.Routes, &out.DIDsTotal, &out.DIDsAssigned, &out.PendingKYC, &out.TrashItems, &out.CDRsToday)
	if err != nil {
		return nil, err
	}
	return out, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/voxlane/backoffice/pkg/models"
)

// Carrier operations

const carrierColumns = `id, name, host, port, protocol, priority, channel_limit, status, notes,
	external_id, synced_at, sync_error, created_at, updated_at`

func scanCarrier(row rowScanner) (*models.Carrier, error) {
	var c models.Carrier
	var syncedAt sql.NullTime
	if err := row.Scan(&c.ID, &c.Name, &c.Host, &c.Port, &c.Protocol, &c.Priority, &c.ChannelLimit,
		&c.Status, &c.Notes, &c.ExternalID, &syncedAt, &c.SyncError, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.SyncedAt = timePtr(syncedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

// CreateCarrier inserts a carrier. Names are unique.
func (s *SQLStore) CreateCarrier(ctx context.Context, c *models.Carrier) error {
	_, err := s.exec(ctx, s.db, `INSERT INTO carriers (`+carrierColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Host, c.Port, c.Protocol, c.Priority, c.ChannelLimit, c.Status, c.Notes,
		c.ExternalID, nullTime(c.SyncedAt), c.SyncError, utc(c.CreatedAt), utc(c.UpdatedAt))
	return err
}

// GetCarrier retrieves a carrier by ID
func (s *SQLStore) GetCarrier(ctx context.Context, id string) (*models.Carrier, error) {
	c, err := scanCarrier(s.queryRow(ctx, s.db, `SELECT `+carrierColumns+` FROM carriers WHERE id = ?`, id))
	return c, notFound(err)
}

// ListCarriers returns carriers by priority then name
func (s *SQLStore) ListCarriers(ctx context.Context) ([]*models.Carrier, error) {
	rows, err := s.query(ctx, s.db, `SELECT `+carrierColumns+` FROM carriers ORDER BY priority, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.Carrier{}
	for rows.Next() {
		c, err := scanCarrier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCarrier replaces a carrier
func (s *SQLStore) UpdateCarrier(ctx context.Context, c *models.Carrier) error {
	return expectOne(s.exec(ctx, s.db, `UPDATE carriers SET name = ?, host = ?, port = ?, protocol = ?,
		priority = ?, channel_limit = ?, status = ?, notes = ?, external_id = ?, synced_at = ?,
		sync_error = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.Host, c.Port, c.Protocol, c.Priority, c.ChannelLimit, c.Status, c.Notes,
		c.ExternalID, nullTime(c.SyncedAt), c.SyncError, utc(c.UpdatedAt), c.ID))
}

// DeleteCarrier removes a carrier. Carriers referenced by a buy card cannot be deleted.
func (s *SQLStore) DeleteCarrier(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var refs int
		if err := s.queryRow(ctx, tx, `SELECT COUNT(*) FROM rate_cards WHERE carrier_id = ?`, id).Scan(&refs); err != nil {
			return err
		}
		if refs > 0 {
			return ErrConflict
		}
		return expectOne(s.exec(ctx, tx, `DELETE FROM carriers WHERE id = ?`, id))
	})
}

// Rate card operations

const rateCardColumns = `rc.id, rc.name, rc.direction, rc.carrier_id, rc.currency, rc.description,
	rc.external_id, rc.synced_at, rc.sync_error, rc.created_at, rc.updated_at,
	(SELECT COUNT(*) FROM rates r WHERE r.rate_card_id = rc.id)`

func scanRateCard(row rowScanner) (*models.RateCard, error) {
	var rc models.RateCard
	var carrierID sql.NullString
	var syncedAt sql.NullTime
	if err := row.Scan(&rc.ID, &rc.Name, &rc.Direction, &carrierID, &rc.Currency, &rc.Description,
		&rc.ExternalID, &syncedAt, &rc.SyncError, &rc.CreatedAt, &rc.UpdatedAt, &rc.RateCount); err != nil {
		return nil, err
	}
	rc.CarrierID = carrierID.String
	rc.SyncedAt = timePtr(syncedAt)
	rc.CreatedAt = rc.CreatedAt.UTC()
	rc.UpdatedAt = rc.UpdatedAt.UTC()
	return &rc, nil
}

// CreateRateCard inserts a rate card
func (s *SQLStore) CreateRateCard(ctx context.Context, rc *models.RateCard) error {
	_, err := s.exec(ctx, s.db, `INSERT INTO rate_cards (id, name, direction, carrier_id, currency,
		description, external_id, synced_at, sync_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rc.ID, rc.Name, rc.Direction, nullString(rc.CarrierID), rc.Currency, rc.Description,
		rc.ExternalID, nullTime(rc.SyncedAt), rc.SyncError, utc(rc.CreatedAt), utc(rc.UpdatedAt))
	return err
}

// GetRateCard retrieves a rate card by ID
func (s *SQLStore) GetRateCard(ctx context.Context, id string) (*models.RateCard, error) {
	rc, err := scanRateCard(s.queryRow(ctx, s.db, `SELECT `+rateCardColumns+` FROM rate_cards rc WHERE rc.id = ?`, id))
	return rc, notFound(err)
}

// ListRateCards returns rate cards by name, optionally filtered by direction
func (s *SQLStore) ListRateCards(ctx context.Context, direction string) ([]*models.RateCard, error) {
	var w where
	if direction != "" {
		w.add("rc.direction = ?", direction)
	}
	rows, err := s.query(ctx, s.db, `SELECT `+rateCardColumns+` FROM rate_cards rc`+w.String()+` ORDER BY rc.name`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.RateCard{}
	for rows.Next() {
		rc, err := scanRateCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// UpdateRateCard replaces rate card metadata
func (s *SQLStore) UpdateRateCard(ctx context.Context, rc *models.RateCard) error {
	return expectOne(s.exec(ctx, s.db, `UPDATE rate_cards SET name = ?, direction = ?, carrier_id = ?,
		currency = ?, description = ?, external_id = ?, synced_at = ?, sync_error = ?, updated_at = ?
		WHERE id = ?`,
		rc.Name, rc.Direction, nullString(rc.CarrierID), rc.Currency, rc.Description, rc.ExternalID,
		nullTime(rc.SyncedAt), rc.SyncError, utc(rc.UpdatedAt), rc.ID))
}

// DeleteRateCard removes a card and its rates. Cards assigned to customers cannot be deleted.
func (s *SQLStore) DeleteRateCard(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var refs int
		if err := s.queryRow(ctx, tx, `SELECT COUNT(*) FROM customers WHERE rate_card_id = ?`, id).Scan(&refs); err != nil {
			return err
		}
		if refs > 0 {
			return ErrConflict
		}
		if _, err := s.exec(ctx, tx, `DELETE FROM rates WHERE rate_card_id = ?`, id); err != nil {
			return err
		}
		return expectOne(s.exec(ctx, tx, `DELETE FROM rate_cards WHERE id = ?`, id))
	})
}

// ReplaceRates swaps the full rate list of a card in one transaction
func (s *SQLStore) ReplaceRates(ctx context.Context, cardID string, rates []models.Rate) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := s.queryRow(ctx, tx, `SELECT COUNT(*) FROM rate_cards WHERE id = ?`, cardID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
		if _, err := s.exec(ctx, tx, `DELETE FROM rates WHERE rate_card_id = ?`, cardID); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, s.d.rebind(`INSERT INTO rates (rate_card_id, prefix, destination,
			rate_per_min, connection_fee, initial_increment, increment) VALUES (?, ?, ?, ?, ?, ?, ?)`))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range rates {
			r.Normalize()
			if _, err := stmt.ExecContext(ctx, cardID, r.Prefix, r.Destination, r.RatePerMin,
				r.ConnectionFee, r.InitialIncrement, r.Increment); err != nil {
				return fmt.Errorf("rate %s: %w", r.Prefix, translateError(err))
			}
		}
		return nil
	})
}

func scanRate(row rowScanner) (models.Rate, error) {
	var r models.Rate
	err := row.Scan(&r.RateCardID, &r.Prefix, &r.Destination, &r.RatePerMin, &r.ConnectionFee,
		&r.InitialIncrement, &r.Increment)
	return r, err
}

// ListRates returns the rates of a card ordered by prefix
func (s *SQLStore) ListRates(ctx context.Context, cardID string) ([]models.Rate, error) {
	if _, err := s.GetRateCard(ctx, cardID); err != nil {
		return nil, err
	}

	rows, err := s.query(ctx, s.db, `SELECT rate_card_id, prefix, destination, rate_per_min, connection_fee,
		initial_increment, increment FROM rates WHERE rate_card_id = ? ORDER BY prefix`, cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Rate{}
	for rows.Next() {
		r, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FindRatesByPrefixes returns every rate whose prefix is in q.Prefixes
func (s *SQLStore) FindRatesByPrefixes(ctx context.Context, q RateQuery) ([]RateMatch, error) {
	if len(q.Prefixes) == 0 {
		return nil, nil
	}

	var w where
	args := make([]any, len(q.Prefixes))
	for i, p := range q.Prefixes {
		args[i] = p
	}
	w.add("r.prefix IN ("+placeholders(len(q.Prefixes))+")", args...)
	if q.Direction != "" {
		w.add("rc.direction = ?", q.Direction)
	}
	if q.CardID != "" {
		w.add("rc.id = ?", q.CardID)
	}

	rows, err := s.query(ctx, s.db, `SELECT rc.id, rc.name, rc.carrier_id, r.rate_card_id, r.prefix,
		r.destination, r.rate_per_min, r.connection_fee, r.initial_increment, r.increment
		FROM rates r JOIN rate_cards rc ON rc.id = r.rate_card_id`+w.String()+` ORDER BY rc.id, r.prefix`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RateMatch
	for rows.Next() {
		var m RateMatch
		var carrierID sql.NullString
		if err := rows.Scan(&m.CardID, &m.CardName, &carrierID, &m.Rate.RateCardID, &m.Rate.Prefix,
			&m.Rate.Destination, &m.Rate.RatePerMin, &m.Rate.ConnectionFee, &m.Rate.InitialIncrement,
			&m.Rate.Increment); err != nil {
			return nil, err
		}
		m.CarrierID = carrierID.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// Route operations

const routeColumns = `id, name, prefix, strategy, carrier_ids, enabled, external_id, synced_at, sync_error,
	created_at, updated_at`

func scanRoute(row rowScanner) (*models.Route, error) {
	var r models.Route
	var carriers string
	var syncedAt sql.NullTime
	if err := row.Scan(&r.ID, &r.Name, &r.Prefix, &r.Strategy, &carriers, &r.Enabled, &r.ExternalID,
		&syncedAt, &r.SyncError, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(carriers), &r.CarrierIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal carrier_ids: %w", err)
	}
	r.SyncedAt = timePtr(syncedAt)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

// checkCarriers makes sure every referenced carrier exists
func (s *SQLStore) checkCarriers(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	n, err := s.count(ctx, `SELECT COUNT(*) FROM carriers WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return err
	}
	if n != len(ids) {
		return ErrNotFound
	}
	return nil
}

// CreateRoute inserts a route
func (s *SQLStore) CreateRoute(ctx context.Context, r *models.Route) error {
	if err := s.checkCarriers(ctx, r.CarrierIDs); err != nil {
		return err
	}
	carriers, err := marshalJSON(r.CarrierIDs)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, s.db, `INSERT INTO routes (`+routeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Prefix, r.Strategy, carriers, r.Enabled, r.ExternalID, nullTime(r.SyncedAt),
		r.SyncError, utc(r.CreatedAt), utc(r.UpdatedAt))
	return err
}

// GetRoute retrieves a route by ID
func (s *SQLStore) GetRoute(ctx context.Context, id string) (*models.Route, error) {
	r, err := scanRoute(s.queryRow(ctx, s.db, `SELECT `+routeColumns+` FROM routes WHERE id = ?`, id))
	return r, notFound(err)
}

// ListRoutes returns routes by prefix then name
func (s *SQLStore) ListRoutes(ctx context.Context) ([]*models.Route, error) {
	rows, err := s.query(ctx, s.db, `SELECT `+routeColumns+` FROM routes ORDER BY prefix, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.Route{}
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateRoute replaces a route
func (s *SQLStore) UpdateRoute(ctx context.Context, r *models.Route) error {
	if err := s.checkCarriers(ctx, r.CarrierIDs); err != nil {
		return err
	}
	carriers, err := marshalJSON(r.CarrierIDs)
	if err != nil {
		return err
	}
	return expectOne(s.exec(ctx, s.db, `UPDATE routes SET name = ?, prefix = ?, strategy = ?, carrier_ids = ?,
		enabled = ?, external_id = ?, synced_at = ?, sync_error = ?, updated_at = ? WHERE id = ?`,
		r.Name, r.Prefix, r.Strategy, carriers, r.Enabled, r.ExternalID, nullTime(r.SyncedAt),
		r.SyncError, utc(r.UpdatedAt), r.ID))
}

// DeleteRoute removes a route
func (s *SQLStore) DeleteRoute(ctx context.Context, id string) error {
	return expectOne(s.exec(ctx, s.db, `DELETE FROM routes WHERE id = ?`, id))
}

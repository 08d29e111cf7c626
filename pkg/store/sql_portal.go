package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/voxlane/backoffice/pkg/models"
)

// DID operations

const didColumns = `id, number, country, region, type, monthly_price, setup_price, requires_kyc, status,
	customer_id, destination_type, destination_id, assigned_at, created_at, updated_at`

func scanDID(row rowScanner) (*models.DID, error) {
	var d models.DID
	var assignedAt sql.NullTime
	if err := row.Scan(&d.ID, &d.Number, &d.Country, &d.Region, &d.Type, &d.MonthlyPrice, &d.SetupPrice,
		&d.RequiresKYC, &d.Status, &d.CustomerID, &d.DestinationType, &d.DestinationID, &assignedAt,
		&d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.AssignedAt = timePtr(assignedAt)
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return &d, nil
}

// CreateDID inserts a number. Numbers are unique.
func (s *SQLStore) CreateDID(ctx context.Context, d *models.DID) error {
	_, err := s.exec(ctx, s.db, `INSERT INTO dids (`+didColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Number, d.Country, d.Region, d.Type, d.MonthlyPrice, d.SetupPrice, d.RequiresKYC,
		d.Status, d.CustomerID, d.DestinationType, d.DestinationID, nullTime(d.AssignedAt),
		utc(d.CreatedAt), utc(d.UpdatedAt))
	return err
}

// GetDID retrieves a DID by ID
func (s *SQLStore) GetDID(ctx context.Context, id string) (*models.DID, error) {
	d, err := scanDID(s.queryRow(ctx, s.db, `SELECT `+didColumns+` FROM dids WHERE id = ?`, id))
	return d, notFound(err)
}

// GetDIDByNumber retrieves a DID by its E.164 number
func (s *SQLStore) GetDIDByNumber(ctx context.Context, number string) (*models.DID, error) {
	d, err := scanDID(s.queryRow(ctx, s.db, `SELECT `+didColumns+` FROM dids WHERE number = ?`, number))
	return d, notFound(err)
}

// ListDIDs returns numbers ordered by number
func (s *SQLStore) ListDIDs(ctx context.Context, f models.DIDFilter) ([]*models.DID, int, error) {
	var w where
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.CustomerID != "" {
		w.add("customer_id = ?", f.CustomerID)
	}
	if f.Country != "" {
		w.add("upper(country) = upper(?)", f.Country)
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		w.add("(number LIKE ? OR region "+s.d.like+" ?)", pattern, pattern)
	}

	total, err := s.count(ctx, `SELECT COUNT(*) FROM dids`+w.String(), w.args...)
	if err != nil {
		return nil, 0, err
	}

	page := f.Page.Normalize()
	rows, err := s.query(ctx, s.db, `SELECT `+didColumns+` FROM dids`+w.String()+
		` ORDER BY number LIMIT ? OFFSET ?`, append(w.args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []*models.DID{}
	for rows.Next() {
		d, err := scanDID(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

// UpdateDID replaces a DID
func (s *SQLStore) UpdateDID(ctx context.Context, d *models.DID) error {
	return expectOne(s.exec(ctx, s.db, `UPDATE dids SET number = ?, country = ?, region = ?, type = ?,
		monthly_price = ?, setup_price = ?, requires_kyc = ?, status = ?, customer_id = ?,
		destination_type = ?, destination_id = ?, assigned_at = ?, updated_at = ? WHERE id = ?`,
		d.Number, d.Country, d.Region, d.Type, d.MonthlyPrice, d.SetupPrice, d.RequiresKYC, d.Status,
		d.CustomerID, d.DestinationType, d.DestinationID, nullTime(d.AssignedAt), utc(d.UpdatedAt), d.ID))
}

// DeleteDID removes a number. Assigned numbers must be released first.
func (s *SQLStore) DeleteDID(ctx context.Context, id string) error {
	d, err := s.GetDID(ctx, id)
	if err != nil {
		return err
	}
	if d.CustomerID != "" {
		return ErrConflict
	}
	return expectOne(s.exec(ctx, s.db, `DELETE FROM dids WHERE id = ? AND customer_id = ''`, id))
}

// AssignDID hands an available number to a customer.
// The status check is part of the UPDATE so two buyers cannot both win.
func (s *SQLStore) AssignDID(ctx context.Context, id, customerID string, at time.Time) (*models.DID, error) {
	res, err := s.exec(ctx, s.db, `UPDATE dids SET status = ?, customer_id = ?, assigned_at = ?,
		destination_type = ?, destination_id = '', updated_at = ? WHERE id = ? AND status = ?`,
		models.DIDStatusAssigned, customerID, utc(at), models.DestinationNone, utc(at), id, models.DIDStatusAvailable)
	if err := expectOne(res, err); err != nil {
		if errors.Is(err, ErrNotFound) {
			if _, getErr := s.GetDID(ctx, id); getErr == nil {
				return nil, ErrConflict
			}
		}
		return nil, err
	}
	return s.GetDID(ctx, id)
}

// ReleaseDID returns a customer's number to the pool
func (s *SQLStore) ReleaseDID(ctx context.Context, id, customerID string) (*models.DID, error) {
	res, err := s.exec(ctx, s.db, `UPDATE dids SET status = ?, customer_id = '', assigned_at = NULL,
		destination_type = ?, destination_id = '', updated_at = ? WHERE id = ? AND customer_id = ?`,
		models.DIDStatusAvailable, models.DestinationNone, time.Now().UTC(), id, customerID)
	if err := expectOne(res, err); err != nil {
		return nil, err
	}
	return s.GetDID(ctx, id)
}

// Extension operations

const extensionColumns = `id, customer_id, number, name, secret, voicemail, voicemail_pin, forward_to,
	caller_id, enabled, created_at, updated_at`

func scanExtension(row rowScanner) (*models.Extension, error) {
	var e models.Extension
	if err := row.Scan(&e.ID, &e.CustomerID, &e.Number, &e.Name, &e.Secret, &e.Voicemail, &e.VoicemailPIN,
		&e.ForwardTo, &e.CallerID, &e.Enabled, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

// CreateExtension inserts an extension. Numbers are unique per customer.
func (s *SQLStore) CreateExtension(ctx context.Context, e *models.Extension) error {
	_, err := s.exec(ctx, s.db, `INSERT INTO extensions (`+extensionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CustomerID, e.Number, e.Name, e.Secret, e.Voicemail, e.VoicemailPIN, e.ForwardTo,
		e.CallerID, e.Enabled, utc(e.CreatedAt), utc(e.UpdatedAt))
	return err
}

// GetExtension retrieves a customer's extension
func (s *SQLStore) GetExtension(ctx context.Context, customerID, id string) (*models.Extension, error) {
	e, err := scanExtension(s.queryRow(ctx, s.db, `SELECT `+extensionColumns+` FROM extensions
		WHERE id = ? AND customer_id = ?`, id, customerID))
	return e, notFound(err)
}

// ListExtensions returns a customer's extensions by number
func (s *SQLStore) ListExtensions(ctx context.Context, customerID string) ([]*models.Extension, error) {
	rows, err := s.query(ctx, s.db, `SELECT `+extensionColumns+` FROM extensions WHERE customer_id = ? ORDER BY number`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.Extension{}
	for rows.Next() {
		e, err := scanExtension(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateExtension replaces an extension
func (s *SQLStore) UpdateExtension(ctx context.Context, e *models.Extension) error {
	return expectOne(s.exec(ctx, s.db, `UPDATE extensions SET number = ?, name = ?, secret = ?, voicemail = ?,
		voicemail_pin = ?, forward_to = ?, caller_id = ?, enabled = ?, updated_at = ?
		WHERE id = ? AND customer_id = ?`,
		e.Number, e.Name, e.Secret, e.Voicemail, e.VoicemailPIN, e.ForwardTo, e.CallerID, e.Enabled,
		utc(e.UpdatedAt), e.ID, e.CustomerID))
}

// DeleteExtension removes a customer's extension
func (s *SQLStore) DeleteExtension(ctx context.Context, customerID, id string) error {
	return expectOne(s.exec(ctx, s.db, `DELETE FROM extensions WHERE id = ? AND customer_id = ?`, id, customerID))
}

// IVR operations

const ivrColumns = `id, customer_id, name, greeting, timeout_seconds, options, created_at, updated_at`

func scanIVR(row rowScanner) (*models.IVRMenu, error) {
	var m models.IVRMenu
	var options string
	if err := row.Scan(&m.ID, &m.CustomerID, &m.Name, &m.Greeting, &m.TimeoutSeconds, &options,
		&m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(options), &m.Options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ivr options: %w", err)
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}

// CreateIVRMenu inserts an IVR menu
func (s *SQLStore) CreateIVRMenu(ctx context.Context, m *models.IVRMenu) error {
	options, err := marshalJSON(optionsOrEmpty(m.Options))
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, s.db, `INSERT INTO ivr_menus (`+ivrColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.CustomerID, m.Name, m.Greeting, m.TimeoutSeconds, options, utc(m.CreatedAt), utc(m.UpdatedAt))
	return err
}

func optionsOrEmpty(opts []models.IVROption) []models.IVROption {
	if opts == nil {
		return []models.IVROption{}
	}
	return opts
}

// GetIVRMenu retrieves a customer's IVR menu
func (s *SQLStore) GetIVRMenu(ctx context.Context, customerID, id string) (*models.IVRMenu, error) {
	m, err := scanIVR(s.queryRow(ctx, s.db, `SELECT `+ivrColumns+` FROM ivr_menus WHERE id = ? AND customer_id = ?`, id, customerID))
	return m, notFound(err)
}

// ListIVRMenus returns a customer's IVR menus by name
func (s *SQLStore) ListIVRMenus(ctx context.Context, customerID string) ([]*models.IVRMenu, error) {
	rows, err := s.query(ctx, s.db, `SELECT `+ivrColumns+` FROM ivr_menus WHERE customer_id = ? ORDER BY name`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.IVRMenu{}
	for rows.Next() {
		m, err := scanIVR(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateIVRMenu replaces an IVR menu
func (s *SQLStore) UpdateIVRMenu(ctx context.Context, m *models.IVRMenu) error {
	options, err := marshalJSON(optionsOrEmpty(m.Options))
	if err != nil {
		return err
	}
	return expectOne(s.exec(ctx, s.db, `UPDATE ivr_menus SET name = ?, greeting = ?, timeout_seconds = ?,
		options = ?, updated_at = ? WHERE id = ? AND customer_id = ?`,
		m.Name, m.Greeting, m.TimeoutSeconds, options, utc(m.UpdatedAt), m.ID, m.CustomerID))
}

// DeleteIVRMenu removes a customer's IVR menu
func (s *SQLStore) DeleteIVRMenu(ctx context.Context, customerID, id string) error {
	return expectOne(s.exec(ctx, s.db, `DELETE FROM ivr_menus WHERE id = ? AND customer_id = ?`, id, customerID))
}

// Voice agent operations

const voiceAgentColumns = `id, customer_id, name, voice, language, system_prompt, greeting, transfer_to,
	enabled, created_at, updated_at`

func scanVoiceAgent(row rowScanner) (*models.VoiceAgent, error) {
	var a models.VoiceAgent
	if err := row.Scan(&a.ID, &a.CustomerID, &a.Name, &a.Voice, &a.Language, &a.SystemPrompt, &a.Greeting,
		&a.TransferTo, &a.Enabled, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

// CreateVoiceAgent inserts a voice agent
func (s *SQLStore) CreateVoiceAgent(ctx context.Context, a *models.VoiceAgent) error {
	_, err := s.exec(ctx, s.db, `INSERT INTO voice_agents (`+voiceAgentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CustomerID, a.Name, a.Voice, a.Language, a.SystemPrompt, a.Greeting, a.TransferTo,
		a.Enabled, utc(a.CreatedAt), utc(a.UpdatedAt))
	return err
}

// GetVoiceAgent retrieves a customer's voice agent
func (s *SQLStore) GetVoiceAgent(ctx context.Context, customerID, id string) (*models.VoiceAgent, error) {
	a, err := scanVoiceAgent(s.queryRow(ctx, s.db, `SELECT `+voiceAgentColumns+` FROM voice_agents
		WHERE id = ? AND customer_id = ?`, id, customerID))
	return a, notFound(err)
}

// ListVoiceAgents returns a customer's voice agents by name
func (s *SQLStore) ListVoiceAgents(ctx context.Context, customerID string) ([]*models.VoiceAgent, error) {
	rows, err := s.query(ctx, s.db, `SELECT `+voiceAgentColumns+` FROM voice_agents WHERE customer_id = ? ORDER BY name`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.VoiceAgent{}
	for rows.Next() {
		a, err := scanVoiceAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateVoiceAgent replaces a voice agent
func (s *SQLStore) UpdateVoiceAgent(ctx context.Context, a *models.VoiceAgent) error {
	return expectOne(s.exec(ctx, s.db, `UPDATE voice_agents SET name = ?, voice = ?, language = ?,
		system_prompt = ?, greeting = ?, transfer_to = ?, enabled = ?, updated_at = ?
		WHERE id = ? AND customer_id = ?`,
		a.Name, a.Voice, a.Language, a.SystemPrompt, a.Greeting, a.TransferTo, a.Enabled, utc(a.UpdatedAt),
		a.ID, a.CustomerID))
}

// DeleteVoiceAgent removes a customer's voice agent
func (s *SQLStore) DeleteVoiceAgent(ctx context.Context, customerID, id string) error {
	return expectOne(s.exec(ctx, s.db, `DELETE FROM voice_agents WHERE id = ? AND customer_id = ?`, id, customerID))
}

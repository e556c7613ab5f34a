package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"job_distributor/internal/model"
	"job_distributor/migrations"
)

const offerColumns = `id, external_id, connection_id, title, job_title, description, company_name, sector,
	address, country, region, city, postcode, latitude, longitude, vacancies, salary_min, salary_max,
	job_type, external_url, application_url, publication_date, budget, budget_spent, applications_goal,
	applications_received, status, source, created_at, updated_at`

// Re-sync overwrites source fields. Paused, completed and archived offers keep
// their status; spend, received applications and created_at are never reset.
const upsertOfferSQL = `INSERT INTO offers (external_id, connection_id, title, job_title, description,
	company_name, sector, address, country, region, city, postcode, latitude, longitude, vacancies,
	salary_min, salary_max, job_type, external_url, application_url, publication_date, budget,
	budget_spent, applications_goal, applications_received, status, source, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (external_id, connection_id) DO UPDATE SET
	title = excluded.title,
	job_title = excluded.job_title,
	description = excluded.description,
	company_name = excluded.company_name,
	sector = excluded.sector,
	address = excluded.address,
	country = excluded.country,
	region = excluded.region,
	city = excluded.city,
	postcode = excluded.postcode,
	latitude = excluded.latitude,
	longitude = excluded.longitude,
	vacancies = excluded.vacancies,
	salary_min = excluded.salary_min,
	salary_max = excluded.salary_max,
	job_type = excluded.job_type,
	external_url = excluded.external_url,
	application_url = excluded.application_url,
	publication_date = excluded.publication_date,
	budget = excluded.budget,
	applications_goal = excluded.applications_goal,
	source = excluded.source,
	updated_at = excluded.updated_at,
	status = CASE WHEN offers.status IN (2, 3, 4, 5) THEN offers.status ELSE excluded.status END
	RETURNING id, status, created_at`

// UpsertOffer inserts or updates an offer keyed by (external id, connection)
// and populates its ID, Status and CreatedAt from the stored row.
func (s *SQL) UpsertOffer(ctx context.Context, o *model.Offer) error {
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = now
	}
	if o.Status == 0 {
		o.Status = model.StatusPending
	}

	var status int
	var created sql.NullString
	err := s.queryRow(ctx, upsertOfferSQL,
		o.ExternalID, o.ConnectionID, o.Title, o.JobTitle, o.Description,
		o.CompanyName, o.Sector, o.Address, o.Country, o.Region, o.City, o.Postcode, o.Latitude, o.Longitude, o.Vacancies,
		o.SalaryMin, o.SalaryMax, o.JobType, o.ExternalURL, o.ApplicationURL, formatTimePtr(o.PublicationDate), o.Budget,
		o.BudgetSpent, o.ApplicationsGoal, o.ApplicationsReceived, int(o.Status), o.Source,
		formatTime(o.CreatedAt), formatTime(o.UpdatedAt),
	).Scan(&o.ID, &status, &created)
	if err != nil {
		return fmt.Errorf("upsert offer %s: %w", o.ExternalID, err)
	}
	o.Status = model.OfferStatus(status)
	o.CreatedAt = parseTime(created)
	return nil
}

// GetOffer returns a single offer by its ID.
func (s *SQL) GetOffer(ctx context.Context, id int64) (*model.Offer, error) {
	row := s.queryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = ?`, id)
	o, err := scanOffer(row)
	if err != nil {
		return nil, notFound(err, "offer")
	}
	return o, nil
}

// GetOfferByExternalID returns the offer of a connection with the given external id.
func (s *SQL) GetOfferByExternalID(ctx context.Context, connectionID int64, externalID string) (*model.Offer, error) {
	row := s.queryRow(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE connection_id = ? AND external_id = ?`,
		connectionID, externalID,
	)
	o, err := scanOffer(row)
	if err != nil {
		return nil, notFound(err, "offer")
	}
	return o, nil
}

// ListOffers returns all offers of a connection ordered by ID.
func (s *SQL) ListOffers(ctx context.Context, connectionID int64) ([]model.Offer, error) {
	rows, err := s.query(ctx,
		`SELECT `+offerColumns+` FROM offers WHERE connection_id = ? ORDER BY id`, connectionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query offers: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanOffers(rows)
}

// ListActiveOffers returns the active offers of every connection owned by
// userID, newest first.
func (s *SQL) ListActiveOffers(ctx context.Context, userID int64) ([]model.Offer, error) {
	rows, err := s.query(ctx,
		`SELECT `+prefixed("o", offerColumns)+` FROM offers o
		 JOIN connections c ON c.id = o.connection_id
		 WHERE o.status = ? AND c.user_id = ?
		 ORDER BY o.created_at DESC, o.id DESC`,
		int(model.StatusActive), userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query active offers: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanOffers(rows)
}

// SetOfferStatus sets the status of one offer, as done by manual pause/resume.
func (s *SQL) SetOfferStatus(ctx context.Context, id int64, status model.OfferStatus) error {
	res, err := s.exec(ctx,
		`UPDATE offers SET status = ?, updated_at = ? WHERE id = ?`,
		int(status), formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("update offer status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("offer %d: %w", id, ErrNotFound)
	}
	return nil
}

// ArchiveMissing archives the offers of one sweep range. It issues a single
// statement and returns the number of archived rows.
func (s *SQL) ArchiveMissing(ctx context.Context, r ArchiveRange) (int64, error) {
	col := "external_id"
	if s.dialect == migrations.Postgres {
		// Range bounds are computed with byte-wise ordering.
		col = `external_id COLLATE "C"`
	}

	query := `UPDATE offers SET status = ?, updated_at = ?
		WHERE connection_id = ? AND source = ? AND status NOT IN (?, ?, ?, ?)`
	args := []any{
		int(model.StatusArchived), formatTime(time.Now()), r.ConnectionID, r.Source,
		int(model.StatusPaused), int(model.StatusGoalCompleted), int(model.StatusBudgetCompleted), int(model.StatusArchived),
	}
	if r.From != "" {
		query += ` AND ` + col + ` >= ?`
		args = append(args, r.From)
	}
	if r.Until != "" {
		query += ` AND ` + col + ` < ?`
		args = append(args, r.Until)
	}
	if len(r.Keep) > 0 {
		query += ` AND external_id NOT IN (` + placeholders(len(r.Keep)) + `)`
		for _, id := range r.Keep {
			args = append(args, id)
		}
	}

	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("archive offers: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PromoteGoalCompleted marks active offers that reached their applications
// goal. A zero connectionID applies to every connection.
func (s *SQL) PromoteGoalCompleted(ctx context.Context, connectionID int64) (int64, error) {
	return s.promote(ctx, model.StatusGoalCompleted,
		`applications_goal > 0 AND applications_received >= applications_goal`, connectionID)
}

// PromoteBudgetCompleted marks active offers that spent their budget. A zero
// connectionID applies to every connection.
func (s *SQL) PromoteBudgetCompleted(ctx context.Context, connectionID int64) (int64, error) {
	return s.promote(ctx, model.StatusBudgetCompleted,
		`budget > 0 AND budget_spent >= budget`, connectionID)
}

func (s *SQL) promote(ctx context.Context, to model.OfferStatus, cond string, connectionID int64) (int64, error) {
	query := `UPDATE offers SET status = ?, updated_at = ? WHERE status = ? AND ` + cond
	args := []any{int(to), formatTime(time.Now()), int(model.StatusActive)}
	if connectionID != 0 {
		query += ` AND connection_id = ?`
		args = append(args, connectionID)
	}
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("promote offers to %s: %w", to, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanOffer(row scannable) (*model.Offer, error) {
	var o model.Offer
	var lat, lng, salMin, salMax sql.NullFloat64
	var pub, created, updated sql.NullString
	var status int
	err := row.Scan(&o.ID, &o.ExternalID, &o.ConnectionID, &o.Title, &o.JobTitle, &o.Description,
		&o.CompanyName, &o.Sector, &o.Address, &o.Country, &o.Region, &o.City, &o.Postcode,
		&lat, &lng, &o.Vacancies, &salMin, &salMax, &o.JobType, &o.ExternalURL, &o.ApplicationURL,
		&pub, &o.Budget, &o.BudgetSpent, &o.ApplicationsGoal, &o.ApplicationsReceived, &status,
		&o.Source, &created, &updated)
	if err != nil {
		return nil, err
	}
	o.Latitude = floatPtr(lat)
	o.Longitude = floatPtr(lng)
	o.SalaryMin = floatPtr(salMin)
	o.SalaryMax = floatPtr(salMax)
	o.PublicationDate = parseTimePtr(pub)
	o.Status = model.OfferStatus(status)
	o.CreatedAt = parseTime(created)
	o.UpdatedAt = parseTime(updated)
	return &o, nil
}

func scanOffers(rows *sql.Rows) ([]model.Offer, error) {
	var offers []model.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		offers = append(offers, *o)
	}
	return offers, rows.Err()
}

package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"flightclaim/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const claimColumns = `id,status,fast_track,departure_iata,arrival_iata,COALESCE(flight_number,''),COALESCE(travel_date,''),problem_type,email,COALESCE(phone,''),COALESCE(booking_reference,''),payload_json,created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanClaim(row scanner) (domain.Claim, error) {
	var c domain.Claim
	var fastTrack int
	err := row.Scan(&c.ID, &c.Status, &fastTrack, &c.DepartureIATA, &c.ArrivalIATA, &c.FlightNumber, &c.TravelDate,
		&c.ProblemType, &c.Email, &c.Phone, &c.BookingReference, &c.PayloadJSON, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	c.FastTrack = fastTrack != 0
	return c, err
}

func (r Repo) InsertClaimTx(ctx context.Context, tx *sql.Tx, c domain.Claim) error {
	fastTrack := 0
	if c.FastTrack {
		fastTrack = 1
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO claims(id,status,fast_track,departure_iata,arrival_iata,flight_number,travel_date,problem_type,email,phone,booking_reference,payload_json,created_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Status, fastTrack, c.DepartureIATA, c.ArrivalIATA, nullable(c.FlightNumber), nullable(c.TravelDate),
		string(c.ProblemType), c.Email, nullable(c.Phone), nullable(c.BookingReference), c.PayloadJSON, c.CreatedAt)
	return err
}

func (r Repo) GetClaim(ctx context.Context, id string) (domain.Claim, error) {
	return scanClaim(r.DB.QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claims WHERE id=?`, id))
}

// ClaimFilters narrows ListClaimsWithCursor. Cursor fields page backwards from the last
// claim of the previous page.
type ClaimFilters struct {
	Status          string
	Email           string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListClaimsWithCursor(ctx context.Context, f ClaimFilters) ([]domain.Claim, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Email != "" {
		clauses = append(clauses, "lower(email)=lower(?)")
		args = append(args, f.Email)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + claimColumns + ` FROM claims WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) CountClaimsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM claims GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

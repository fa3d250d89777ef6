package store

import (
	"context"
	"strings"

	"github.com/lox/wdqms/internal/models"
)

// AddCountry adds or renames a catalog country. Codes are stored upper-case.
func (s *Store) AddCountry(ctx context.Context, c models.Country) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO countries (code, name) VALUES (?, ?)
		ON CONFLICT(code) DO UPDATE SET name = excluded.name
	`, strings.ToUpper(c.Code), c.Name)
	return err
}

// RemoveCountry deletes a catalog country, reporting whether it existed.
func (s *Store) RemoveCountry(ctx context.Context, code string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM countries WHERE code = ?`, strings.ToUpper(code))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) ListCountries(ctx context.Context) ([]models.Country, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code, name FROM countries ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var countries []models.Country
	for rows.Next() {
		var c models.Country
		if err := rows.Scan(&c.Code, &c.Name); err != nil {
			return nil, err
		}
		countries = append(countries, c)
	}
	return countries, rows.Err()
}

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/JaimeStill/recognition/pkg/repository"
)

const (
	mandateQuery  = `SELECT name FROM mandates WHERE id = $1`
	categoryQuery = `SELECT category_name FROM plans WHERE id = $1`
	productQuery  = `
		SELECT p.ref, pl.category_name, c.name, s.name
		FROM products p
		LEFT JOIN plans pl ON pl.id = p.plan_id
		LEFT JOIN companies c ON c.id = p.company_id
		LEFT JOIN subcompanies s ON s.id = p.subcompany_id
		WHERE p.ref = $1`
)

type sqlLookup struct {
	db repository.Querier
}

// NewSQL creates a Lookup that queries the catalog tables directly.
func NewSQL(db repository.Querier) Lookup {
	return &sqlLookup{db: db}
}

func (l *sqlLookup) Mandate(ctx context.Context, id string) (string, bool, error) {
	return l.name(ctx, mandateQuery, id)
}

func (l *sqlLookup) Category(ctx context.Context, planID string) (string, bool, error) {
	return l.name(ctx, categoryQuery, planID)
}

func (l *sqlLookup) Product(ctx context.Context, ref string) (Product, bool, error) {
	p, err := repository.QueryOne(ctx, l.db, productQuery, []any{ref}, scanProduct)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, fmt.Errorf("lookup product %s: %w", ref, err)
	}
	return p, true, nil
}

func (l *sqlLookup) name(ctx context.Context, query, id string) (string, bool, error) {
	name, err := repository.QueryOne(ctx, l.db, query, []any{id}, func(s repository.Scanner) (sql.NullString, error) {
		var n sql.NullString
		err := s.Scan(&n)
		return n, err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup %s: %w", id, err)
	}
	return name.String, name.Valid, nil
}

func scanProduct(s repository.Scanner) (Product, error) {
	var (
		p                             Product
		category, company, subcompany sql.NullString
	)
	err := s.Scan(&p.Ref, &category, &company, &subcompany)
	p.CategoryName = category.String
	p.CompanyName = company.String
	p.SubcompanyName = subcompany.String
	return p, err
}

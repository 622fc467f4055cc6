package survey

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCatalog reads survey definitions from PostgreSQL.
type PostgresCatalog struct {
	pool   *pgxpool.Pool
	schema string
}

// CatalogOption configures PostgresCatalog.
type CatalogOption func(*PostgresCatalog) error

// WithSchema sets the DB schema used by the catalog (default: "vox").
func WithSchema(schema string) CatalogOption {
	return func(c *PostgresCatalog) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return ErrInvalidInput
		}
		c.schema = schema
		return nil
	}
}

// NewPostgresCatalog constructs a PostgresCatalog.
func NewPostgresCatalog(pool *pgxpool.Pool, opts ...CatalogOption) (*PostgresCatalog, error) {
	c := &PostgresCatalog{pool: pool, schema: "vox"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.pool == nil {
		return nil, ErrInvalidInput
	}
	return c, nil
}

// GetSurvey fetches a survey header by ID.
func (c *PostgresCatalog) GetSurvey(ctx context.Context, id string) (Survey, error) {
	if c == nil || c.pool == nil {
		return Survey{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Survey{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Survey{}, ErrInvalidInput
	}

	surveys := pgIdent(c.schema, "surveys")
	var out Survey
	err := c.pool.QueryRow(ctx,
		`SELECT id, title, status, created_at
		   FROM `+surveys+`
		  WHERE id = $1`,
		id,
	).Scan(&out.ID, &out.Title, &out.Status, &out.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Survey{}, ErrNotFound
		}
		return Survey{}, err
	}
	return out, nil
}

// Questions returns the survey's questions ordered by position.
func (c *PostgresCatalog) Questions(ctx context.Context, surveyID string) ([]Question, error) {
	if c == nil || c.pool == nil {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	surveyID = strings.TrimSpace(surveyID)
	if surveyID == "" {
		return nil, ErrInvalidInput
	}

	// Existence check so an unknown survey is not confused with an empty one.
	if _, err := c.GetSurvey(ctx, surveyID); err != nil {
		return nil, err
	}

	questions := pgIdent(c.schema, "questions")
	rows, err := c.pool.Query(ctx,
		`SELECT survey_id, code, prompt, qtype, required, sensitive, options, constraints, position
		   FROM `+questions+`
		  WHERE survey_id = $1
		  ORDER BY position ASC, code ASC`,
		surveyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		var q Question
		if err := rows.Scan(
			&q.SurveyID,
			&q.Code,
			&q.Prompt,
			&q.Type,
			&q.Required,
			&q.Sensitive,
			&q.Options,
			&q.Constraints,
			&q.Position,
		); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

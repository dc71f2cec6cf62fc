package corpus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	pkgerrors "github.com/kitchenframe/recipesearch/pkg/errors"
	"github.com/kitchenframe/recipesearch/pkg/postgres"
)

// PostgresSource loads documents from a corpus table with id, text, and
// metadata (jsonb) columns.
type PostgresSource struct {
	client *postgres.Client
	table  string
}

// NewPostgresSource creates a PostgresSource reading from the given table.
func NewPostgresSource(client *postgres.Client, table string) *PostgresSource {
	return &PostgresSource{client: client, table: table}
}

// Load queries the corpus table ordered by id.
func (s *PostgresSource) Load(ctx context.Context) ([]Document, error) {
	query := fmt.Sprintf(`SELECT id, text, metadata FROM %q ORDER BY id`, s.table)
	rows, err := s.client.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying corpus table %s: %w", s.table, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			id       int64
			text     sql.NullString
			metadata []byte
		)
		if err := rows.Scan(&id, &text, &metadata); err != nil {
			return nil, fmt.Errorf("scanning corpus row: %w", err)
		}
		if !text.Valid {
			return nil, fmt.Errorf("%w: row id %d: null text column", pkgerrors.ErrCorpusMalformed, id)
		}
		if len(metadata) == 0 {
			metadata = []byte("{}")
		}
		docs = append(docs, Document{
			ID:       id,
			Text:     text.String,
			Metadata: json.RawMessage(metadata),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating corpus rows: %w", err)
	}
	if err := validate(docs); err != nil {
		return nil, err
	}
	return docs, nil
}

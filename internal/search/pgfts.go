package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; without Postgres the API is down anyway.
func (p *PgFTS) Healthy() bool {
	return true
}

// buildSQL returns the count and page statements for q plus their arguments.
// Documents match the stored fts column; chat titles are matched inline.
func buildSQL(q Query, limit, offset int) (string, string, []any) {
	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text, q.WorkspaceID}

	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultDocument {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'document'::text AS type, d.id, d.title,
				ts_headline('english', coalesce(nullif(d.summary, ''), d.content), %[1]s, 'MaxFragments=1,MaxWords=30') AS snippet,
				coalesce(d.chat_id, '') AS chat_id, d.workspace_id,
				''::text AS visibility,
				ts_rank(d.fts, %[1]s) AS rank
			FROM documents d
			WHERE d.fts @@ %[1]s AND d.workspace_id = $2`, tsQuery))
	}
	if q.FilterType == "" || q.FilterType == ResultChat {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'chat'::text AS type, c.id, c.title,
				c.title AS snippet,
				c.id AS chat_id, c.workspace_id,
				c.visibility,
				ts_rank(to_tsvector('english', c.title), %[1]s) AS rank
			FROM chats c
			WHERE to_tsvector('english', c.title) @@ %[1]s AND c.workspace_id = $2`, tsQuery))
	}
	if len(subQueries) == 0 {
		return "", "", nil
	}

	union := strings.Join(subQueries, " UNION ALL ")
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, chat_id, workspace_id, visibility
		FROM (%s) sub
		ORDER BY rank DESC, id
		LIMIT %d OFFSET %d`, union, limit, offset)
	return countSQL, dataSQL, args
}

// Search runs plainto_tsquery across documents and chats of one workspace.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || q.WorkspaceID == "" {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := max(q.Offset, 0)

	countSQL, dataSQL, args := buildSQL(q, limit, offset)
	if countSQL == "" {
		return nil, 0, nil
	}

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ChatID, &r.WorkspaceID, &r.Visibility); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]DocumentRecord, []ChatRecord, error) {
	docRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, summary, content, coalesce(chat_id, ''), workspace_id
		FROM documents
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load documents: %w", err)
	}
	defer docRows.Close()

	documents := make([]DocumentRecord, 0)
	for docRows.Next() {
		var d DocumentRecord
		if err := docRows.Scan(&d.ID, &d.Title, &d.Summary, &d.Content, &d.ChatID, &d.WorkspaceID); err != nil {
			return nil, nil, fmt.Errorf("scan document: %w", err)
		}
		documents = append(documents, d)
	}
	if err := docRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate documents: %w", err)
	}

	chatRows, err := p.db.QueryContext(ctx, `SELECT id, title, workspace_id, visibility FROM chats`)
	if err != nil {
		return nil, nil, fmt.Errorf("load chats: %w", err)
	}
	defer chatRows.Close()

	chats := make([]ChatRecord, 0)
	for chatRows.Next() {
		var c ChatRecord
		if err := chatRows.Scan(&c.ID, &c.Title, &c.WorkspaceID, &c.Visibility); err != nil {
			return nil, nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	if err := chatRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate chats: %w", err)
	}

	return documents, chats, nil
}

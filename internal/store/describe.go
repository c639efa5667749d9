package store

import (
	"context"
	"fmt"
)

const topN = 5

// Describe returns a one-call overview of the index — row counts,
// annotation-kind distribution, top models/agents/tools and the session
// date range — so a caller can orient itself before issuing targeted
// queries. Honors the indexing barrier.
func (s *Store) Describe(ctx context.Context) (*Overview, error) {
	if err := s.awaitReadable(ctx); err != nil {
		return nil, err
	}

	o := &Overview{AnnotationKinds: make(map[string]int64)}

	counts := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM sessions", &o.SessionCount},
		{"SELECT COUNT(*) FROM turns", &o.TurnCount},
		{"SELECT COUNT(*) FROM annotations", &o.AnnotationCount},
	}
	for _, c := range counts {
		if err := s.rw.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("store: describe: %w", err)
		}
	}

	rows, err := s.rw.QueryContext(ctx,
		"SELECT kind, COUNT(*) FROM annotations GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("store: describe kinds: %w", err)
	}
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			rows.Close()
			return nil, err
		}
		o.AnnotationKinds[kind] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if o.TopModels, err = s.topCounts(ctx,
		"SELECT model, COUNT(*) FROM turns WHERE model != '' GROUP BY model ORDER BY COUNT(*) DESC LIMIT ?"); err != nil {
		return nil, err
	}
	if o.TopAgents, err = s.topCounts(ctx,
		"SELECT agent, COUNT(*) FROM turns WHERE agent != '' GROUP BY agent ORDER BY COUNT(*) DESC LIMIT ?"); err != nil {
		return nil, err
	}
	if o.TopTools, err = s.topCounts(ctx,
		"SELECT name, COUNT(*) FROM annotations WHERE kind = 'tool' AND name != '' GROUP BY name ORDER BY COUNT(*) DESC LIMIT ?"); err != nil {
		return nil, err
	}

	if o.SessionCount > 0 {
		err = s.rw.QueryRowContext(ctx,
			"SELECT MIN(creation_date), MAX(creation_date) FROM sessions",
		).Scan(&o.OldestSession, &o.NewestSession)
		if err != nil {
			return nil, fmt.Errorf("store: describe range: %w", err)
		}
	}

	return o, nil
}

func (s *Store) topCounts(ctx context.Context, query string) ([]NameCount, error) {
	rows, err := s.rw.QueryContext(ctx, query, topN)
	if err != nil {
		return nil, fmt.Errorf("store: describe top: %w", err)
	}
	defer rows.Close()

	var result []NameCount
	for rows.Next() {
		var nc NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, err
		}
		result = append(result, nc)
	}
	return result, rows.Err()
}

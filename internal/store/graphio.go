package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/foldvc/foldvc/internal/event"
	"github.com/foldvc/foldvc/internal/graph"
)

// SaveGraph writes a snapshot, replacing whatever was stored before.
// The rewrite runs in one transaction: readers see either the old
// snapshot or the new one, never a mix.
func (s *Store) SaveGraph(ctx context.Context, snap *graph.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save graph: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM events"); err != nil {
		return fmt.Errorf("save graph: clear events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM branches"); err != nil {
		return fmt.Errorf("save graph: clear branches: %w", err)
	}

	insertEvent, err := tx.PrepareContext(ctx,
		"INSERT INTO events (id, kind, payload, predecessors) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("save graph: prepare: %w", err)
	}
	defer insertEvent.Close()

	for _, rec := range snap.Events {
		preds, err := json.Marshal(rec.Predecessors)
		if err != nil {
			return fmt.Errorf("save graph: encode predecessors of %s: %w", rec.ID, err)
		}
		if _, err := insertEvent.ExecContext(ctx, string(rec.ID), rec.Kind, rec.Payload, string(preds)); err != nil {
			return fmt.Errorf("save graph: insert %s: %w", rec.ID, err)
		}
	}

	for name, head := range snap.Branches {
		headJSON, err := json.Marshal(head)
		if err != nil {
			return fmt.Errorf("save graph: encode head of %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO branches (name, head) VALUES (?, ?)", name, string(headJSON)); err != nil {
			return fmt.Errorf("save graph: insert branch %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save graph: commit: %w", err)
	}
	return nil
}

// LoadGraph reads the stored snapshot. An empty database loads as an
// empty snapshot, so a fresh file behaves like a fresh graph.
func (s *Store) LoadGraph(ctx context.Context) (*graph.Snapshot, error) {
	snap := &graph.Snapshot{Branches: make(map[string]event.Frontier)}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, kind, payload, predecessors FROM events ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("load graph: events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id, kind, preds string
			payload         []byte
		)
		if err := rows.Scan(&id, &kind, &payload, &preds); err != nil {
			return nil, fmt.Errorf("load graph: scan event: %w", err)
		}
		var predIDs []event.ID
		if err := json.Unmarshal([]byte(preds), &predIDs); err != nil {
			return nil, fmt.Errorf("load graph: decode predecessors of %s: %w", id, err)
		}
		snap.Events = append(snap.Events, graph.Record{
			ID:           event.ID(id),
			Kind:         kind,
			Payload:      payload,
			Predecessors: predIDs,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load graph: events: %w", err)
	}

	if err := s.loadBranches(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Store) loadBranches(ctx context.Context, snap *graph.Snapshot) error {
	rows, err := s.db.QueryContext(ctx, "SELECT name, head FROM branches ORDER BY name")
	if err != nil {
		return fmt.Errorf("load graph: branches: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name, head string
		if err := rows.Scan(&name, &head); err != nil {
			return fmt.Errorf("load graph: scan branch: %w", err)
		}
		var ids []event.ID
		if err := json.Unmarshal([]byte(head), &ids); err != nil {
			return fmt.Errorf("load graph: decode head of %q: %w", name, err)
		}
		snap.Branches[name] = event.NewFrontier(ids...)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load graph: branches: %w", err)
	}
	return nil
}

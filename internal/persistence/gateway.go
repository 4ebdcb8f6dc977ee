package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nexusdev/nexus/internal/filelock"
	"github.com/nexusdev/nexus/internal/models"
)

// Gateway implements coordinator.PersistenceGateway: it writes every
// Checkpoint to SQLite and mirrors the most recent one into a plain JSON
// pointer file, guarded by a flock, so a crashed process can recover its
// last checkpoint without touching the database.
type Gateway struct {
	store       *Store
	pointerPath string
}

// NewGateway wraps store and maintains a "latest checkpoint" pointer file
// at pointerPath (e.g. "<nexus-home>/latest-checkpoint.json").
func NewGateway(store *Store, pointerPath string) *Gateway {
	return &Gateway{store: store, pointerPath: pointerPath}
}

type checkpointRow struct {
	CheckpointID   string             `json:"checkpoint_id"`
	PlanID         string             `json:"plan_id"`
	CreatedAt      time.Time          `json:"created_at"`
	PlanSnapshot   *models.Plan       `json:"plan_snapshot"`
	TaskStatuses   map[string]models.Status `json:"task_statuses"`
	GitRefs        []string           `json:"git_refs"`
	IteratorCursor string             `json:"iterator_cursor"`
}

// WriteCheckpoint persists cp both to the SQLite table and, on success, to
// the latest-checkpoint pointer file.
func (g *Gateway) WriteCheckpoint(ctx context.Context, cp models.Checkpoint) error {
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}

	planJSON, err := json.Marshal(cp.PlanSnapshot)
	if err != nil {
		return fmt.Errorf("persistence: marshal plan snapshot: %w", err)
	}
	statusJSON, err := json.Marshal(cp.TaskStatuses)
	if err != nil {
		return fmt.Errorf("persistence: marshal task statuses: %w", err)
	}
	refsJSON, err := json.Marshal(cp.GitRefs)
	if err != nil {
		return fmt.Errorf("persistence: marshal git refs: %w", err)
	}

	planID := ""
	if cp.PlanSnapshot != nil {
		planID = cp.PlanSnapshot.PlanID
	}

	_, err = g.store.db.ExecContext(ctx,
		`INSERT INTO checkpoints (checkpoint_id, plan_id, created_at, plan_snapshot, task_statuses, git_refs, iterator_cursor)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, planID, cp.CreatedAt.Format(time.RFC3339Nano), string(planJSON), string(statusJSON), string(refsJSON), cp.IteratorCursor,
	)
	if err != nil {
		return fmt.Errorf("persistence: insert checkpoint: %w", err)
	}

	if g.pointerPath == "" {
		return nil
	}
	row := checkpointRow{
		CheckpointID:   cp.ID,
		PlanID:         planID,
		CreatedAt:      cp.CreatedAt,
		PlanSnapshot:   cp.PlanSnapshot,
		TaskStatuses:   cp.TaskStatuses,
		GitRefs:        cp.GitRefs,
		IteratorCursor: cp.IteratorCursor,
	}
	data, err := json.MarshalIndent(row, "", "  ")
	if err != nil {
		return fmt.Errorf("persistence: marshal pointer file: %w", err)
	}
	if err := filelock.LockAndWrite(g.pointerPath, data); err != nil {
		return fmt.Errorf("persistence: write pointer file: %w", err)
	}
	return nil
}

// ReadLatestCheckpoint recovers the most recently written checkpoint to
// resume a run, preferring the pointer file (cheap, lock-guarded) and
// falling back to the database's most recent row for planID if the
// pointer file is absent or stale.
func (g *Gateway) ReadLatestCheckpoint(ctx context.Context, planID string) (*models.Checkpoint, error) {
	if g.pointerPath != "" {
		if cp, err := g.readPointerFile(planID); err == nil && cp != nil {
			return cp, nil
		}
	}
	return g.latestFromDB(ctx, planID)
}

func (g *Gateway) readPointerFile(planID string) (*models.Checkpoint, error) {
	data, err := os.ReadFile(g.pointerPath)
	if err != nil {
		return nil, err
	}
	var row checkpointRow
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("persistence: unmarshal pointer file: %w", err)
	}
	if planID != "" && row.PlanID != planID {
		return nil, fmt.Errorf("persistence: pointer file holds plan %q, want %q", row.PlanID, planID)
	}
	return &models.Checkpoint{
		ID:             row.CheckpointID,
		CreatedAt:      row.CreatedAt,
		PlanSnapshot:   row.PlanSnapshot,
		TaskStatuses:   row.TaskStatuses,
		GitRefs:        row.GitRefs,
		IteratorCursor: row.IteratorCursor,
	}, nil
}

func (g *Gateway) latestFromDB(ctx context.Context, planID string) (*models.Checkpoint, error) {
	query := `SELECT checkpoint_id, created_at, plan_snapshot, task_statuses, git_refs, iterator_cursor
	          FROM checkpoints WHERE plan_id = ? ORDER BY id DESC LIMIT 1`
	row := g.store.db.QueryRowContext(ctx, query, planID)

	var (
		id, createdAt, planJSON, statusJSON, refsJSON, cursor string
	)
	if err := row.Scan(&id, &createdAt, &planJSON, &statusJSON, &refsJSON, &cursor); err != nil {
		return nil, fmt.Errorf("persistence: query latest checkpoint for plan %s: %w", planID, err)
	}

	createdTime, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("persistence: parse created_at: %w", err)
	}
	var plan models.Plan
	if err := json.Unmarshal([]byte(planJSON), &plan); err != nil {
		return nil, fmt.Errorf("persistence: unmarshal plan snapshot: %w", err)
	}
	var statuses map[string]models.Status
	if err := json.Unmarshal([]byte(statusJSON), &statuses); err != nil {
		return nil, fmt.Errorf("persistence: unmarshal task statuses: %w", err)
	}
	var refs []string
	if err := json.Unmarshal([]byte(refsJSON), &refs); err != nil {
		return nil, fmt.Errorf("persistence: unmarshal git refs: %w", err)
	}

	return &models.Checkpoint{
		ID:             id,
		CreatedAt:      createdTime,
		PlanSnapshot:   &plan,
		TaskStatuses:   statuses,
		GitRefs:        refs,
		IteratorCursor: cursor,
	}, nil
}

// ListCheckpoints returns every checkpoint recorded for planID, oldest
// first, for host tooling that wants a full audit trail rather than just
// the latest.
func (g *Gateway) ListCheckpoints(ctx context.Context, planID string) ([]*models.Checkpoint, error) {
	query := `SELECT checkpoint_id, created_at, plan_snapshot, task_statuses, git_refs, iterator_cursor
	          FROM checkpoints WHERE plan_id = ? ORDER BY id ASC`
	rows, err := g.store.db.QueryContext(ctx, query, planID)
	if err != nil {
		return nil, fmt.Errorf("persistence: list checkpoints for plan %s: %w", planID, err)
	}
	defer rows.Close()

	var out []*models.Checkpoint
	for rows.Next() {
		var (
			id, createdAt, planJSON, statusJSON, refsJSON, cursor string
		)
		if err := rows.Scan(&id, &createdAt, &planJSON, &statusJSON, &refsJSON, &cursor); err != nil {
			return nil, fmt.Errorf("persistence: scan checkpoint row: %w", err)
		}
		createdTime, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("persistence: parse created_at: %w", err)
		}
		var plan models.Plan
		if err := json.Unmarshal([]byte(planJSON), &plan); err != nil {
			return nil, fmt.Errorf("persistence: unmarshal plan snapshot: %w", err)
		}
		var statuses map[string]models.Status
		if err := json.Unmarshal([]byte(statusJSON), &statuses); err != nil {
			return nil, fmt.Errorf("persistence: unmarshal task statuses: %w", err)
		}
		var refs []string
		if err := json.Unmarshal([]byte(refsJSON), &refs); err != nil {
			return nil, fmt.Errorf("persistence: unmarshal git refs: %w", err)
		}
		out = append(out, &models.Checkpoint{
			ID: id, CreatedAt: createdTime, PlanSnapshot: &plan,
			TaskStatuses: statuses, GitRefs: refs, IteratorCursor: cursor,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/agentrain/mergetrain/internal/models"
)

// CreateCheckpoint inserts a checkpoint row. sizeBytes is the post-
// compression snapshot size; if it exceeds models.MaxCheckpointSnapshotBytes
// the checkpoint is stored as a metadata-only marker (snapshotPath cleared).
func CreateCheckpoint(db *sql.DB, cp *models.Checkpoint, sizeBytes int64) error {
	if sizeBytes > models.MaxCheckpointSnapshotBytes {
		cp.MetadataOnly = true
		cp.SnapshotPath = ""
	}
	cp.ID = generatePrefixedID("ckpt")
	cp.CreatedAt = time.Now().UTC()

	return Transact(db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), `
			INSERT INTO checkpoints (id, created_at, description, session_name, snapshot_path, metadata_only)
			VALUES (?, ?, ?, ?, ?, ?)
		`, cp.ID, cp.CreatedAt, nullIfEmpty(cp.Description), nullIfEmpty(cp.SessionName),
			nullIfEmpty(cp.SnapshotPath), cp.MetadataOnly)
		return err
	})
}

// ListCheckpoints returns every checkpoint, newest first.
func ListCheckpoints(db *sql.DB) ([]models.Checkpoint, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT id, created_at, COALESCE(description, ''), COALESCE(session_name, ''),
		       COALESCE(snapshot_path, ''), metadata_only
		FROM checkpoints ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Checkpoint
	for rows.Next() {
		var cp models.Checkpoint
		if err := rows.Scan(&cp.ID, &cp.CreatedAt, &cp.Description, &cp.SessionName, &cp.SnapshotPath, &cp.MetadataOnly); err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// GetCheckpoint loads one checkpoint by id.
func GetCheckpoint(db *sql.DB, id string) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	err := db.QueryRowContext(context.Background(), `
		SELECT id, created_at, COALESCE(description, ''), COALESCE(session_name, ''),
		       COALESCE(snapshot_path, ''), metadata_only
		FROM checkpoints WHERE id = ?
	`, id).Scan(&cp.ID, &cp.CreatedAt, &cp.Description, &cp.SessionName, &cp.SnapshotPath, &cp.MetadataOnly)
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/kdimtricp/framechart/internal/models"
)

var (
	ErrNotFound      = errors.New("annotation not found")
	ErrAlreadyExists = errors.New("annotation already exists")
)

type AnnotationRepo struct {
	db *DB
}

func NewAnnotationRepo(db *DB) *AnnotationRepo {
	return &AnnotationRepo{db: db}
}

// AnnotationSummary is an annotation without its detections.
type AnnotationSummary struct {
	ID             string    `json:"annotationID"`
	VideoID        string    `json:"videoID,omitempty"`
	Title          string    `json:"title,omitempty"`
	FPS            float64   `json:"fps"`
	FrameCount     int       `json:"frameCount"`
	DetectionCount int       `json:"detectionCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Create stores the annotation with every frame, including frames without
// detections, in a single transaction.
func (r *AnnotationRepo) Create(ctx context.Context, a *models.Annotation) error {
	if err := a.Frames.Validate(); err != nil {
		return fmt.Errorf("invalid annotation %s: %w", a.ID, err)
	}

	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO annotations (id, video_id, title, fps, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.VideoID, a.Title, a.FPS, a.CreatedAt,
	)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, a.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert annotation: %w", err)
	}

	frameStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO annotation_frames (annotation_id, frame_number) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare frame insert: %w", err)
	}
	defer frameStmt.Close()

	detStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO detections (
			annotation_id, frame_number, position, tag_id, tag_name,
			confidence, bound, bound_type, source_annotation_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare detection insert: %w", err)
	}
	defer detStmt.Close()

	for _, frame := range a.Frames.Indices() {
		if _, err := frameStmt.ExecContext(ctx, a.ID, frame); err != nil {
			return fmt.Errorf("failed to insert frame %d: %w", frame, err)
		}

		for pos, d := range a.Frames[frame] {
			bound, err := json.Marshal(d.Bound)
			if err != nil {
				return fmt.Errorf("failed to marshal bound: %w", err)
			}
			_, err = detStmt.ExecContext(ctx,
				a.ID, frame, pos, d.Tag.ID, d.Tag.Name,
				d.Confidence, string(bound), d.BoundType, d.AnnotationID,
			)
			if err != nil {
				return fmt.Errorf("failed to insert detection %d of frame %d: %w", pos, frame, err)
			}
		}
	}

	return tx.Commit()
}

func (r *AnnotationRepo) GetByID(ctx context.Context, id string) (*models.Annotation, error) {
	a := &models.Annotation{}
	var videoID, title sql.NullString

	err := r.db.conn.QueryRowContext(ctx,
		`SELECT id, video_id, title, fps, created_at FROM annotations WHERE id = ?`, id,
	).Scan(&a.ID, &videoID, &title, &a.FPS, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get annotation: %w", err)
	}
	a.VideoID = videoID.String
	a.Title = title.String

	a.Frames, err = r.LoadFrames(ctx, id)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// LoadFrames rebuilds the frame group of an annotation, keeping detections
// in their original order within each frame.
func (r *AnnotationRepo) LoadFrames(ctx context.Context, annotationID string) (models.FrameGroup, error) {
	frames := models.FrameGroup{}

	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT frame_number FROM annotation_frames WHERE annotation_id = ?`, annotationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	for rows.Next() {
		var frame int
		if err := rows.Scan(&frame); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		frames[frame] = []models.Detection{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating frames: %w", err)
	}

	rows, err = r.db.conn.QueryContext(ctx, `
		SELECT frame_number, tag_id, tag_name, confidence, bound, bound_type, source_annotation_id
		FROM detections
		WHERE annotation_id = ?
		ORDER BY frame_number, position`, annotationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			frame                 int
			d                     models.Detection
			bound, boundType, src sql.NullString
		)
		if err := rows.Scan(&frame, &d.Tag.ID, &d.Tag.Name, &d.Confidence, &bound, &boundType, &src); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		if bound.Valid && bound.String != "" {
			if err := json.Unmarshal([]byte(bound.String), &d.Bound); err != nil {
				return nil, fmt.Errorf("failed to decode bound for frame %d: %w", frame, err)
			}
		}
		d.BoundType = boundType.String
		d.AnnotationID = src.String
		frames[frame] = append(frames[frame], d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating detections: %w", err)
	}
	return frames, nil
}

func (r *AnnotationRepo) List(ctx context.Context) ([]AnnotationSummary, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT a.id, a.video_id, a.title, a.fps, a.created_at,
			(SELECT COUNT(*) FROM annotation_frames f WHERE f.annotation_id = a.id),
			(SELECT COUNT(*) FROM detections d WHERE d.annotation_id = a.id)
		FROM annotations a
		ORDER BY a.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list annotations: %w", err)
	}
	defer rows.Close()

	summaries := []AnnotationSummary{}
	for rows.Next() {
		var s AnnotationSummary
		var videoID, title sql.NullString
		if err := rows.Scan(&s.ID, &videoID, &title, &s.FPS, &s.CreatedAt, &s.FrameCount, &s.DetectionCount); err != nil {
			return nil, fmt.Errorf("failed to scan annotation: %w", err)
		}
		s.VideoID = videoID.String
		s.Title = title.String
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return summaries, nil
}

func (r *AnnotationRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, query := range []string{
		`DELETE FROM detections WHERE annotation_id = ?`,
		`DELETE FROM annotation_frames WHERE annotation_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("failed to delete annotation data: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM annotations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete annotation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

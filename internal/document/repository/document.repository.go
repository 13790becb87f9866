package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mocksync/internal/document/model"
	"mocksync/pkg/logger"
)

var ErrProjectNotFound = errors.New("project not found")

// ProjectRepository reads and writes project content straight from Postgres.
// It is an alternative to the REST backend for sessions running next to the
// database.
type ProjectRepository struct {
	DB *sql.DB
}

func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{DB: db}
}

func (r *ProjectRepository) LoadProject(ctx context.Context, projectID string) (model.Project, error) {
	project := model.Project{ID: projectID}
	var content sql.NullString
	err := r.DB.QueryRowContext(ctx, "SELECT name, content FROM projects WHERE id = $1", projectID).Scan(&project.Name, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Project{}, fmt.Errorf("load %s: %w", projectID, ErrProjectNotFound)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to load project %s: %v", projectID, err)
		return model.Project{}, err
	}
	if content.Valid {
		project.Content = []byte(content.String)
	}
	return project, nil
}

func (r *ProjectRepository) SaveContent(ctx context.Context, projectID string, content []byte) error {
	result, err := r.DB.ExecContext(ctx, `UPDATE projects SET content = $1, updated_at = NOW() WHERE id = $2`, string(content), projectID)
	if err != nil {
		logger.Sugar.Errorf("Failed to update content for project %s: %v", projectID, err)
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("save %s: %w", projectID, ErrProjectNotFound)
	}
	return nil
}

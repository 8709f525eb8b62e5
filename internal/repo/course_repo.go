// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for courses and
// course materials populated by the Canvas sync job.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hai-app/go-study-backend/internal/domain"
)

// UpsertCourse inserts or updates a course keyed on (user_id, canvas_id).
// Sync runs repeatedly, so a re-run refreshes name/code/instructor in place.
func UpsertCourse(ctx context.Context, db *gorm.DB, userID string, canvasID int64, name, code, instructor string) (*domain.Course, error) {
	now := time.Now().UTC()
	c := &domain.Course{
		ID:         uuid.NewString(),
		UserID:     userID,
		CanvasID:   canvasID,
		Name:       name,
		Code:       code,
		Instructor: instructor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "canvas_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"name":       name,
				"code":       code,
				"instructor": instructor,
				"updated_at": now,
			}),
		}).
		Create(c).Error
	if err != nil {
		return nil, err
	}
	// The upsert may have hit an existing row with a different primary key;
	// read back the canonical one.
	var got domain.Course
	if err := db.WithContext(ctx).Where("user_id = ? AND canvas_id = ?", userID, canvasID).First(&got).Error; err != nil {
		return nil, err
	}
	return &got, nil
}

// ListCourses returns the user's courses ordered by name.
func ListCourses(ctx context.Context, db *gorm.DB, userID string) ([]domain.Course, error) {
	var out []domain.Course
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("name ASC").
		Find(&out).Error
	return out, err
}

// GetCourse fetches a single course by id and owner, or ErrNotFound.
func GetCourse(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Course, error) {
	var c domain.Course
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCourseMaterial inserts a material row for a course.
func CreateCourseMaterial(ctx context.Context, db *gorm.DB, courseID, name, kind, url string) (*domain.CourseMaterial, error) {
	m := &domain.CourseMaterial{
		ID:        uuid.NewString(),
		CourseID:  courseID,
		Name:      name,
		Kind:      kind,
		URL:       url,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListCourseMaterials returns the most recently updated materials for a
// course, capped at limit.
func ListCourseMaterials(ctx context.Context, db *gorm.DB, courseID string, limit int) ([]domain.CourseMaterial, error) {
	var out []domain.CourseMaterial
	q := db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("updated_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// GetCourseMaterial fetches one material scoped to its course, or ErrNotFound.
func GetCourseMaterial(ctx context.Context, db *gorm.DB, courseID, materialID string) (*domain.CourseMaterial, error) {
	var m domain.CourseMaterial
	err := db.WithContext(ctx).
		Where("id = ? AND course_id = ?", materialID, courseID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

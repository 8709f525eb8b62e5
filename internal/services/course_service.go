package services

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hai-app/go-study-backend/internal/canvas"
	"github.com/hai-app/go-study-backend/internal/domain"
	"github.com/hai-app/go-study-backend/internal/repo"
	"github.com/hai-app/go-study-backend/internal/tokens"
)

// CourseService keeps the local course mirror in step with Canvas and serves
// course and material reads.
type CourseService struct {
	DB     *gorm.DB
	Canvas *canvas.Client
	Tokens *tokens.Store
}

// NewCourseService constructs a CourseService.
func NewCourseService(db *gorm.DB, cv *canvas.Client, ts *tokens.Store) *CourseService {
	return &CourseService{DB: db, Canvas: cv, Tokens: ts}
}

// SyncResult summarizes one course sync run.
type SyncResult struct {
	Synced  int `json:"synced"`
	Skipped int `json:"skipped"`
}

// Sync pulls the user's active Canvas courses and upserts each into the
// local mirror keyed on (user, canvas id). Instructor names come from the
// per-course detail call; a detail failure downgrades that course to a
// name-only upsert instead of failing the run.
func (s *CourseService) Sync(ctx context.Context, userID string) (*SyncResult, error) {
	tr := otel.Tracer("services/CourseService")
	ctx, span := tr.Start(ctx, "Sync",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	cred, err := s.Tokens.Valid(ctx, userID, domain.ProviderCanvas)
	if err != nil {
		if errors.Is(err, tokens.ErrTokenNotFound) {
			return nil, ErrIntegrationNotFound
		}
		return nil, err
	}

	courses, err := s.Canvas.ListCourses(ctx, cred.AccessToken)
	if err != nil {
		return nil, err
	}

	res := &SyncResult{}
	for _, c := range courses {
		instructor := ""
		if detail, derr := s.Canvas.GetCourse(ctx, cred.AccessToken, c.ID); derr == nil {
			instructor = strings.Join(detail.Teachers, ", ")
		} else {
			log.Warn().Err(derr).Int64("canvas_id", c.ID).Msg("course sync: detail fetch failed")
		}
		if _, err := repo.UpsertCourse(ctx, s.DB, userID, c.ID, c.Name, c.CourseCode, instructor); err != nil {
			log.Error().Err(err).Int64("canvas_id", c.ID).Msg("course sync: upsert failed")
			res.Skipped++
			continue
		}
		res.Synced++
	}
	return res, nil
}

// List returns the user's locally mirrored courses.
func (s *CourseService) List(ctx context.Context, userID string) ([]domain.Course, error) {
	return repo.ListCourses(ctx, s.DB, userID)
}

// Get fetches one mirrored course, verifying ownership.
func (s *CourseService) Get(ctx context.Context, userID, courseID string) (*domain.Course, error) {
	c, err := repo.GetCourse(ctx, s.DB, courseID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}
	return c, nil
}

// AddMaterial attaches a material record to one of the user's courses.
func (s *CourseService) AddMaterial(ctx context.Context, userID, courseID, name, kind, url string) (*domain.CourseMaterial, error) {
	if _, err := s.Get(ctx, userID, courseID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("material name is empty")
	}
	if kind == "" {
		kind = "file"
	}
	return repo.CreateCourseMaterial(ctx, s.DB, courseID, name, kind, url)
}

// ListMaterials returns materials for one of the user's courses, most
// recently updated first.
func (s *CourseService) ListMaterials(ctx context.Context, userID, courseID string, limit int) ([]domain.CourseMaterial, error) {
	if _, err := s.Get(ctx, userID, courseID); err != nil {
		return nil, err
	}
	return repo.ListCourseMaterials(ctx, s.DB, courseID, limit)
}

// Course HTTP handlers.
//
//   - GET  /courses                          (list local mirror)
//   - GET  /courses/{id}                     (detail)
//   - POST /courses/sync                     (pull from Canvas)
//   - GET  /courses/{id}/materials           (list materials)
//   - POST /courses/{id}/materials           (attach material)
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hai-app/go-study-backend/internal/domain"
	"github.com/hai-app/go-study-backend/internal/extapi"
	"github.com/hai-app/go-study-backend/internal/services"
	"github.com/hai-app/go-study-backend/internal/utils"
)

// CourseService defines course operations consumed by handlers.
type CourseService interface {
	Sync(ctx context.Context, userID string) (*services.SyncResult, error)
	List(ctx context.Context, userID string) ([]domain.Course, error)
	Get(ctx context.Context, userID, courseID string) (*domain.Course, error)
	AddMaterial(ctx context.Context, userID, courseID, name, kind, url string) (*domain.CourseMaterial, error)
	ListMaterials(ctx context.Context, userID, courseID string, limit int) ([]domain.CourseMaterial, error)
}

// AddMaterialRequest is the JSON payload for attaching a material.
type AddMaterialRequest struct {
	Name string `json:"name" binding:"required"`
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

// SyncCourses pulls the caller's Canvas courses into the local mirror.
func (h *Handlers) SyncCourses(c *gin.Context) {
	res, err := h.courseSvc.Sync(c.Request.Context(), userID(c))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrIntegrationNotFound):
			fail(c, http.StatusConflict, ErrCodeConflict, "canvas is not connected")
		default:
			var apiErr *extapi.Error
			if errors.As(err, &apiErr) {
				fail(c, http.StatusBadGateway, ErrCodeSyncFailed, apiErr.Error())
				return
			}
			fail(c, http.StatusInternalServerError, ErrCodeSyncFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, res)
}

// ListCourses lists the caller's mirrored courses.
func (h *Handlers) ListCourses(c *gin.Context) {
	cs, err := h.courseSvc.List(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"courses": cs})
}

// GetCourse returns one mirrored course.
func (h *Handlers) GetCourse(c *gin.Context) {
	course, err := h.courseSvc.Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrCourseNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "course not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, course)
}

// ListCourseMaterials lists materials for a course, newest first.
func (h *Handlers) ListCourseMaterials(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 50)
	ms, err := h.courseSvc.ListMaterials(c.Request.Context(), userID(c), c.Param("id"), limit)
	if err != nil {
		if errors.Is(err, services.ErrCourseNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "course not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"materials": ms})
}

// AddCourseMaterial attaches a material record to a course.
func (h *Handlers) AddCourseMaterial(c *gin.Context) {
	var req AddMaterialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		return
	}

	m, err := h.courseSvc.AddMaterial(c.Request.Context(), userID(c), c.Param("id"), req.Name, req.Kind, req.URL)
	if err != nil {
		if errors.Is(err, services.ErrCourseNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "course not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, m)
}

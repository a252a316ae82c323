// Package handlers contains the HTTP handlers mounted under /v1.
//
// Every subject mutation keeps the Timer Service in step with the record
// store: the record is written first, then the schedule is armed or
// disarmed. A failed arm or disarm is reported to the caller even though the
// record change has already been committed; the reconciler repairs that
// drift.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"occasions/internal/core"
	"occasions/internal/types"
)

// SubjectRepo is the record-store contract used by the subject handler.
type SubjectRepo interface {
	Create(ctx context.Context, subject *types.Subject) error
	Get(ctx context.Context, id string) (*types.Subject, error)
	Update(ctx context.Context, subject *types.Subject) error
	Delete(ctx context.Context, id string) error
}

// SubjectScheduler arms and disarms a subject's yearly schedule.
type SubjectScheduler interface {
	Arm(ctx context.Context, subject *types.Subject) error
	Disarm(ctx context.Context, subjectID string) error
}

// CreateSubjectRequest is the body of POST /v1/subjects.
type CreateSubjectRequest struct {
	FirstName string `json:"first_name" validate:"required,min=1,max=100"`
	LastName  string `json:"last_name" validate:"required,min=1,max=100"`
	Birthday  string `json:"birthday" validate:"required,occasion_date"`
	TimeZone  string `json:"timezone" validate:"required,is_timezone"`
}

// UpdateSubjectRequest is the body of PATCH /v1/subjects/{id}. Absent
// fields are left unchanged.
type UpdateSubjectRequest struct {
	FirstName *string `json:"first_name" validate:"omitnil,min=1,max=100"`
	LastName  *string `json:"last_name" validate:"omitnil,min=1,max=100"`
	Birthday  *string `json:"birthday" validate:"omitnil,occasion_date"`
	TimeZone  *string `json:"timezone" validate:"omitnil,is_timezone"`
}

// DeleteSubjectResponse is returned by DELETE /v1/subjects/{id}.
type DeleteSubjectResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// SubjectHandler serves subject CRUD and keeps schedules armed.
type SubjectHandler struct {
	repo      SubjectRepo
	scheduler SubjectScheduler
	validator *core.Validator
	clock     types.Clock
	logger    *slog.Logger
}

// NewSubjectHandler creates a SubjectHandler. A nil clock means wall time
// and a nil logger means slog.Default.
func NewSubjectHandler(
	repo SubjectRepo,
	scheduler SubjectScheduler,
	v *core.Validator,
	clock types.Clock,
	l *slog.Logger,
) *SubjectHandler {
	if l == nil {
		l = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if v == nil {
		v = core.NewValidator(l)
	}
	return &SubjectHandler{
		repo:      repo,
		scheduler: scheduler,
		validator: v,
		clock:     clock,
		logger:    l,
	}
}

// RegisterRoutes mounts the subject routes on r.
func (h *SubjectHandler) RegisterRoutes(r chi.Router) {
	r.Route("/subjects", func(r chi.Router) {
		r.Post("/", h.Create)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Delete("/", h.Delete)
		})
	})
}

// Create handles POST /v1/subjects.
//
//  1. Decode and validate.
//  2. Assign an id and created_at.
//  3. Persist.
//  4. Arm the first firing.
//  5. Return 201 with the stored subject.
func (h *SubjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSubjectRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	birthday, err := types.ParseOccasionDate(req.Birthday)
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidDate, "birthday must be a calendar date in YYYY-MM-DD format", err))
		return
	}

	subject := &types.Subject{
		ID:        uuid.NewString(),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Birthday:  birthday,
		TimeZone:  req.TimeZone,
		CreatedAt: h.clock.Now(),
	}
	log := h.requestLogger(r, subject.ID)

	if err := h.repo.Create(r.Context(), subject); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.scheduler.Arm(r.Context(), subject); err != nil {
		log.Error("subject stored but schedule not armed", "error", err)
		core.Error(w, r, err)
		return
	}

	log.Info("subject created")
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: subject})
}

// Get handles GET /v1/subjects/{id}.
func (h *SubjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	subject, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: subject})
}

// Update handles PATCH /v1/subjects/{id}. Any change can move the next
// firing, so the schedule is always re-armed.
func (h *SubjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log := h.requestLogger(r, id)

	var req UpdateSubjectRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	patch, err := req.toPatch()
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if patch.IsEmpty() {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationEmptyUpdate, "at least one field must be provided", nil))
		return
	}

	subject, err := h.repo.Get(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	patch.Apply(subject)
	now := h.clock.Now()
	subject.UpdatedAt = &now

	if err := h.repo.Update(r.Context(), subject); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.scheduler.Arm(r.Context(), subject); err != nil {
		log.Error("subject updated but schedule not re-armed", "error", err)
		core.Error(w, r, err)
		return
	}

	log.Info("subject updated")
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: subject})
}

// Delete handles DELETE /v1/subjects/{id}. A missing record still disarms,
// so a schedule left behind by an earlier partial failure is removed, and
// then answers 404.
func (h *SubjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	log := h.requestLogger(r, id)

	deleteErr := h.repo.Delete(r.Context(), id)
	if deleteErr != nil && !types.HasCode(deleteErr, types.ErrCodeNotFoundSubject) {
		core.Error(w, r, deleteErr)
		return
	}

	if err := h.scheduler.Disarm(r.Context(), id); err != nil {
		log.Error("schedule not disarmed", "error", err, "record_deleted", deleteErr == nil)
		core.Error(w, r, err)
		return
	}

	if deleteErr != nil {
		core.Error(w, r, deleteErr)
		return
	}

	log.Info("subject deleted")
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: DeleteSubjectResponse{ID: id, Deleted: true}})
}

func (req UpdateSubjectRequest) toPatch() (types.SubjectPatch, error) {
	patch := types.SubjectPatch{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		TimeZone:  req.TimeZone,
	}
	if req.Birthday != nil {
		d, err := types.ParseOccasionDate(*req.Birthday)
		if err != nil {
			return types.SubjectPatch{}, types.NewAppError(types.ErrCodeValidationInvalidDate, "birthday must be a calendar date in YYYY-MM-DD format", err)
		}
		patch.Birthday = &d
	}
	return patch, nil
}

func (h *SubjectHandler) requestLogger(r *http.Request, subjectID string) *slog.Logger {
	return types.LoggerFromContext(r.Context(), h.logger).With("subject_id", subjectID)
}

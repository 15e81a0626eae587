package submission

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinichub/clinichub/internal/domain/anonymizer"
	"github.com/clinichub/clinichub/internal/platform/auth"
	"github.com/clinichub/clinichub/pkg/pagination"
)

// Handler exposes the submission workflow over HTTP.
type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// Register mounts the submission routes. Mutating endpoints are limited to
// clinic staff; reads are open to any authenticated caller.
func (h *Handler) Register(g *echo.Group) {
	staff := auth.RequireRole("doctor", "nurse")

	g.POST("/submission-batches/:id/queue", h.queueBatch, staff)
	g.POST("/submission-batches/:id/retry", h.retryBatch, staff)
	g.POST("/submission-batches/:id/cancel", h.cancelBatch, staff)
	g.GET("/submission-batches", h.listBatches)
	g.GET("/submission-batches/:id/status", h.batchStatus)
	g.GET("/submission-batches/:id/receipt", h.batchReceipt)
	g.POST("/submission-queue/process", h.processQueue, auth.RequireRole("admin"))
	g.GET("/submission-statistics", h.statistics)
	g.GET("/submission-period", h.submissionPeriod)
}

type queueRequest struct {
	Method      string     `json:"method" validate:"omitempty,oneof=manual automatic"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=high normal low"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

type queueResponse struct {
	QueueItemID uuid.UUID `json:"queue_item_id"`
	Batch       *Batch    `json:"batch"`
}

func (h *Handler) queueBatch(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid batch id")
	}

	req := queueRequest{Method: string(MethodManual)}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if req.Method == "" {
		req.Method = string(MethodManual)
	}
	if req.Priority == "" {
		req.Priority = string(PriorityNormal)
	}

	ctx := c.Request().Context()
	batch, item, err := h.engine.QueueBatch(ctx, id, QueueOptions{
		Method:      Method(req.Method),
		Priority:    Priority(req.Priority),
		ScheduledAt: req.ScheduledAt,
		UserID:      auth.UserIDFromContext(ctx),
		UserRole:    auth.PrimaryRoleFromContext(ctx),
	})
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusAccepted, queueResponse{QueueItemID: item.ID, Batch: batch})
}

func (h *Handler) retryBatch(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid batch id")
	}

	ctx := c.Request().Context()
	batch, err := h.engine.RetryFailed(ctx, id,
		auth.UserIDFromContext(ctx), auth.PrimaryRoleFromContext(ctx))
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusAccepted, batch)
}

func (h *Handler) cancelBatch(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid batch id")
	}

	ctx := c.Request().Context()
	batch, err := h.engine.Cancel(ctx, id,
		auth.UserIDFromContext(ctx), auth.PrimaryRoleFromContext(ctx))
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusOK, batch)
}

func (h *Handler) listBatches(c echo.Context) error {
	p := pagination.FromContext(c)
	f := Filter{
		Month:  c.QueryParam("month"),
		Status: Status(c.QueryParam("status")),
	}
	batches, total, err := h.engine.List(c.Request().Context(), f, p.Limit, p.Offset)
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(batches, total, p.Limit, p.Offset))
}

func (h *Handler) batchStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid batch id")
	}
	view, err := h.engine.Status(c.Request().Context(), id)
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) batchReceipt(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid batch id")
	}
	receipt, err := h.engine.ReceiptFor(c.Request().Context(), id)
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusOK, receipt)
}

func (h *Handler) processQueue(c echo.Context) error {
	n, err := h.engine.ProcessQueue(c.Request().Context())
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"processed": n})
}

func (h *Handler) statistics(c echo.Context) error {
	stats, err := h.engine.Statistics(c.Request().Context())
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) submissionPeriod(c echo.Context) error {
	period, open := h.engine.SubmissionPeriod()
	return c.JSON(http.StatusOK, map[string]any{
		"start":   period.Start,
		"end":     period.End,
		"is_open": open,
	})
}

// mapError translates domain errors into HTTP status codes.
func (h *Handler) mapError(err error) error {
	var verr *anonymizer.ValidationError
	var iserr *InvalidStateError

	switch {
	case errors.Is(err, ErrBatchNotFound), errors.Is(err, ErrReceiptNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, verr.Error())
	case errors.As(err, &iserr):
		return echo.NewHTTPError(http.StatusConflict, iserr.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

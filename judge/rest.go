package judge

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lumen-oj/lumen/record"
)

// Register registers judge routes on the engine
type Register interface {
	Register(*gin.Engine)
}

type restHandle struct {
	srv    *Service
	logger *zap.Logger
}

// NewRestHandle creates the poll-mode HTTP handler
func NewRestHandle(srv *Service, logger *zap.Logger) Register {
	return &restHandle{srv: srv, logger: logger}
}

func (h *restHandle) Register(r *gin.Engine) {
	g := r.Group("/judge")
	g.GET("/task", h.handleTask)
	g.POST("/next", h.handleNext)
	g.POST("/end", h.handleEnd)
}

// judgerID identifies the reporting judger; poll mode has no connection
// identity so it comes from a header
func judgerID(ctx *gin.Context) string {
	if id := ctx.GetHeader("X-Judger-ID"); id != "" {
		return id
	}
	return ctx.ClientIP()
}

func (h *restHandle) handleTask(ctx *gin.Context) {
	p, err := h.srv.Claim(ctx.Request.Context(), judgerID(ctx))
	if err != nil {
		ctx.Error(err)
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, err.Error())
		return
	}
	ctx.JSON(http.StatusOK, TaskResponse{Task: p})
}

func (h *restHandle) handleNext(ctx *gin.Context) {
	var req NextRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.Error(err)
		ctx.AbortWithStatusJSON(http.StatusBadRequest, err.Error())
		return
	}
	h.reply(ctx, h.srv.Next(ctx.Request.Context(), &req))
}

func (h *restHandle) handleEnd(ctx *gin.Context) {
	var req EndRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.Error(err)
		ctx.AbortWithStatusJSON(http.StatusBadRequest, err.Error())
		return
	}
	h.reply(ctx, h.srv.End(ctx.Request.Context(), judgerID(ctx), &req))
}

func (h *restHandle) reply(ctx *gin.Context, err error) {
	switch {
	case err == nil:
		ctx.Status(http.StatusNoContent)
	case errors.Is(err, ErrBadRequest):
		ctx.AbortWithStatusJSON(http.StatusBadRequest, err.Error())
	case errors.Is(err, record.ErrRecordNotFound):
		ctx.AbortWithStatusJSON(http.StatusNotFound, err.Error())
	default:
		ctx.Error(err)
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, err.Error())
	}
}

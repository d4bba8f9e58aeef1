package meetinghandler

import (
	"errors"
	"net/http"

	"interviewsense/internal/services/meeting"
	"interviewsense/internal/ws"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StatusSource reports live socket state.
type StatusSource interface {
	Status() ws.Status
}

type Handler struct {
	svc          meeting.IMeetingService
	status       StatusSource
	authRequired bool
}

func New(svc meeting.IMeetingService, status StatusSource, authRequired bool) *Handler {
	return &Handler{svc: svc, status: status, authRequired: authRequired}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/emotion/status", h.emotionStatus)
	r.GET("/meetings/:id/insights", h.insights)
}

// @Summary		Analysis status
// @Description	Reports whether a remote analyzer is configured and lists live rooms.
// @Tags			Emotion
// @Success		200	{object}	EmotionStatusResponse
// @Router			/emotion/status [get]
func (h *Handler) emotionStatus(ginCtx *gin.Context) {
	st := h.status.Status()

	resp := EmotionStatusResponse{
		AnalyzerConfigured: st.AnalyzerConfigured,
		Model:              st.Model,
		Mode:               "synthetic",
		Rooms:              make([]RoomStatus, 0, len(st.Rooms)),
	}
	if st.AnalyzerConfigured {
		resp.Mode = "remote"
	}
	for _, r := range st.Rooms {
		if r.HasProducer || r.Observers > 0 {
			resp.ActiveRooms++
		}
		resp.Rooms = append(resp.Rooms, RoomStatus(r))
	}
	ginCtx.JSON(http.StatusOK, resp)
}

// @Summary		Meeting insight timeline
// @Description	Returns the persisted snapshots of a meeting ordered by their offset into the meeting. Only the meeting's creator may read it.
// @Tags			Meetings
// @Param			id		path		string	true	"Meeting ID"	default(abc123)
// @Param			limit	query		int		false	"Max results (1-1000)"	minimum(1)	maximum(1000)	default(100)
// @Param			offset	query		int		false	"Offset for pagination"	minimum(0)	default(0)
// @Success		200		{array}		meeting.InsightDTO
// @Failure		400		{object}	ErrorResponse
// @Failure		401		{object}	ErrorResponse
// @Failure		404		{object}	ErrorResponse
// @Failure		500		{object}	ErrorResponse
// @Router			/meetings/{id}/insights [get]
func (h *Handler) insights(ginCtx *gin.Context) {
	var q ListInsightsQuery
	if err := ginCtx.ShouldBindQuery(&q); err != nil {
		ginCtx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	meetingID := ws.NormalizeRoomID(ginCtx.Param("id"))
	ctx := ginCtx.Request.Context()

	if h.authRequired {
		if err := h.svc.Authorize(ctx, meetingID, token(ginCtx), "observer"); err != nil {
			h.fail(ginCtx, err)
			return
		}
	}

	out, err := h.svc.ListInsights(ctx, meetingID, q.Limit, q.Offset)
	if err != nil {
		h.fail(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, out)
}

func (h *Handler) fail(ginCtx *gin.Context, err error) {
	switch {
	case errors.Is(err, meeting.ErrUnauthorized):
		ginCtx.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})
	case errors.Is(err, meeting.ErrMeetingNotFound):
		ginCtx.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	default:
		zap.L().Error("meetings.insights", zap.Error(err))
		ginCtx.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func token(ginCtx *gin.Context) string {
	if v, err := ginCtx.Cookie("access_token"); err == nil && v != "" {
		return v
	}
	return ginCtx.Query("token")
}

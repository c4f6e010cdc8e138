package appointment

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the appointment endpoints. writeMiddleware runs only
// in front of the state-changing routes (rate limiting).
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, writeMiddleware ...gin.HandlerFunc) {
	appointments := rg.Group("/appointments")

	appointments.GET("", h.List)
	appointments.GET("/:id", h.Get)

	write := appointments.Group("", writeMiddleware...)
	write.POST("", h.Create)
	write.PATCH("/:id/cancel", h.Cancel)
}

package routes

import (
	"net/http"

	"github.com/Cyvadra/stock-alert/internal/handlers"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all the routes for the application
func SetupRoutes(r *gin.Engine, alertHandler *handlers.AlertHandler, metrics http.Handler) {
	api := r.Group("/api/v1")
	{
		api.POST("/sweeps/:kind", alertHandler.RunSweep)
		api.POST("/securities/:code/evaluate", alertHandler.EvaluateSecurity)
		api.GET("/quotes/:code", alertHandler.GetQuote)

		alerts := api.Group("/alerts")
		{
			alerts.GET("", alertHandler.GetAlerts)
			alerts.GET("/:id", alertHandler.GetAlert)
		}

		api.GET("/cooldowns", alertHandler.GetCooldowns)
	}

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "stock-alert",
		})
	})

	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}
}

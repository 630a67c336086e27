package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the API surface on the given engine.
func RegisterRoutes(r *gin.Engine, mh *MetricHandler, gh *GoalHandler) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		metricRoutes := v1.Group("/metrics")
		{
			metricRoutes.POST("", mh.CreateMetric)
			metricRoutes.POST("/aggregate", mh.AggregateMetrics)
			metricRoutes.GET("/:id", mh.GetMetric)
			metricRoutes.DELETE("/:id", mh.DeleteMetric)
		}

		goalRoutes := v1.Group("/goals")
		{
			goalRoutes.POST("", gh.CreateGoal)
			goalRoutes.POST("/evaluate-all", gh.EvaluateAllGoals)
			goalRoutes.GET("/:id", gh.GetGoal)
			goalRoutes.DELETE("/:id", gh.DeleteGoal)
			goalRoutes.POST("/:id/evaluate", gh.EvaluateGoal)
		}

		bondRoutes := v1.Group("/bonds/:bond_id")
		{
			bondRoutes.GET("/metrics", mh.ListMetrics)
			bondRoutes.GET("/impact/summary", mh.ImpactSummary)
			bondRoutes.GET("/goals", gh.ListGoals)
			bondRoutes.GET("/goals/dashboard", gh.GoalDashboard)
		}
	}
}

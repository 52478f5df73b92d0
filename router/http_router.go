package router

import (
	v1 "github.com/modestprophet/gonzo-pit-strategy/handler/v1"

	"github.com/gin-gonic/gin"
)

func SetupRouter() *gin.Engine {
	runController := v1.NewRunController()
	modelController := v1.NewModelController()

	r := gin.Default()
	r.Use(gin.Recovery())

	v1Group := r.Group("/v1")
	{
		// Training run routes (read-only comparison surface)
		runs := v1Group.Group("/training-runs")
		{
			runs.GET("", runController.GetAllRuns)
			runs.GET("/best", runController.GetBestRun)
			runs.GET("/:id", runController.GetRun)
			runs.GET("/:id/metrics", runController.GetRunMetrics)
			runs.GET("/:id/progress", runController.GetRunProgress)
		}

		// Model record routes
		models := v1Group.Group("/models")
		{
			models.GET("", modelController.GetAllModels)
			models.GET("/:version", modelController.GetModelByVersion)
		}
	}

	return r
}

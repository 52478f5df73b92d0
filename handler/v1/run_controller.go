package v1

import (
	"net/http"
	"strconv"

	"github.com/modestprophet/gonzo-pit-strategy/entity"
	"github.com/modestprophet/gonzo-pit-strategy/neural"
	"github.com/modestprophet/gonzo-pit-strategy/service"

	"github.com/gin-gonic/gin"
)

type RunController struct {
	queryService    *service.ExperimentQueryService
	progressService *service.RunProgressService
}

func NewRunController() *RunController {
	return &RunController{
		queryService:    service.NewExperimentQueryService(),
		progressService: service.NewRunProgressService(),
	}
}

func parseIDParam(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || id == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// GetAllRuns handles GET /v1/training-runs
func (c *RunController) GetAllRuns(ctx *gin.Context) {
	var params entity.QueryParams
	if err := ctx.ShouldBindQuery(&params); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := c.queryService.GetAllRuns(ctx.Request.Context(), params)
	if err != nil {
		writeHTTPError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

// GetRun handles GET /v1/training-runs/:id
func (c *RunController) GetRun(ctx *gin.Context) {
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}

	run, err := c.queryService.GetRun(ctx.Request.Context(), id)
	if err != nil {
		writeHTTPError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, run)
}

// GetRunMetrics handles GET /v1/training-runs/:id/metrics
func (c *RunController) GetRunMetrics(ctx *gin.Context) {
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}

	var params entity.QueryParams
	if err := ctx.ShouldBindQuery(&params); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	metrics, err := c.queryService.GetRunMetrics(ctx.Request.Context(), id, params)
	if err != nil {
		writeHTTPError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, metrics)
}

// GetRunProgress handles GET /v1/training-runs/:id/progress
func (c *RunController) GetRunProgress(ctx *gin.Context) {
	id, ok := parseIDParam(ctx, "id")
	if !ok {
		return
	}

	snapshot, err := c.progressService.Snapshot(ctx.Request.Context(), id)
	if err != nil {
		writeHTTPError(ctx, err)
		return
	}
	if snapshot == nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "progress cache is not configured"})
		return
	}

	ctx.JSON(http.StatusOK, snapshot)
}

// GetBestRun handles GET /v1/training-runs/best?metric=mae
func (c *RunController) GetBestRun(ctx *gin.Context) {
	metric := ctx.DefaultQuery("metric", neural.MetricMAE)

	best, err := c.queryService.GetBestRun(ctx.Request.Context(), metric)
	if err != nil {
		writeHTTPError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, best)
}

package v1

import (
	"net/http"
	"strings"

	"github.com/modestprophet/gonzo-pit-strategy/entity"
	"github.com/modestprophet/gonzo-pit-strategy/service"

	"github.com/gin-gonic/gin"
)

type ModelController struct {
	queryService *service.ExperimentQueryService
}

func NewModelController() *ModelController {
	return &ModelController{
		queryService: service.NewExperimentQueryService(),
	}
}

// GetAllModels handles GET /v1/models
func (c *ModelController) GetAllModels(ctx *gin.Context) {
	var params entity.QueryParams
	if err := ctx.ShouldBindQuery(&params); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := c.queryService.GetAllModels(ctx.Request.Context(), params)
	if err != nil {
		writeHTTPError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

// GetModelByVersion handles GET /v1/models/:version
func (c *ModelController) GetModelByVersion(ctx *gin.Context) {
	version := strings.TrimSpace(ctx.Param("version"))
	if version == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "version is required"})
		return
	}

	record, err := c.queryService.GetModelByVersion(ctx.Request.Context(), version)
	if err != nil {
		writeHTTPError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, record)
}

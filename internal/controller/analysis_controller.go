package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"roadmap_analysis/internal/model"
	"roadmap_analysis/internal/service"
	"roadmap_analysis/internal/util"

	"github.com/gin-gonic/gin"
)

type AnalysisController struct {
	AnalysisService *service.AnalysisService
	IdentityService *service.IdentityService
}

func NewAnalysisController(analysisService *service.AnalysisService, identityService *service.IdentityService) *AnalysisController {
	return &AnalysisController{
		AnalysisService: analysisService,
		IdentityService: identityService,
	}
}

// @Summary 获取仪表盘统计
// @Description 雷达图关键词、连续完成天数、完成天数、总天数、完成条目数与年度贡献图。未携带令牌时返回全局统计
// @Tags 统计
// @Produce json
// @Security BearerAuth
// @Param year query int false "贡献图年份，默认当前年份"
// @Success 200 {object} util.Response{data=model.DashboardStatsResponse}
// @Failure 400 {object} util.Response
// @Failure 401 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /api/analysis/stats [get]
func (c *AnalysisController) GetDashboardStats(ctx *gin.Context) {
	year := 0
	if raw := ctx.Query("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			util.BadRequest(ctx, fmt.Sprintf("%v: %q", util.ErrInvalidYear, raw))
			return
		}
		year = parsed
	}

	scope, ok := c.resolveScope(ctx)
	if !ok {
		return
	}

	stats, err := c.AnalysisService.GetDashboardStats(ctx.Request.Context(), scope, year)
	if err != nil {
		handleError(ctx, err)
		return
	}

	util.Success(ctx, stats)
}

// @Summary 保存关键词统计
// @Description 每个非空关键词计数加一。body 中的 userId 优先于令牌身份，均缺省时计入全局统计
// @Tags 统计
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.SaveKeywordsRequest true "关键词列表"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /api/analysis/stats/keywords [post]
func (c *AnalysisController) SaveKeywords(ctx *gin.Context) {
	var req model.SaveKeywordsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, "Invalid request body")
		return
	}

	var scope model.OwnerScope
	if req.UserID != "" {
		parsed, err := service.ParseOwnerScope(req.UserID)
		if err != nil {
			handleError(ctx, err)
			return
		}
		scope = parsed
	} else {
		resolved, ok := c.resolveScope(ctx)
		if !ok {
			return
		}
		scope = resolved
	}

	if err := c.AnalysisService.SaveKeywords(ctx.Request.Context(), scope, req.Keywords); err != nil {
		handleError(ctx, err)
		return
	}

	util.SuccessWithMessage(ctx, "Keywords saved", nil)
}

// @Summary 查看原始关键词统计
// @Description 调试用，返回令牌身份下的全部关键词文档，无令牌时返回全局统计
// @Tags 统计
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=model.RawStatsResponse}
// @Failure 400 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /api/analysis/stats/debug [get]
func (c *AnalysisController) GetDashboardStatsDebug(ctx *gin.Context) {
	scope, ok := c.resolveScope(ctx)
	if !ok {
		return
	}

	raw, err := c.AnalysisService.ListRawStats(ctx.Request.Context(), scope)
	if err != nil {
		handleError(ctx, err)
		return
	}

	util.Success(ctx, raw)
}

// @Summary 导出原始关键词统计
// @Description 将当前用户的原始关键词文档写入对象存储
// @Tags 统计
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Failure 401 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /api/analysis/stats/debug/export [post]
func (c *AnalysisController) ExportDebugStats(ctx *gin.Context) {
	scope, ok := c.resolveScope(ctx)
	if !ok {
		return
	}

	url, err := c.AnalysisService.ExportRawStats(ctx.Request.Context(), scope)
	if err != nil {
		handleError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"url": url})
}

func (c *AnalysisController) resolveScope(ctx *gin.Context) (model.OwnerScope, bool) {
	scope, err := c.IdentityService.ResolveScope(ctx.Request.Context(), util.GetUserFromContext(ctx))
	if err != nil {
		handleError(ctx, err)
		return model.OwnerScope{}, false
	}
	return scope, true
}

func handleError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrInvalidOwnerID), errors.Is(err, util.ErrInvalidYear):
		util.BadRequest(ctx, err.Error())
	case errors.Is(err, util.ErrKeywordConflict):
		util.Error(ctx, http.StatusConflict, "Keyword update contended, please retry")
	case errors.Is(err, util.ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded):
		util.ServiceUnavailable(ctx, "Statistics store unavailable")
	default:
		util.LogInternalError(ctx, err)
	}
}

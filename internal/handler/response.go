// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"datapilot-go/internal/model"
	"datapilot-go/internal/pipeline"
	"datapilot-go/internal/retrieval"
	"datapilot-go/internal/service"
	"datapilot-go/internal/transform"

	"github.com/gin-gonic/gin"
)

// statusFor 把领域错误映射为 HTTP 状态码。
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrUnsupportedFormat),
		errors.Is(err, model.ErrEmptyDataset),
		errors.Is(err, model.ErrMalformedDataset),
		errors.Is(err, service.ErrInvalidUpload),
		errors.Is(err, service.ErrInvalidSchema):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrUnclassified),
		errors.Is(err, transform.ErrMissingColumns),
		errors.Is(err, transform.ErrRowShape),
		errors.Is(err, pipeline.ErrUnsafeDestination):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrFileBusy):
		return http.StatusConflict
	case errors.Is(err, retrieval.ErrIndexNotFound),
		errors.Is(err, service.ErrSchemaNotFound),
		errors.Is(err, service.ErrReportNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func ok(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": message,
		"data":    data,
	})
}

func fail(c *gin.Context, err error, data interface{}) {
	status := statusFor(err)
	c.JSON(status, gin.H{
		"code":    status,
		"message": err.Error(),
		"data":    data,
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": message, "data": nil})
}

package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/habitjourney/internal/service"
)

const persistWarning = "数据已更新，但保存到本地存储失败"

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

// respondMutation 输出写操作结果；仅写入失败时内存状态仍然有效，返回 200 并附带警告
func respondMutation(c *gin.Context, err error, payload gin.H) {
	if payload == nil {
		payload = gin.H{}
	}
	payload["persisted"] = err == nil
	if err != nil {
		_ = c.Error(err)
		payload["warning"] = persistWarning
	}
	c.JSON(http.StatusOK, payload)
}

// isPersistOnly 判断错误是否只是写入失败
func isPersistOnly(err error) bool {
	return err != nil && errors.Is(err, service.ErrPersist)
}

func boolQuery(c *gin.Context, key string) bool {
	switch strings.ToLower(strings.TrimSpace(c.Query(key))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

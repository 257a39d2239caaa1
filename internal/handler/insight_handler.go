package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetDailyScore 返回今天的得分与解释，模型不可用时为本地计算结果
func (a *API) GetDailyScore(c *gin.Context) {
	result := a.scores.Today(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"date":          result.Date,
		"score":         result.Score,
		"reasoning":     result.Reasoning,
		"reasoningHtml": result.ReasoningHTML,
		"source":        result.Source,
	})
}

// GetQuote 返回激励语，refresh=1 时重新生成
func (a *API) GetQuote(c *gin.Context) {
	result := a.quotes.Quote(c.Request.Context(), boolQuery(c, "refresh"))
	c.JSON(http.StatusOK, gin.H{
		"quote":     result.Quote,
		"quoteHtml": result.QuoteHTML,
		"source":    result.Source,
	})
}

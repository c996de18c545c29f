package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) getStatus(c *gin.Context) {
	metrics := s.Engine.Metrics()
	c.JSON(http.StatusOK, gin.H{
		"running":        s.Engine.Running(),
		"broker":         s.Meta.Broker,
		"symbols":        s.Meta.Symbols,
		"timeframes":     s.Meta.Timeframes,
		"version":        s.Meta.Version,
		"started_at":     s.Meta.StartedAt,
		"open_positions": len(s.Engine.Positions()),
		"pending_orders": len(s.Engine.PendingOrders()),
		"metrics":        metrics,
	})
}

func (s *Server) getPositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.Engine.Positions()})
}

func (s *Server) getOrders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"orders": s.Engine.PendingOrders()})
}

func (s *Server) getAnalysis(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"analysis": s.Engine.LastAnalysis()})
}

func (s *Server) getCacheStats(c *gin.Context) {
	if s.Cache == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	stats := s.Cache.Stats()
	c.JSON(http.StatusOK, gin.H{
		"enabled":        true,
		"memory_entries": stats.MemoryEntries,
		"max_age":        stats.MaxAge.String(),
	})
}

func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}

func (s *Server) getTrades(c *gin.Context) {
	if s.DB == nil {
		c.JSON(http.StatusOK, gin.H{"trades": []any{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	trades, err := s.DB.ListTrades(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

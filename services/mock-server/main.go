package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stoik/inboxiq/services/mock-server/internal/mock"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	r := newRouter()

	addr := fmt.Sprintf(":%s", port)
	log.Printf("Starting InboxIQ Mock LLM server on %s", addr)
	log.Fatal(http.ListenAndServe(addr, r))
}

func newRouter() *gin.Engine {
	r := gin.Default()

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// OpenAI-compatible endpoint
	r.POST("/v1/chat/completions", handleChatCompletions)

	// Gemini endpoint: the param holds "<model>:generateContent"
	r.POST("/v1beta/models/:model", handleGenerateContent)

	// Admin endpoints for testing
	admin := r.Group("/admin")
	{
		admin.POST("/failures", handleSetFailures)
		admin.GET("/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"requests": mock.Requests()})
		})
	}

	return r
}

// respond applies the active failure mode. It reports whether the caller
// should write a normal completion.
func respond(c *gin.Context) bool {
	switch mock.CurrentMode() {
	case mock.ModeError:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "model overloaded"})
		return false
	case mock.ModeSlow:
		select {
		case <-time.After(mock.SlowDelay):
		case <-c.Request.Context().Done():
			return false
		}
	case mock.ModeEmpty:
		c.Set("empty", true)
	}
	return true
}

func handleChatCompletions(c *gin.Context) {
	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !respond(c) {
		return
	}

	content := ""
	if !c.GetBool("empty") && len(req.Messages) > 0 {
		content = mock.GenerateFollowUp(req.Messages[len(req.Messages)-1].Content)
	}

	c.JSON(http.StatusOK, gin.H{
		"model": req.Model,
		"choices": []gin.H{
			{"index": 0, "message": gin.H{"role": "assistant", "content": content}},
		},
	})
}

func handleGenerateContent(c *gin.Context) {
	if !strings.HasSuffix(c.Param("model"), ":generateContent") {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown method"})
		return
	}

	var req struct {
		Contents []struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !respond(c) {
		return
	}

	text := ""
	if !c.GetBool("empty") && len(req.Contents) > 0 && len(req.Contents[0].Parts) > 0 {
		text = mock.GenerateFollowUp(req.Contents[0].Parts[0].Text)
	}

	c.JSON(http.StatusOK, gin.H{
		"candidates": []gin.H{
			{"content": gin.H{"parts": []gin.H{{"text": text}}}},
		},
	})
}

func handleSetFailures(c *gin.Context) {
	var req struct {
		Mode string `json:"mode"`
	}

	// Try JSON body first
	if err := c.ShouldBindJSON(&req); err != nil || req.Mode == "" {
		// Fall back to query parameter
		req.Mode = c.DefaultQuery("mode", string(mock.ModeOK))
	}

	if err := mock.SetMode(mock.Mode(req.Mode)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"mode":    req.Mode,
		"message": fmt.Sprintf("Generation mode set to %s", req.Mode),
	})
}

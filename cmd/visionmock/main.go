// Package main serves a canned chat-completions vision endpoint for local
// development. Point VISION_BASE_URL at it and every analyzed photo comes
// back as one of a small rotation of plausible meals, without spending
// provider credits. Failure modes are selectable per request through the
// X-Mock-Scenario header or the scenario query parameter: error, malformed,
// truncated, slow.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

type mealItem struct {
	Name     string  `json:"name"`
	PortionG float64 `json:"portion_g"`
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

type mealEstimate struct {
	Description string     `json:"description"`
	Calories    float64    `json:"calories"`
	ProteinG    float64    `json:"protein_g"`
	CarbsG      float64    `json:"carbs_g"`
	FatG        float64    `json:"fat_g"`
	FiberG      float64    `json:"fiber_g"`
	Confidence  string     `json:"confidence"`
	Items       []mealItem `json:"items"`
}

var meals = []mealEstimate{
	{
		Description: "Grilled chicken breast with rice and steamed broccoli",
		Calories:    520, ProteinG: 45, CarbsG: 48, FatG: 14, FiberG: 6,
		Confidence: "high",
		Items: []mealItem{
			{Name: "grilled chicken breast", PortionG: 150, Calories: 248, ProteinG: 42, CarbsG: 0, FatG: 8},
			{Name: "white rice", PortionG: 180, Calories: 234, ProteinG: 5, CarbsG: 46, FatG: 1},
			{Name: "steamed broccoli", PortionG: 90, Calories: 38, ProteinG: 3, CarbsG: 7, FatG: 0},
		},
	},
	{
		Description: "Spaghetti bolognese with parmesan",
		Calories:    680, ProteinG: 32, CarbsG: 78, FatG: 24, FiberG: 5,
		Confidence: "medium",
		Items: []mealItem{
			{Name: "spaghetti", PortionG: 200, Calories: 310, ProteinG: 11, CarbsG: 62, FatG: 2},
			{Name: "bolognese sauce", PortionG: 150, Calories: 290, ProteinG: 18, CarbsG: 12, FatG: 18},
			{Name: "parmesan", PortionG: 15, Calories: 63, ProteinG: 6, CarbsG: 1, FatG: 4},
		},
	},
	{
		Description: "Greek yogurt bowl with berries and granola",
		Calories:    340, ProteinG: 22, CarbsG: 42, FatG: 9, FiberG: 5,
		Confidence: "high",
		Items: []mealItem{
			{Name: "greek yogurt", PortionG: 200, Calories: 146, ProteinG: 20, CarbsG: 8, FatG: 4},
			{Name: "mixed berries", PortionG: 100, Calories: 57, ProteinG: 1, CarbsG: 14, FatG: 0},
			{Name: "granola", PortionG: 30, Calories: 137, ProteinG: 3, CarbsG: 20, FatG: 5},
		},
	},
	{
		Description: "Salmon poke bowl with edamame and avocado",
		Calories:    610, ProteinG: 36, CarbsG: 58, FatG: 25, FiberG: 9,
		Confidence: "medium",
		Items: []mealItem{
			{Name: "raw salmon", PortionG: 120, Calories: 250, ProteinG: 25, CarbsG: 0, FatG: 16},
			{Name: "sushi rice", PortionG: 160, Calories: 208, ProteinG: 4, CarbsG: 46, FatG: 0},
			{Name: "edamame", PortionG: 60, Calories: 73, ProteinG: 7, CarbsG: 6, FatG: 3},
			{Name: "avocado", PortionG: 50, Calories: 80, ProteinG: 1, CarbsG: 4, FatG: 7},
		},
	},
}

var served atomic.Int64

func main() {
	addr := flag.String("addr", ":8089", "Listen address")
	failRate := flag.Float64("fail-rate", 0, "Fraction of requests answered with HTTP 500")
	latency := flag.Duration("latency", 0, "Base latency added to every response")
	flag.Parse()

	if v := os.Getenv("VISIONMOCK_ADDR"); v != "" {
		*addr = v
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/chat/completions", completions(*failRate, *latency))

	log.Printf("Vision mock listening on %s (fail-rate=%.2f)", *addr, *failRate)
	if err := r.Run(*addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func completions(failRate float64, latency time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if latency > 0 {
			time.Sleep(latency)
		}
		if failRate > 0 && rand.Float64() < failRate {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{"message": "mock outage", "type": "server_error"},
			})
			return
		}

		var req struct {
			Model string `json:"model"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"message": "invalid request body", "type": "invalid_request_error"},
			})
			return
		}
		model := req.Model
		if model == "" {
			model = "mock-vision-1"
		}

		switch scenario(c) {
		case "error":
			c.JSON(http.StatusOK, gin.H{
				"error": gin.H{"message": "mock provider error", "type": "server_error"},
			})
			return
		case "malformed":
			respondChoice(c, model, "I could not identify any food in this image.", "stop")
			return
		case "truncated":
			meal := nextMeal()
			content, _ := json.Marshal(meal)
			respondChoice(c, model, string(content), "length")
			return
		case "slow":
			time.Sleep(2 * time.Second)
		}

		meal := nextMeal()
		content, _ := json.Marshal(meal)
		respondChoice(c, model, string(content), "stop")
	}
}

func scenario(c *gin.Context) string {
	if v := c.GetHeader("X-Mock-Scenario"); v != "" {
		return v
	}
	return c.Query("scenario")
}

func nextMeal() mealEstimate {
	n := served.Add(1)
	return meals[int(n)%len(meals)]
}

func respondChoice(c *gin.Context, model, content, finishReason string) {
	c.JSON(http.StatusOK, gin.H{
		"model": model,
		"choices": []gin.H{{
			"message":       gin.H{"role": "assistant", "content": content},
			"finish_reason": finishReason,
		}},
	})
}

func init() {
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("[visionmock] ")
}

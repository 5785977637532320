package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"crypto-price-tracker/internal/version"
)

func jsonContent(schema gin.H) gin.H {
	return gin.H{"application/json": gin.H{"schema": schema}}
}

func ref(name string) gin.H {
	return gin.H{"$ref": "#/components/schemas/" + name}
}

func arrayOf(items gin.H) gin.H {
	return gin.H{"type": "array", "items": items}
}

func limitParam(def int) gin.H {
	return gin.H{
		"name": "limit", "in": "query", "required": false,
		"schema":      gin.H{"type": "integer", "minimum": 1, "maximum": maxLimit, "default": def},
		"description": "Number of samples to return",
	}
}

var errorResponse = gin.H{"description": "Error", "content": jsonContent(ref("Error"))}

func (h *handler) docs(c *gin.Context) {
	c.JSON(http.StatusOK, openAPIDocument())
}

func openAPIDocument() gin.H {
	return gin.H{
		"openapi": "3.0.3",
		"info": gin.H{
			"title":       "Crypto Price Tracker API",
			"description": "Tracks ETH and MATIC prices and sends email alerts",
			"version":     version.Version,
		},
		"paths": gin.H{
			"/": gin.H{"get": gin.H{
				"summary": "Service banner", "tags": []string{"system"},
				"responses": gin.H{"200": gin.H{
					"description": "Banner text",
					"content":     gin.H{"text/plain": gin.H{"schema": gin.H{"type": "string"}}},
				}},
			}},
			"/health": gin.H{"get": gin.H{
				"summary": "Health check", "tags": []string{"system"},
				"responses": gin.H{"200": gin.H{"description": "Service is healthy", "content": jsonContent(ref("Health"))}},
			}},
			"/prices": gin.H{"get": gin.H{
				"summary": "Get current ETH and MATIC prices", "tags": []string{"prices"},
				"responses": gin.H{
					"200": gin.H{"description": "Current USD prices", "content": jsonContent(ref("CurrentPrices"))},
					"502": errorResponse,
				},
			}},
			"/prices/{token}": gin.H{"get": gin.H{
				"summary": "Get recent samples for a token", "tags": []string{"prices"},
				"parameters": []gin.H{
					{
						"name": "token", "in": "path", "required": true,
						"schema": gin.H{"type": "string", "enum": []string{"ethereum", "matic"}},
					},
					limitParam(defaultHistoryLimit),
				},
				"responses": gin.H{
					"200": gin.H{"description": "Samples, newest first", "content": jsonContent(arrayOf(ref("PriceSample")))},
					"400": errorResponse,
					"404": errorResponse,
				},
			}},
			"/stored-prices": gin.H{"get": gin.H{
				"summary": "Get stored samples across tokens", "tags": []string{"prices"},
				"parameters": []gin.H{limitParam(defaultStoredLimit)},
				"responses": gin.H{
					"200": gin.H{"description": "Samples, newest first", "content": jsonContent(arrayOf(ref("PriceSample")))},
					"400": errorResponse,
				},
			}},
			"/hourly-prices": gin.H{"get": gin.H{
				"summary": "Get samples of the last 24 hours grouped by token", "tags": []string{"prices"},
				"responses": gin.H{"200": gin.H{
					"description": "Samples per token, oldest first",
					"content": jsonContent(gin.H{
						"type":                 "object",
						"additionalProperties": arrayOf(ref("PricePoint")),
					}),
				}},
			}},
			"/alerts": gin.H{
				"get": gin.H{
					"summary": "Get all pending price alerts", "tags": []string{"alerts"},
					"responses": gin.H{"200": gin.H{"description": "Pending alerts, newest first", "content": jsonContent(arrayOf(ref("Alert")))}},
				},
				"post": createAlertOperation(),
			},
			"/price-alert": gin.H{"post": createAlertOperation()},
			"/test-email": gin.H{"post": gin.H{
				"summary": "Send a test email", "tags": []string{"alerts"},
				"requestBody": gin.H{"required": true, "content": jsonContent(gin.H{
					"type":       "object",
					"required":   []string{"email"},
					"properties": gin.H{"email": gin.H{"type": "string", "format": "email"}},
				})},
				"responses": gin.H{
					"200": gin.H{"description": "Test email requested"},
					"400": errorResponse,
				},
			}},
			"/metrics": gin.H{"get": gin.H{
				"summary": "Prometheus metrics", "tags": []string{"system"},
				"responses": gin.H{"200": gin.H{"description": "Prometheus text exposition"}},
			}},
		},
		"components": gin.H{"schemas": gin.H{
			"Health": gin.H{"type": "object", "properties": gin.H{
				"status":  gin.H{"type": "string", "example": "ok"},
				"service": gin.H{"type": "string", "example": version.Service},
				"version": gin.H{"type": "string"},
			}},
			"CurrentPrices": gin.H{"type": "object", "properties": gin.H{
				"ethereum": gin.H{"type": "number", "example": 3120.55},
				"matic":    gin.H{"type": "number", "example": 0.91},
			}},
			"PriceSample": gin.H{"type": "object", "properties": gin.H{
				"id":        gin.H{"type": "integer"},
				"token":     gin.H{"type": "string", "enum": []string{"ethereum", "matic"}},
				"price":     gin.H{"type": "number"},
				"timestamp": gin.H{"type": "string", "format": "date-time"},
			}},
			"PricePoint": gin.H{"type": "object", "properties": gin.H{
				"timestamp": gin.H{"type": "string", "format": "date-time"},
				"price":     gin.H{"type": "number"},
			}},
			"CreateAlert": gin.H{
				"type":     "object",
				"required": []string{"token", "targetPrice", "email"},
				"properties": gin.H{
					"token":       gin.H{"type": "string", "enum": []string{"ethereum", "matic"}},
					"targetPrice": gin.H{"type": "number", "minimum": 0, "example": 2500},
					"email":       gin.H{"type": "string", "format": "email"},
				},
			},
			"Alert": gin.H{"type": "object", "properties": gin.H{
				"id":          gin.H{"type": "string", "format": "uuid"},
				"token":       gin.H{"type": "string", "enum": []string{"ethereum", "matic"}},
				"targetPrice": gin.H{"type": "number"},
				"email":       gin.H{"type": "string", "format": "email"},
				"triggered":   gin.H{"type": "boolean"},
				"createdAt":   gin.H{"type": "string", "format": "date-time"},
			}},
			"Error": gin.H{"type": "object", "properties": gin.H{
				"error":   gin.H{"type": "string"},
				"details": arrayOf(gin.H{"type": "string"}),
			}},
		}},
	}
}

func createAlertOperation() gin.H {
	return gin.H{
		"summary": "Create a new price alert", "tags": []string{"alerts"},
		"requestBody": gin.H{"required": true, "content": jsonContent(ref("CreateAlert"))},
		"responses": gin.H{
			"201": gin.H{"description": "Price alert created", "content": jsonContent(ref("Alert"))},
			"400": errorResponse,
		},
	}
}

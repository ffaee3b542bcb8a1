package api

import (
	"fmt"

	"github.com/mattjoyce/mathbot/internal/command"
)

// buildOpenAPIDoc returns an OpenAPI 3.1 document covering every command.
func buildOpenAPIDoc(descs []command.Descriptor) map[string]any {
	paths := map[string]any{}
	for _, d := range descs {
		paths[fmt.Sprintf("/commands/%s", d.Name)] = map[string]any{
			"post": buildCommandOperation(d),
		}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "mathbot",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func buildCommandOperation(d command.Descriptor) map[string]any {
	return map[string]any{
		"operationId": d.Name,
		"summary":     d.Description,
		"tags":        []string{"commands"},
		"requestBody": map[string]any{
			"required": true,
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{
						"type":       "object",
						"properties": map[string]any{"args": d.InputSchema()},
						"required":   []string{"args"},
					},
				},
			},
		},
		"responses": map[string]any{
			"200": map[string]any{
				"description": "Command reply: an attachment body or a JSON text reply",
				"content": map[string]any{
					"application/json": map[string]any{},
					"image/png":        map[string]any{},
				},
			},
			"400": map[string]any{"description": "Missing required parameter"},
			"403": map[string]any{"description": "Insufficient scope"},
			"404": map[string]any{"description": "Unknown command"},
		},
		"security": []any{map[string]any{"BearerAuth": []string{}}},
	}
}

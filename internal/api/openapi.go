package api

import (
	"net/http"

	"github.com/mattjoyce/plantdata-gw/internal/inspection"
)

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the operator API.
func buildOpenAPIDoc() map[string]any {
	bearer := []any{map[string]any{"BearerAuth": []string{}}}
	op := func(id, summary, scope string, responses map[string]any) map[string]any {
		out := map[string]any{
			"operationId": id,
			"summary":     summary,
			"responses":   responses,
		}
		if scope != "" {
			out["security"] = bearer
			out["x-required-scope"] = scope
			responses["401"] = map[string]any{"description": "Missing or invalid token"}
			responses["403"] = map[string]any{"description": "Insufficient scope"}
		}
		return out
	}
	ok := func(desc string) map[string]any { return map[string]any{"description": desc} }

	paths := map[string]any{
		"/healthz": map[string]any{
			"get": op("healthz", "Liveness and consumer counts", "", map[string]any{"200": ok("Healthy")}),
		},
		"/metrics": map[string]any{
			"get": op("metrics", "Prometheus metrics", "", map[string]any{"200": ok("Exposition format")}),
		},
		"/inspections": map[string]any{
			"get": op("listInspections", "Most recent inspection records", "inspections:ro", map[string]any{
				"200": ok("Records, newest first"),
				"400": ok("Bad limit"),
			}),
		},
		"/inspections/{inspectionID}": map[string]any{
			"get": op("getInspection", "One inspection record", "inspections:ro", map[string]any{
				"200": ok("Record"),
				"404": ok("No record for this inspection"),
			}),
		},
		"/mappings": map[string]any{
			"get": op("listMappings", "Stored tag-analysis rules", "mappings:ro", map[string]any{"200": ok("Rules")}),
		},
		"/mappings/reload": map[string]any{
			"post": op("reloadMappings", "Reload the live rule table from storage", "mappings:rw", map[string]any{"200": ok("Reloaded")}),
		},
		"/events": map[string]any{
			"get": op("events", "Server-sent stream of "+inspection.TopicResult+" and "+inspection.TopicValue, "events:ro", map[string]any{
				"200": ok("text/event-stream"),
			}),
		},
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "plantdata-gw",
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

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc())
}

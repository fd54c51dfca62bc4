// Package api provides OpenAPI/Swagger documentation for the consult API.
//
// # API Overview
//
// The consult service exposes a RESTful API for:
//   - Multi-expert consultations (panel fan-out with optional synthesis)
//   - Single-expert consultations
//   - Expert registry and domain listings
//   - Feedback capture and pattern analysis
//   - Health monitoring and metrics
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8765
//
// # Generating Documentation
//
// To regenerate Swagger documentation using swag:
//
//	swag init -g cmd/consult/main.go -o api --parseDependency --parseInternal
package api

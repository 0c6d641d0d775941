// Package services holds cross-cutting service routines that sit outside
// the engine proper.
package services

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/openbaas/corestore/internal/config"
)

// HealthCheckResult is the structured output of a health check.
type HealthCheckResult struct {
	Status       string            `json:"status"`
	Database     string            `json:"database"`
	Details      map[string]string `json:"details,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

// HealthCheck verifies the service dependencies. db is nil when running on
// the in-memory store, which has nothing to probe.
func HealthCheck(cfg *config.Config, db *gorm.DB) HealthCheckResult {
	result := HealthCheckResult{
		Status:  "healthy",
		Details: make(map[string]string),
	}

	if db == nil {
		result.Database = "memory"
		result.Details["database_type"] = "memory"
		return result
	}

	sqlDB, err := db.DB()
	if err != nil {
		result.Status = "unhealthy"
		result.Database = "error"
		result.ErrorMessage = fmt.Sprintf("Database connection error: %v", err)
		return result
	}
	if err := sqlDB.Ping(); err != nil {
		result.Status = "unhealthy"
		result.Database = "unreachable"
		result.ErrorMessage = fmt.Sprintf("Database ping failed: %v", err)
		return result
	}

	result.Database = "ok"
	result.Details["database_type"] = cfg.DBType
	result.Details["database_name"] = cfg.DBDatabase
	return result
}

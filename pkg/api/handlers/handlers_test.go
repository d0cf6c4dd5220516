package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/noomo-ai/noomo-backend/pkg/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.Profile{}, &models.StudySet{}))
	return db
}

func seedProfile(t *testing.T, db *gorm.DB, tier string, tokens int) *models.Profile {
	t.Helper()

	profile := &models.Profile{
		ID:               uuid.New(),
		Email:            fmt.Sprintf("%s@noomo.test", uuid.NewString()[:8]),
		SubscriptionTier: tier,
		CurrentTokens:    tokens,
	}
	require.NoError(t, db.Create(profile).Error)
	// GORM skips zero-valued fields with a column default on insert, so force
	// the requested balance to actually land in the row.
	require.NoError(t, db.Model(profile).Update("current_tokens", tokens).Error)
	return profile
}

// gormDBHolder lets per-area helpers hand the test DB back alongside Echo
type gormDBHolder struct {
	db *gorm.DB
}

// performJSON runs a JSON request through a bare Echo instance
func performJSON(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/wsorch/internal/embedding"
	"github.com/mohammad-safakhou/wsorch/internal/records"
)

const (
	debugSearchLimit = 5
	debugSubjectLen  = 50
)

// DebugHandler inserts ad-hoc mail records and searches them back.
type DebugHandler struct {
	Records  records.Store
	Embedder embedding.Provider
	UserID   string
}

func (h *DebugHandler) Register(g *echo.Group) {
	g.POST("/seed-and-search", h.seedAndSearch)
}

type seedAndSearchRequest struct {
	Text string `json:"text"`
}

type seedAndSearchHit struct {
	ID      string `json:"id"`
	EmailID string `json:"email_id"`
	Subject string `json:"subject"`
}

type seedAndSearchResponse struct {
	InsertedID string             `json:"inserted_id"`
	UserID     string             `json:"user_id"`
	Results    []seedAndSearchHit `json:"results"`
}

func (h *DebugHandler) seedAndSearch(c echo.Context) error {
	var req seedAndSearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	ctx := c.Request().Context()
	vec, err := h.Embedder.Embed(ctx, req.Text)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	rec, err := h.Records.UpsertRecord(ctx, records.Gmail, records.Record{
		UserID:     h.UserID,
		ExternalID: fmt.Sprintf("test-%s@example.com", uuid.NewString()),
		Title:      truncate(req.Text, debugSubjectLen),
		Body:       req.Text,
		Embedding:  vec,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	found, err := h.Records.VectorSearch(ctx, records.Gmail, h.UserID, vec, debugSearchLimit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := seedAndSearchResponse{InsertedID: rec.ID, UserID: h.UserID, Results: make([]seedAndSearchHit, 0, len(found))}
	for _, r := range found {
		resp.Results = append(resp.Results, seedAndSearchHit{ID: r.ID, EmailID: r.ExternalID, Subject: r.Title})
	}
	return c.JSON(http.StatusOK, resp)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

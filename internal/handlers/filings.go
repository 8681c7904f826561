package handlers

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/a-h/templ"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/jjenkins/edinet/internal/model"
	"github.com/jjenkins/edinet/internal/store"
	"github.com/jjenkins/edinet/internal/templates"
)

func FilingsHandler(filings FilingReader, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := templates.FilingQuery{
			EdinetCode:  c.Query("company"),
			DocTypeCode: c.Query("type"),
			Status:      c.Query("status"),
			SortBy:      c.Query("sort", "submitted"),
			Order:       c.Query("order", "desc"),
		}

		list, err := filings.List(c.UserContext(), store.ListOptions{
			EdinetCode:  q.EdinetCode,
			DocTypeCode: q.DocTypeCode,
			Status:      q.Status,
			SortBy:      q.SortBy,
			Order:       q.Order,
		})
		if err != nil {
			logger.Error("error listing filings", slog.Any("error", err))
			return c.Status(fiber.StatusInternalServerError).SendString("Error loading filings")
		}

		// Check if this is an HTMX request for just the table body
		if c.Get("HX-Request") == "true" {
			page := templates.FilingsTableBody(list, q)
			handler := adaptor.HTTPHandler(templ.Handler(page))
			return handler(c)
		}

		page := templates.Filings(list, q)
		handler := adaptor.HTTPHandler(templ.Handler(page))

		return handler(c)
	}
}

func FilingDetailHandler(filings FilingReader, artifacts ArtifactReader, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		docID := c.Params("docID")

		filing, err := filings.GetByDocID(ctx, docID)
		if err != nil {
			logger.Error("error loading filing", slog.String("doc_id", docID), slog.Any("error", err))
			return c.Status(fiber.StatusInternalServerError).SendString("Error loading filing")
		}
		if filing == nil {
			return c.Status(fiber.StatusNotFound).SendString("Filing not found")
		}

		records, err := artifacts.GetForFiling(ctx, docID)
		if err != nil {
			logger.Error("error loading artifacts", slog.String("doc_id", docID), slog.Any("error", err))
			return c.Status(fiber.StatusInternalServerError).SendString("Error loading artifacts")
		}

		page := templates.FilingDetail(filing, records)
		handler := adaptor.HTTPHandler(templ.Handler(page))

		return handler(c)
	}
}

// ArtifactHandler sends a downloaded artifact. Only files under root are served.
func ArtifactHandler(artifacts ArtifactReader, root string, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		docID := c.Params("docID")

		kind, err := model.ParseArtifactKind(c.Params("kind"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("Invalid artifact kind")
		}

		record, err := artifacts.Get(c.UserContext(), docID, kind)
		if err != nil {
			logger.Error("error loading artifact", slog.String("doc_id", docID), slog.Any("error", err))
			return c.Status(fiber.StatusInternalServerError).SendString("Error loading artifact")
		}
		if record == nil || record.Error != "" {
			return c.Status(fiber.StatusNotFound).SendString("Artifact not found")
		}

		if !within(root, record.Path) {
			logger.Warn("artifact outside output root", slog.String("doc_id", docID), slog.String("path", record.Path))
			return c.Status(fiber.StatusNotFound).SendString("Artifact not found")
		}

		return c.Download(record.Path, filepath.Base(record.Path))
	}
}

func within(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

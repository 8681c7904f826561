package handlers

import (
	"context"
	"log/slog"

	"github.com/a-h/templ"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/jjenkins/edinet/internal/model"
	"github.com/jjenkins/edinet/internal/store"
	"github.com/jjenkins/edinet/internal/templates"
)

// FilingReader is the read side of the filing catalogue
type FilingReader interface {
	GetByDocID(ctx context.Context, docID string) (*model.CatalogueFiling, error)
	List(ctx context.Context, opts store.ListOptions) ([]model.CatalogueFiling, error)
	CountFilings(ctx context.Context) (int, error)
	CountCompanies(ctx context.Context) (int, error)
	CategoryCounts(ctx context.Context) ([]model.CategoryCount, error)
}

// ArtifactReader is the read side of the artifact catalogue
type ArtifactReader interface {
	GetForFiling(ctx context.Context, docID string) ([]model.ArtifactRecord, error)
	Get(ctx context.Context, docID string, kind model.ArtifactKind) (*model.ArtifactRecord, error)
	TotalBytes(ctx context.Context) (int64, error)
}

func HomeHandler(filings FilingReader, artifacts ArtifactReader, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		metrics := templates.HomeMetrics{}

		// Try to load metrics from database
		total, err := filings.CountFilings(ctx)
		if err != nil {
			logger.Error("error counting filings", slog.Any("error", err))
		} else {
			metrics.TotalFilings = total
			metrics.HasData = total > 0
		}

		if metrics.HasData {
			companies, err := filings.CountCompanies(ctx)
			if err != nil {
				logger.Error("error counting companies", slog.Any("error", err))
			} else {
				metrics.TotalCompanies = companies
			}

			bytes, err := artifacts.TotalBytes(ctx)
			if err != nil {
				logger.Error("error summing artifact sizes", slog.Any("error", err))
			} else {
				metrics.TotalBytes = bytes
			}

			categories, err := filings.CategoryCounts(ctx)
			if err != nil {
				logger.Error("error counting categories", slog.Any("error", err))
			} else {
				metrics.Categories = categories
			}
		}

		page := templates.Home(metrics)
		handler := adaptor.HTTPHandler(templ.Handler(page))

		return handler(c)
	}
}

package portrait

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pawtraits/backend/internal/models"
	"github.com/pawtraits/backend/internal/monitoring"
	"github.com/pawtraits/backend/internal/queue"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrVariationNotFound = errors.New("portrait variation not found")

const maxSourceImageBytes = 10 << 20

// ImageStore persists generated images and returns their public URL.
type ImageStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// JobPayload is what the generation job carries.
type JobPayload struct {
	VariationID uuid.UUID `json:"variation_id"`
}

// SubmitInput is a customer's variation request.
type SubmitInput struct {
	CustomerEmail  string
	SourceImageURL string
	Request
}

// Service queues and runs portrait generations.
type Service struct {
	db        *gorm.DB
	generator Generator
	store     ImageStore
	jobs      queue.Enqueuer
	fetch     *http.Client
	logger    *zap.Logger
}

// NewService creates a new portrait service
func NewService(db *gorm.DB, generator Generator, store ImageStore, jobs queue.Enqueuer, logger *zap.Logger) *Service {
	return &Service{
		db:        db,
		generator: generator,
		store:     store,
		jobs:      jobs,
		fetch:     &http.Client{Timeout: 30 * time.Second},
		logger:    logger,
	}
}

func validSourceURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Submit stores a queued variation and hands it to the worker queue.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*models.PortraitVariation, error) {
	if !validSourceURL(in.SourceImageURL) {
		return nil, ErrSourceImageRequired
	}
	prompt, err := BuildVariationPrompt(in.Request)
	if err != nil {
		return nil, err
	}

	v := &models.PortraitVariation{
		CustomerEmail:  strings.ToLower(strings.TrimSpace(in.CustomerEmail)),
		SourceImageURL: strings.TrimSpace(in.SourceImageURL),
		Style:          normalizeStyle(in.Style),
		PetName:        strings.TrimSpace(in.PetName),
		Prompt:         prompt,
		Status:         models.PortraitStatusQueued,
	}
	db := s.db.WithContext(ctx)
	if err := db.Create(v).Error; err != nil {
		return nil, fmt.Errorf("error creating portrait variation: %w", err)
	}

	jobID, err := s.jobs.Enqueue(ctx, queue.JobTypeGeneratePortrait, JobPayload{VariationID: v.ID})
	if err != nil {
		s.fail(ctx, v, "could not queue generation")
		return nil, fmt.Errorf("error queueing portrait generation: %w", err)
	}

	s.logger.Info("portrait variation queued",
		zap.String("variation_id", v.ID.String()),
		zap.String("job_id", jobID),
		zap.String("style", v.Style),
	)
	return v, nil
}

// Get returns a variation by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.PortraitVariation, error) {
	var v models.PortraitVariation
	if err := s.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVariationNotFound
		}
		return nil, fmt.Errorf("error finding portrait variation: %w", err)
	}
	return &v, nil
}

// Process runs the generation for a variation. Errors are returned so the
// queue can retry; the variation is left failed until a retry succeeds.
func (s *Service) Process(ctx context.Context, id uuid.UUID) error {
	v, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if v.Status == models.PortraitStatusSucceeded {
		return nil
	}

	db := s.db.WithContext(ctx)
	if err := db.Model(v).Updates(map[string]interface{}{
		"status":        models.PortraitStatusProcessing,
		"error_message": "",
	}).Error; err != nil {
		return fmt.Errorf("error updating portrait status: %w", err)
	}

	source, err := s.download(ctx, v.SourceImageURL)
	if err != nil {
		s.fail(ctx, v, "could not load the uploaded photo")
		return err
	}

	image, err := s.generator.Generate(ctx, v.Prompt, *source)
	if err != nil {
		s.fail(ctx, v, "image generation failed")
		return err
	}

	key := fmt.Sprintf("variations/%s%s", v.ID, extensionFor(image.MimeType))
	resultURL, err := s.store.Put(ctx, key, image.Data, image.MimeType)
	if err != nil {
		s.fail(ctx, v, "could not save the generated image")
		return err
	}

	if err := db.Model(v).Updates(map[string]interface{}{
		"status":     models.PortraitStatusSucceeded,
		"result_url": resultURL,
	}).Error; err != nil {
		return fmt.Errorf("error saving portrait result: %w", err)
	}
	monitoring.PortraitJobs.WithLabelValues(string(models.PortraitStatusSucceeded)).Inc()

	s.logger.Info("portrait variation generated",
		zap.String("variation_id", v.ID.String()),
		zap.Int("bytes", len(image.Data)),
	)
	return nil
}

func (s *Service) fail(ctx context.Context, v *models.PortraitVariation, reason string) {
	monitoring.PortraitJobs.WithLabelValues(string(models.PortraitStatusFailed)).Inc()
	err := s.db.WithContext(ctx).Model(v).Updates(map[string]interface{}{
		"status":        models.PortraitStatusFailed,
		"error_message": reason,
	}).Error
	if err != nil {
		s.logger.Error("error marking portrait failed", zap.String("variation_id", v.ID.String()), zap.Error(err))
	}
}

func (s *Service) download(ctx context.Context, rawURL string) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating source request: %w", err)
	}
	resp, err := s.fetch.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching source image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source image returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("error reading source image: %w", err)
	}
	if len(data) > maxSourceImageBytes {
		return nil, fmt.Errorf("source image exceeds %d bytes", maxSourceImageBytes)
	}

	mimeType := resp.Header.Get("Content-Type")
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = parsed
	}
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("source is not an image (%s)", mimeType)
	}
	return &Image{Data: data, MimeType: mimeType}, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

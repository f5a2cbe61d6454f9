package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/journey-tracker/internal/config"
	"github.com/journey-tracker/internal/domain"
	"github.com/journey-tracker/internal/domain/repository"
	"github.com/journey-tracker/internal/pkg/errors"
	"github.com/journey-tracker/internal/usecase/dto"
	"go.uber.org/zap"
)

const apiPrefix = "/api/v1"

// maxErrorBody - сколько байт тела ошибки попадает в лог
const maxErrorBody = 2048

// knownErrors - коды ошибок бэкенда, которые клиент возвращает как есть,
// чтобы вызывающий мог различать их через errors.Is
var knownErrors = map[string]*errors.AppError{
	errors.ErrJourneyConflict.Code:   errors.ErrJourneyConflict,
	errors.ErrJourneyNotFound.Code:   errors.ErrJourneyNotFound,
	errors.ErrInvalidTransition.Code: errors.ErrInvalidTransition,
	errors.ErrInvalidRequest.Code:    errors.ErrInvalidRequest,
	errors.ErrNoActiveJourney.Code:   errors.ErrNoActiveJourney,
}

type envelope struct {
	Data  json.RawMessage  `json:"data"`
	Error *errors.AppError `json:"error"`
}

type client struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger
}

// NewClient создает HTTP клиент API трекинга
func NewClient(cfg *config.AgentConfig, logger *zap.Logger) repository.BackendRepository {
	return &client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		baseURL: strings.TrimRight(cfg.BackendURL, "/"),
		logger:  logger,
	}
}

func (c *client) UpsertJourney(ctx context.Context, journey *domain.Journey) (*domain.Journey, error) {
	var resp dto.JourneyResponse
	if err := c.do(ctx, http.MethodPost, "/journeys", dto.NewCreateJourneyRequest(journey), &resp); err != nil {
		return nil, err
	}
	if resp.Journey == nil {
		return nil, fmt.Errorf("empty journey in backend response")
	}
	return resp.Journey, nil
}

func (c *client) GetActiveJourney(ctx context.Context, passengerID string) (*domain.Journey, error) {
	var journey *domain.Journey
	path := fmt.Sprintf("/passengers/%s/journeys/active", url.PathEscape(passengerID))
	if err := c.do(ctx, http.MethodGet, path, nil, &journey); err != nil {
		return nil, err
	}
	return journey, nil
}

func (c *client) GetJourney(ctx context.Context, id uuid.UUID) (*domain.Journey, error) {
	var journey domain.Journey
	if err := c.do(ctx, http.MethodGet, "/journeys/"+id.String(), nil, &journey); err != nil {
		return nil, err
	}
	return &journey, nil
}

func (c *client) UpdateJourneyStatus(ctx context.Context, change domain.StatusChange) (*domain.Journey, error) {
	at := change.At
	req := dto.UpdateJourneyStatusRequest{Status: change.Status, At: &at}

	var journey domain.Journey
	path := fmt.Sprintf("/journeys/%s/status", change.JourneyID)
	if err := c.do(ctx, http.MethodPatch, path, req, &journey); err != nil {
		return nil, err
	}
	return &journey, nil
}

func (c *client) UpdateSyncState(ctx context.Context, journeyID uuid.UUID, state domain.SyncState) error {
	req := dto.UpdateSyncStateRequest{
		OfflineQueueCount: state.OfflineQueueCount,
		LastSyncTime:      state.LastSyncTime,
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/journeys/%s/sync-state", journeyID), req, nil)
}

func (c *client) UpsertPositionSamples(ctx context.Context, journeyID uuid.UUID, samples []*domain.LocationSample) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	req := dto.UpsertPositionsRequest{Samples: make([]dto.PositionSample, len(samples))}
	for i, s := range samples {
		req.Samples[i] = dto.NewPositionSample(s)
	}

	var resp dto.UpsertPositionsResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/journeys/%s/positions", journeyID), req, &resp); err != nil {
		return 0, err
	}
	return resp.Accepted, nil
}

func (c *client) UpsertTrustScores(ctx context.Context, journeyID uuid.UUID, records []*domain.TrustRecord) error {
	if len(records) == 0 {
		return nil
	}
	req := dto.UpsertTrustRequest{Scores: make([]dto.TrustScore, len(records))}
	for i, r := range records {
		req.Scores[i] = dto.NewTrustScore(r)
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/journeys/%s/trust", journeyID), req, nil)
}

func (c *client) GetTrustScores(ctx context.Context, journeyID uuid.UUID) ([]*domain.TrustRecord, error) {
	var records []*domain.TrustRecord
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/journeys/%s/trust", journeyID), nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *client) UpsertOrder(ctx context.Context, order *domain.Order) error {
	return c.do(ctx, http.MethodPost, "/orders", dto.NewCreateOrderRequest(order), nil)
}

func (c *client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return unavailable(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return errors.ErrBackendUnavailable.WithDetails(map[string]interface{}{
			"status_code": resp.StatusCode,
		})
	}
	return nil
}

// do выполняет запрос и раскладывает ответ {data, error}.
// Сетевые ошибки и 5xx становятся ErrBackendUnavailable, известные коды 4xx возвращаются как есть.
func (c *client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	fullURL := c.baseURL + apiPrefix + path
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		c.logger.Error("Failed to create request", zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("Backend request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return unavailable(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return unavailable(err)
	}

	c.logger.Debug("Backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode >= 300 {
		return c.responseError(method, path, resp.StatusCode, raw)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(raw) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Error("Failed to decode response", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		c.logger.Error("Failed to decode response data", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

func (c *client) responseError(method, path string, status int, raw []byte) error {
	body := raw
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}

	if status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		c.logger.Warn("Backend returned server error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status_code", status),
			zap.String("body", string(body)))
		return errors.ErrBackendUnavailable.WithDetails(map[string]interface{}{
			"status_code": status,
		})
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error != nil {
		if known, ok := knownErrors[env.Error.Code]; ok {
			appErr := known.WithDetails(env.Error.Details)
			if env.Error.Message != "" {
				appErr = appErr.WithMessage(env.Error.Message)
			}
			return appErr
		}
	}

	c.logger.Error("Backend rejected request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", status),
		zap.String("body", string(body)))

	switch status {
	case http.StatusNotFound:
		return errors.ErrJourneyNotFound
	case http.StatusConflict:
		return errors.ErrJourneyConflict
	}
	return errors.ErrInvalidRequest.WithDetails(map[string]interface{}{
		"status_code": status,
		"path":        path,
	})
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", errors.ErrBackendUnavailable, err)
}

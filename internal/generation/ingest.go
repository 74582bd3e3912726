package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/storage"
)

const (
	// assetDownloadTimeout bounds a single output download.
	assetDownloadTimeout = 20 * time.Second
	downloadAttempts     = 3
	downloadRetryDelay   = 500 * time.Millisecond
	// maxAssetBytes guards against a misbehaving provider response.
	maxAssetBytes = 32 << 20
)

// ingest materializes provider outputs into a render and its variants. It is
// idempotent end to end: the render row is resolved-or-created by job id, a
// variant that already exists at (render, idx) is skipped without
// re-downloading, and an occupied storage key counts as a successful write.
// One bad output never fails the batch; only zero materialized variants does.
func (o *Orchestrator) ingest(ctx context.Context, job *domain.GenerationJob, outputs []string) (*domain.Render, error) {
	if len(outputs) == 0 {
		return nil, domain.NewNoAssetsProcessed(errors.New("provider returned no outputs"))
	}

	render, err := o.renders.GetOrCreate(ctx, &domain.Render{
		ID:       uuid.NewString(),
		JobID:    job.ID,
		OwnerID:  job.OwnerID,
		Mode:     job.Mode,
		RoomType: job.RoomType,
		Style:    job.Style,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve render: %w", err)
	}

	processed, preexisting := 0, 0
	for idx, outputURL := range outputs {
		exists, err := o.renders.VariantExists(ctx, render.ID, idx)
		if err != nil {
			o.logger.Error().Err(err).Str("render_id", render.ID).Int("idx", idx).Msg("generation: variant lookup failed")
			continue
		}
		if exists {
			preexisting++
			continue
		}

		data, err := o.downloadOutput(ctx, outputURL)
		if err != nil {
			o.logger.Error().Err(err).Str("job_id", job.ID).Int("idx", idx).Msg("generation: output download failed")
			continue
		}

		key := fmt.Sprintf("renders/%s/%d.jpg", render.ID, idx)
		if err := o.store.Write(ctx, key, data, "image/jpeg"); err != nil && !errors.Is(err, storage.ErrKeyExists) {
			o.logger.Error().Err(err).Str("job_id", job.ID).Int("idx", idx).Msg("generation: output persist failed")
			continue
		}

		created, err := o.renders.CreateVariant(ctx, &domain.RenderVariant{
			ID:        uuid.NewString(),
			RenderID:  render.ID,
			OwnerID:   job.OwnerID,
			Idx:       idx,
			ImagePath: key,
			CreatedAt: o.now(),
		})
		if err != nil {
			o.logger.Error().Err(err).Str("render_id", render.ID).Int("idx", idx).Msg("generation: variant insert failed")
			continue
		}
		if created {
			processed++
		} else {
			preexisting++
		}
	}

	if processed == 0 && preexisting == 0 {
		return nil, domain.NewNoAssetsProcessed(fmt.Errorf("all %d outputs failed", len(outputs)))
	}
	o.logger.Info().
		Str("job_id", job.ID).
		Str("render_id", render.ID).
		Int("processed", processed).
		Int("preexisting", preexisting).
		Msg("generation: assets ingested")
	return render, nil
}

// downloadOutput fetches one provider output with bounded attempts and a
// linear backoff between them.
func (o *Orchestrator) downloadOutput(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= downloadAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * downloadRetryDelay):
			}
		}
		data, err := o.downloadOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (o *Orchestrator) downloadOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := o.assetClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download output: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes))
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty output body")
	}
	return data, nil
}

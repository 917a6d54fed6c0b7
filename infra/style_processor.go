package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/mosaiclabs/mosaic-media-service/config"
	"github.com/mosaiclabs/mosaic-media-service/utils"
)

// StyleProcessorClient talks to the external style-transformation service.
// The collaborator is opaque, possibly slow and possibly failing; callers
// decide whether a failure is retryable.
type StyleProcessorClient struct {
	baseURL    string
	signingKey string
	client     *http.Client
}

func InitStyleProcessorClient(cfg *config.EnvConfig) (*StyleProcessorClient, error) {
	if cfg.StyleProcessor.URL == "" {
		return nil, fmt.Errorf("style processor URL is not configured")
	}

	return &StyleProcessorClient{
		baseURL:    cfg.StyleProcessor.URL,
		signingKey: cfg.StyleProcessor.SigningKey,
		client: &http.Client{
			Timeout: cfg.StyleProcessor.Timeout,
		},
	}, nil
}

// Transform sends the asset bytes with style parameters and returns the
// transformed bytes.
func (s *StyleProcessorClient) Transform(ctx context.Context, assetBytes []byte, styleParams []byte, intensity float64) ([]byte, error) {
	return s.post(ctx, "/v1/transform", assetBytes, styleParams, intensity)
}

// Thumbnail produces a small preview of the transformed asset.
func (s *StyleProcessorClient) Thumbnail(ctx context.Context, assetBytes []byte) ([]byte, error) {
	return s.post(ctx, "/v1/thumbnail", assetBytes, nil, 0)
}

func (s *StyleProcessorClient) post(ctx context.Context, path string, assetBytes, styleParams []byte, intensity float64) ([]byte, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	filePart, err := writer.CreateFormFile("file", "asset.bin")
	if err != nil {
		return nil, fmt.Errorf("failed to build request body: %w", err)
	}
	if _, err := filePart.Write(assetBytes); err != nil {
		return nil, fmt.Errorf("failed to build request body: %w", err)
	}

	if styleParams != nil {
		// Params go over as a JSON form field so the processor can version its schema.
		if !json.Valid(styleParams) {
			return nil, fmt.Errorf("style params are not valid JSON")
		}
		if err := writer.WriteField("style_params", string(styleParams)); err != nil {
			return nil, fmt.Errorf("failed to build request body: %w", err)
		}
		if err := writer.WriteField("intensity", strconv.FormatFloat(intensity, 'f', -1, 64)); err != nil {
			return nil, fmt.Errorf("failed to build request body: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to build request body: %w", err)
	}

	payload := body.Bytes()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	if s.signingKey != "" {
		timestamp := time.Now().Unix()
		stringToSign := utils.BuildStringToSign(http.MethodPost, path, timestamp, utils.HashBodySHA256(payload))
		req.Header.Set("X-Timestamp", strconv.FormatInt(timestamp, 10))
		req.Header.Set("X-Signature", utils.ComputeHMACSHA256(s.signingKey, stringToSign))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("style processor request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("style processor returned status %d: %s", resp.StatusCode, string(msg))
	}

	result, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read style processor response: %w", err)
	}
	return result, nil
}

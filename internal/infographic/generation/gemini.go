package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider calls Gemini and Imagen models through the genai SDK.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider builds a provider bound to apiKey.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Text(ctx context.Context, model, prompt string) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	res, err := p.client.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		return "", classify(err)
	}
	return res.Text(), nil
}

func (p *GeminiProvider) Image(ctx context.Context, model, prompt, aspectRatio string) ([]byte, error) {
	if strings.HasPrefix(model, "imagen") {
		return p.imagen(ctx, model, prompt, aspectRatio)
	}

	contents := []*genai.Content{genai.NewContentFromText(
		fmt.Sprintf("%s\nAspect ratio: %s.", prompt, aspectRatio), genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
		ImageConfig:        &genai.ImageConfig{AspectRatio: aspectRatio},
	}
	res, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, classify(err)
	}

	for _, cand := range res.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}
	return nil, ErrEmptyOutput
}

func (p *GeminiProvider) imagen(ctx context.Context, model, prompt, aspectRatio string) ([]byte, error) {
	res, err := p.client.Models.GenerateImages(ctx, model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    aspectRatio,
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(res.GeneratedImages) == 0 || res.GeneratedImages[0].Image == nil {
		return nil, ErrEmptyOutput
	}
	return res.GeneratedImages[0].Image.ImageBytes, nil
}

// classify maps genai API errors onto this package's sentinels.
func classify(err error) error {
	code, msg, ok := apiErrorInfo(err)
	if !ok {
		return err
	}

	lower := strings.ToLower(msg)
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return fmt.Errorf("%w: %v", ErrTransient, err)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %v", ErrUnknownModel, err)
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case code == http.StatusBadRequest && strings.Contains(lower, "api key"):
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case code == http.StatusBadRequest && strings.Contains(lower, "model") &&
		(strings.Contains(lower, "not found") || strings.Contains(lower, "not supported")):
		return fmt.Errorf("%w: %v", ErrUnknownModel, err)
	case code >= 400:
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return err
}

func apiErrorInfo(err error) (int, string, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Message, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, apiErrPtr.Message, true
	}
	return 0, "", false
}

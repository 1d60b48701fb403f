package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anandkaman/saledeedpipeline/internal/apperr"
	"github.com/anandkaman/saledeedpipeline/internal/llmextract"
	"github.com/anandkaman/saledeedpipeline/internal/model"
)

// Parse implements llmextract.Extractor. It is grounded on the
// teacher's ExtractFields: build a schema-constrained prompt, POST it,
// validate the response, and fall back to one lenient-sanitize pass on
// a schema mismatch before surfacing LlmInvalidShape.
func (c *Client) Parse(ctx context.Context, text string) (model.StructuredRecord, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("llm.extract.start", "req_id", rid, "model", c.cfg.Model, "text_len", len(text))

	schema := llmextract.BuildSchema()
	sys := llmextract.BuildSystemPrompt()
	user := llmextract.BuildUserPrompt(text, "")

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": sys},
			{"role": "user", "content": user + "\n\nReturn ONLY JSON that matches the provided schema."},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	raw, err := c.post(ctx, body)
	if err != nil {
		c.logger.Error("llm.extract.http_error", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return model.StructuredRecord{}, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return model.StructuredRecord{}, apperr.New(apperr.LlmParse, "decode chat completion envelope", err)
	}
	if len(cc.Choices) == 0 {
		return model.StructuredRecord{}, apperr.New(apperr.LlmParse, "no choices in llm response", nil)
	}
	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))

	if verr := llmextract.ValidateAgainstSchema(schema, content); verr != nil {
		cleaned, dropped, serr := llmextract.SanitizeOptionalFields(content)
		if serr != nil {
			return model.StructuredRecord{}, verr
		}
		if verr2 := llmextract.ValidateAgainstSchema(schema, cleaned); verr2 != nil {
			c.logger.Error("llm.extract.schema_validation_failed", "req_id", rid, "error", verr2)
			return model.StructuredRecord{}, verr2
		}
		c.logger.Warn("llm.extract.lenient_sanitize_applied", "req_id", rid, "dropped", dropped)
		content = cleaned
	}

	rec, err := llmextract.DecodeRecord(content)
	if err != nil {
		return model.StructuredRecord{}, err
	}

	c.logger.Info("llm.extract.ok", "req_id", rid, "document_id", rec.DocumentID, "elapsed_ms", time.Since(start).Milliseconds())
	return rec, nil
}

func (c *Client) post(ctx context.Context, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, apperr.New(apperr.Internal, "marshal llm request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, apperr.New(apperr.Internal, "build llm request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, apperr.New(apperr.Cancelled, "llm request cancelled", err)
		}
		if ctx.Err() != nil {
			return nil, apperr.New(apperr.LlmTimeout, "llm request timed out", err)
		}
		return nil, apperr.New(apperr.Internal, "llm http error", err)
	}
	defer func(body io.ReadCloser) {
		if cerr := body.Close(); cerr != nil {
			c.logger.Warn("llm response body close error", "error", cerr)
		}
	}(resp.Body)

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperr.New(apperr.LlmRateLimited, "llm rate limited", fmt.Errorf("status %d: %s", resp.StatusCode, buf.String()))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.New(apperr.Internal, "llm non-2xx response", fmt.Errorf("status %d: %s", resp.StatusCode, buf.String()))
	}
	return buf.Bytes(), nil
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

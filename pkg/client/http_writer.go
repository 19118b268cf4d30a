package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/collabform/collabform/internal/response"
)

// HTTPWriter performs field updates against the response API. It is
// the standard DurableWriter for a Session.
type HTTPWriter struct {
	BaseURL string
	// Token is an optional bearer token for the auth middleware.
	Token      string
	HTTPClient *http.Client
}

func (w *HTTPWriter) UpdateField(ctx context.Context, responseID, fieldID string, v response.Value, userID string) error {
	body, err := json.Marshal(map[string]interface{}{"value": v})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/api/responses/%s/fields/%s", w.BaseURL, responseID, fieldID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.Token != "" {
		req.Header.Set("Authorization", "Bearer "+w.Token)
	} else if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	hc := w.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("durable write: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		switch resp.StatusCode {
		case http.StatusNotFound:
			return response.ErrNotFound
		case http.StatusForbidden:
			return response.ErrForbidden
		case http.StatusBadRequest:
			return response.ErrCompleted
		}
		return fmt.Errorf("durable write: status %d: %s", resp.StatusCode, msg)
	}
	return nil
}

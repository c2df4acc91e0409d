package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WaitForHealthy polls baseURL's /health endpoint until it answers 200 or
// ctx ends. The returned error carries the last failure seen.
func WaitForHealthy(ctx context.Context, baseURL string) error {
	healthURL := strings.TrimRight(baseURL, "/") + "/health"
	client := &http.Client{Timeout: time.Second}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var last error
	for {
		err := probe(ctx, client, healthURL)
		if err == nil {
			return nil
		}
		if ctx.Err() == nil || last == nil {
			last = err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("server at %s not healthy: %w", baseURL, last)
		case <-ticker.C:
		}
	}
}

func probe(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned %s", resp.Status)
	}
	return nil
}

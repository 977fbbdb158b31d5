package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

// getJSON fetches path from the node and decodes the JSON response into v.
// The bearer token and API key come from the environment, matching the
// node's own config keys.
func getJSON(path string, v interface{}) error {
	req, err := http.NewRequest(http.MethodGet, nodeURL+path, nil)
	if err != nil {
		return err
	}
	if token := os.Getenv("SENTRY_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if key := os.Getenv("API_KEY"); key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("node returned %d: %s", resp.StatusCode, body)
	}
	return json.Unmarshal(body, v)
}

// getJSONStatus is getJSON for endpoints that encode state in the HTTP
// status code; it decodes the body regardless and returns the status.
func getJSONStatus(path string, v interface{}) (int, error) {
	req, err := http.NewRequest(http.MethodGet, nodeURL+path, nil)
	if err != nil {
		return 0, err
	}
	if token := os.Getenv("SENTRY_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if key := os.Getenv("API_KEY"); key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	return resp.StatusCode, json.Unmarshal(body, v)
}

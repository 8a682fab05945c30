// Package instructions loads classifier system prompts from a file or HTTP
// source, together with a version identifier that is persisted alongside
// every classification for traceability.
package instructions

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Source loads instruction text by ref.
type Source struct {
	client *http.Client
}

// NewSource creates a Source. timeout bounds HTTP fetches.
func NewSource(timeout time.Duration) *Source {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Source{client: &http.Client{Timeout: timeout}}
}

// Load returns the instruction text and its version identifier for a ref.
// http(s) refs are fetched over the network; the version is the response
// ETag when present. Anything else is read as a filesystem path. When no
// ETag is available the version is a SHA-256 digest of the content.
func (s *Source) Load(ref string) (string, string, error) {
	if ref == "" {
		return "", "", fmt.Errorf("empty instruction ref")
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return s.loadHTTP(ref)
	}
	return loadFile(ref)
}

func (s *Source) loadHTTP(url string) (string, string, error) {
	resp, err := s.client.Get(url)
	if err != nil {
		return "", "", fmt.Errorf("fetching instructions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("fetching instructions: %s returned %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("reading instructions: %w", err)
	}

	version := strings.Trim(resp.Header.Get("ETag"), `"`)
	if version == "" {
		version = digest(body)
	}
	return string(body), version, nil
}

func loadFile(path string) (string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("reading instructions: %w", err)
	}
	return string(data), digest(data), nil
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:8])
}

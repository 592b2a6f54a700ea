package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/mirip/internal/lifecycle"
	"github.com/hyperjump/mirip/internal/models"
	"github.com/hyperjump/mirip/internal/server"
)

var httpClient = &http.Client{Timeout: 2 * time.Minute}

// apiError carries the status and error message of a failed API call.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// callAPI sends body as JSON (when non-nil) and decodes the response into out
// (when non-nil). Any status other than want is returned as an *apiError.
func callAPI(method, rawURL string, body any, want int, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, rawURL, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(b))
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &apiError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiURL(serverURL, path string) string {
	return strings.TrimRight(serverURL, "/") + "/api/v1" + path
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	var response models.SearchResponse
	if err := callAPI(http.MethodPost, apiURL(serverURL, "/search"), query, http.StatusOK, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func statusViaHTTP(serverURL string) (*server.StatusResponse, error) {
	var st server.StatusResponse
	if err := callAPI(http.MethodGet, apiURL(serverURL, "/status"), nil, http.StatusOK, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func addViaHTTP(serverURL string, id int64) error {
	return callAPI(http.MethodPost, apiURL(serverURL, "/products/"+strconv.FormatInt(id, 10)), nil, http.StatusCreated, nil)
}

func deleteViaHTTP(serverURL string, id int64) error {
	return callAPI(http.MethodDelete, apiURL(serverURL, "/products/"+strconv.FormatInt(id, 10)), nil, http.StatusOK, nil)
}

func rebuildViaHTTP(serverURL string) error {
	return callAPI(http.MethodPost, apiURL(serverURL, "/rebuild"), nil, http.StatusAccepted, nil)
}

func buildsViaHTTP(serverURL string, offset, limit int) ([]*lifecycle.BuildReport, int64, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	var out struct {
		Builds []*lifecycle.BuildReport `json:"builds"`
		Total  int64                    `json:"total"`
	}
	if err := callAPI(http.MethodGet, apiURL(serverURL, "/builds")+"?"+q.Encode(), nil, http.StatusOK, &out); err != nil {
		return nil, 0, err
	}
	return out.Builds, out.Total, nil
}

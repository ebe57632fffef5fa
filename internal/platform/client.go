package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// XClient X API v2 客户端，目前只覆盖 followers list 端点
//
// GET /users/{id}/followers
// Docs: https://docs.x.com/x-api/users/get-followers
type XClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

var _ FollowerFetcher = (*XClient)(nil)

func NewXClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *XClient {
	if baseURL == "" {
		baseURL = "https://api.x.com/2"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &XClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type xFollowersResponse struct {
	Data []FollowerUser `json:"data"`
	Meta struct {
		NextToken string `json:"next_token"`
	} `json:"meta"`
}

// FollowersPage fetches one page of the account's follower list.
func (c *XClient) FollowersPage(ctx context.Context, platformUserID, accessToken, paginationToken string, pageSize int) (*FollowerPage, error) {
	if pageSize <= 0 {
		pageSize = 1000
	}

	endpoint := fmt.Sprintf("%s/users/%s/followers", c.baseURL, url.PathEscape(platformUserID))
	params := url.Values{}
	params.Set("max_results", strconv.Itoa(pageSize))
	params.Set("user.fields", "profile_image_url,verified,public_metrics")
	if paginationToken != "" {
		params.Set("pagination_token", paginationToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("x followers request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	c.logger.Debugf("X API response: %d (%d bytes)", resp.StatusCode, len(body))

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var parsed xFollowersResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode followers page: %w", err)
	}

	return &FollowerPage{Users: parsed.Data, NextToken: parsed.Meta.NextToken}, nil
}

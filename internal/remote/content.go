package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/dailydrops/drops/internal/models"
	"github.com/dailydrops/drops/pkg/telemetry"
)

const viewerQuery = `
  query Viewer {
    viewer {
      login
      avatarUrl
    }
  }
`

// Viewer returns the identity the token authenticates as
func (c *Client) Viewer(ctx context.Context, token string) (*models.User, error) {
	ctx, span := telemetry.StartSpan(ctx, "remote.viewer")
	defer span.End()

	data, err := c.Call(ctx, viewerQuery, nil, token)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch viewer: %w", err)
	}

	var response struct {
		Viewer struct {
			Login     string `json:"login"`
			AvatarURL string `json:"avatarUrl"`
		} `json:"viewer"`
	}
	if err := unmarshalData(data, &response); err != nil {
		return nil, err
	}
	return &models.User{Login: response.Viewer.Login, AvatarURL: response.Viewer.AvatarURL}, nil
}

// Collaborators lists users who can be tagged on a post. The
// collaborators endpoint needs push access; tokens without it get a
// 403, so we fall back to the public contributors listing.
func (c *Client) Collaborators(ctx context.Context, token string) ([]models.User, error) {
	ctx, span := telemetry.StartSpan(ctx, "remote.collaborators")
	defer span.End()

	users, status, err := c.restUsers(ctx, token, fmt.Sprintf("%s/repos/%s/%s/collaborators", c.restURL, c.owner, c.name))
	if err != nil {
		return nil, err
	}
	if status == http.StatusForbidden {
		users, status, err = c.restUsers(ctx, token, fmt.Sprintf("%s/repos/%s/%s/contributors", c.restURL, c.owner, c.name))
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, &CallError{Message: fmt.Sprintf("remote API responded with %d", status), Attempts: 1}
	}
	return users, nil
}

func (c *Client) restUsers(ctx context.Context, token, endpoint string) ([]models.User, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &CallError{Message: err.Error(), Attempts: 1}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}

	var raw []struct {
		Login     string `json:"login"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode user listing: %w", err)
	}

	users := make([]models.User, 0, len(raw))
	for _, u := range raw {
		users = append(users, models.User{Login: u.Login, AvatarURL: u.AvatarURL})
	}
	return users, resp.StatusCode, nil
}

// FetchRawContent downloads a stored asset blob by repository path.
// ref pins the revision; empty means the default branch.
func (c *Client) FetchRawContent(ctx context.Context, token, path, ref string) ([]byte, error) {
	ctx, span := telemetry.StartSpan(ctx, "remote.fetch_raw_content")
	defer span.End()

	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.restURL, c.owner, c.name, path)
	if ref != "" {
		endpoint += "?ref=" + url.QueryEscape(ref)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github.raw+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &CallError{Message: err.Error(), Attempts: 1}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &CallError{Message: fmt.Sprintf("remote API responded with %d", resp.StatusCode), Attempts: 1}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	return data, nil
}

// RawURL returns the direct CDN address for a stored asset path
func (c *Client) RawURL(path, ref string) string {
	if ref == "" {
		ref = "main"
	}
	return fmt.Sprintf("%s/%s/%s/%s/%s", c.rawURL, c.owner, c.name, ref, path)
}

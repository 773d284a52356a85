// Package publish delivers QA-passed articles to the Ghost platform.
// The coordinator decides what happens from the run ledger; the client
// only speaks the Admin API.
package publish

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
)

const (
	// DefaultTimeout is the default HTTP timeout for Admin API calls.
	DefaultTimeout = 30 * time.Second

	// Admin API tokens are valid for five minutes; regenerate with some
	// slack so an in-flight request never carries an expired token.
	tokenLifetime = 5 * time.Minute
	tokenSlack    = 30 * time.Second
)

// GhostClient talks to the Ghost Admin API. Authentication uses a
// short-lived JWT minted from the "id:secret" admin key.
type GhostClient struct {
	baseURL        string
	keyID          string
	secret         []byte
	newsletterSlug string
	httpClient     *http.Client
	logger         arbor.ILogger

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

var _ interfaces.PublishTarget = (*GhostClient)(nil)

// NewGhostClient builds a client from publish config. The admin key
// secret half is hex-encoded, matching what Ghost hands out.
func NewGhostClient(cfg common.PublishConfig, logger arbor.ILogger) (*GhostClient, error) {
	if cfg.GhostURL == "" {
		return nil, fmt.Errorf("ghost url is not configured")
	}
	parts := strings.SplitN(cfg.GhostAdminKey, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid ghost admin key, expected id:secret")
	}
	secret, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("ghost admin key secret is not hex: %w", err)
	}

	return &GhostClient{
		baseURL:        strings.TrimRight(cfg.GhostURL, "/"),
		keyID:          parts[0],
		secret:         secret,
		newsletterSlug: cfg.NewsletterSlug,
		httpClient: &http.Client{
			Timeout: common.Duration(cfg.Timeout, DefaultTimeout),
		},
		logger: logger,
	}, nil
}

// getToken returns a valid Admin API token, minting a fresh one when the
// cached token is within the slack window of expiry.
func (c *GhostClient) getToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.token != "" && now.Before(c.tokenExp.Add(-tokenSlack)) {
		return c.token, nil
	}

	exp := now.Add(tokenLifetime)
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": exp.Unix(),
		"aud": "/admin/",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = c.keyID

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign admin token: %w", err)
	}

	c.token = signed
	c.tokenExp = exp
	return signed, nil
}

func (c *GhostClient) apiURL(endpoint string) string {
	return c.baseURL + "/ghost/api/admin/" + endpoint
}

// ghostPost is the Admin API's post representation, reduced to what the
// coordinator needs.
type ghostPost struct {
	ID        string          `json:"id"`
	Slug      string          `json:"slug"`
	URL       string          `json:"url"`
	Status    string          `json:"status"`
	UpdatedAt time.Time       `json:"updated_at"`
	Email     json.RawMessage `json:"email,omitempty"`
}

func (p *ghostPost) remote() *interfaces.RemotePost {
	return &interfaces.RemotePost{
		ID:        p.ID,
		Slug:      p.Slug,
		URL:       p.URL,
		Status:    p.Status,
		UpdatedAt: p.UpdatedAt,
		EmailSent: len(p.Email) > 0 && string(p.Email) != "null",
	}
}

type ghostTag struct {
	Name string `json:"name"`
}

type postPayload struct {
	Title        string     `json:"title"`
	Slug         string     `json:"slug"`
	HTML         string     `json:"html"`
	Status       string     `json:"status"`
	UpdatedAt    string     `json:"updated_at,omitempty"`
	FeatureImage string     `json:"feature_image,omitempty"`
	Tags         []ghostTag `json:"tags,omitempty"`
}

func buildPayload(input *interfaces.PostInput) postPayload {
	payload := postPayload{
		Title:        input.Title,
		Slug:         input.Slug,
		HTML:         input.HTML,
		Status:       "published",
		FeatureImage: input.FeatureImage,
	}
	for _, tag := range input.Tags {
		payload.Tags = append(payload.Tags, ghostTag{Name: tag})
	}
	return payload
}

// newsletterParams returns the query parameters that make Ghost deliver
// the post by email. Empty when the input does not send a newsletter.
func (c *GhostClient) newsletterParams(input *interfaces.PostInput) url.Values {
	params := url.Values{}
	if input.SendNewsletter && c.newsletterSlug != "" {
		params.Set("newsletter", c.newsletterSlug)
		if input.EmailSegment != "" {
			params.Set("email_segment", input.EmailSegment)
		}
	}
	return params
}

func (c *GhostClient) do(ctx context.Context, method, rawURL string, body io.Reader, contentType string) (*http.Response, error) {
	token, err := c.getToken()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Ghost "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	return resp, nil
}

// decodePost reads a {"posts":[...]} response body.
func decodePost(body io.Reader) (*ghostPost, error) {
	var envelope struct {
		Posts []ghostPost `json:"posts"`
	}
	if err := json.NewDecoder(body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode post response: %w", err)
	}
	if len(envelope.Posts) == 0 {
		return nil, fmt.Errorf("post response contained no posts")
	}
	return &envelope.Posts[0], nil
}

// GetPostBySlug returns the post with the slug, or nil when absent.
func (c *GhostClient) GetPostBySlug(ctx context.Context, slug string) (*interfaces.RemotePost, error) {
	resp, err := c.do(ctx, http.MethodGet, c.apiURL("posts/slug/"+slug+"/"), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ghost get post %s: status %d: %s", slug, resp.StatusCode, string(data))
	}

	post, err := decodePost(resp.Body)
	if err != nil {
		return nil, err
	}
	return post.remote(), nil
}

// CreatePost creates and publishes a new post. Newsletter delivery
// happens in this same call when the input requests it, because Ghost
// only sends email for the request that first publishes a post.
func (c *GhostClient) CreatePost(ctx context.Context, input *interfaces.PostInput) (*interfaces.RemotePost, error) {
	endpoint := c.apiURL("posts/")
	if params := c.newsletterParams(input); len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	body, err := json.Marshal(map[string]interface{}{"posts": []postPayload{buildPayload(input)}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode post: %w", err)
	}

	if c.logger != nil {
		c.logger.Info().
			Str("slug", input.Slug).
			Bool("newsletter", input.SendNewsletter).
			Msg("Creating Ghost post")
	}

	resp, err := c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ghost create post %s: status %d: %s", input.Slug, resp.StatusCode, string(data))
	}

	post, err := decodePost(resp.Body)
	if err != nil {
		return nil, err
	}
	return post.remote(), nil
}

// UpdatePost updates an existing post. updatedAt must be the remote
// post's current timestamp; Ghost rejects the write when someone else
// has saved in between.
func (c *GhostClient) UpdatePost(ctx context.Context, id string, input *interfaces.PostInput, updatedAt time.Time) (*interfaces.RemotePost, error) {
	endpoint := c.apiURL("posts/" + id + "/")
	if params := c.newsletterParams(input); len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	payload := buildPayload(input)
	payload.UpdatedAt = updatedAt.UTC().Format(time.RFC3339)

	body, err := json.Marshal(map[string]interface{}{"posts": []postPayload{payload}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode post: %w", err)
	}

	if c.logger != nil {
		c.logger.Info().
			Str("slug", input.Slug).
			Str("id", id).
			Msg("Updating Ghost post")
	}

	resp, err := c.do(ctx, http.MethodPut, endpoint, bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ghost update post %s: status %d: %s", input.Slug, resp.StatusCode, string(data))
	}

	post, err := decodePost(resp.Body)
	if err != nil {
		return nil, err
	}
	return post.remote(), nil
}

// UploadImage uploads an image and returns its public URL.
func (c *GhostClient) UploadImage(ctx context.Context, filename string, data []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write upload body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finish upload form: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.apiURL("images/upload/"), &buf, writer.FormDataContentType())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ghost image upload: status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if len(result.Images) == 0 {
		return "", fmt.Errorf("upload response contained no images")
	}

	if c.logger != nil {
		c.logger.Info().Str("url", result.Images[0].URL).Msg("Uploaded image to Ghost")
	}
	return result.Images[0].URL, nil
}

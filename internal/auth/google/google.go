package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"strife_service/internal/models"
)

const userinfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

var ErrIncompleteProfile = errors.New("incomplete user info from google")

// Provider resolves a Google access token into the profile of its owner.
type Provider struct {
	httpClient  *http.Client
	userinfoURL string
}

func New() *Provider {
	return &Provider{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		userinfoURL: userinfoURL,
	}
}

// NewWithClient is used by tests to point the provider at a fake endpoint.
func NewWithClient(client *http.Client, url string) *Provider {
	return &Provider{
		httpClient:  client,
		userinfoURL: url,
	}
}

// Userinfo fetches the profile behind an access token. A non-200 answer from
// Google means the token is invalid or expired.
func (p *Provider) Userinfo(ctx context.Context, accessToken string) (models.GoogleProfile, error) {
	const op = "google.Userinfo"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userinfoURL, nil)
	if err != nil {
		return models.GoogleProfile{}, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return models.GoogleProfile{}, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.GoogleProfile{}, fmt.Errorf("%s: userinfo status %d: %s", op, resp.StatusCode, body)
	}

	var profile models.GoogleProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return models.GoogleProfile{}, fmt.Errorf("%s: %w", op, err)
	}

	if profile.Email == "" || profile.Sub == "" {
		return models.GoogleProfile{}, fmt.Errorf("%s: %w", op, ErrIncompleteProfile)
	}

	return profile, nil
}

// FetchPhoto downloads the profile picture, asking Google for the 800px
// rendition instead of the default thumbnail.
func (p *Provider) FetchPhoto(ctx context.Context, pictureURL string) ([]byte, error) {
	const op = "google.FetchPhoto"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, upsizePhotoURL(pictureURL), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: photo status %d", op, resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, 5<<20))
}

// Google photo URLs end in a size suffix like "=s96-c".
var photoSizeSuffix = regexp.MustCompile(`=s\d+-c$`)

func upsizePhotoURL(u string) string {
	return photoSizeSuffix.ReplaceAllString(u, "=s800-c")
}

package oauth

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	authconfig "github.com/smallbiznis/taskhub/internal/auth/config"
)

const (
	secretBytes  = 32
	maxBodyBytes = 1 << 20
)

type flowSecrets struct {
	state    string
	verifier string
}

func newFlowSecrets() (flowSecrets, error) {
	state, err := randomString()
	if err != nil {
		return flowSecrets{}, err
	}
	verifier, err := randomString()
	if err != nil {
		return flowSecrets{}, err
	}
	return flowSecrets{state: state, verifier: verifier}, nil
}

func randomString() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("oauth: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// s256 is the PKCE code challenge for verifier.
func s256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func authorizeURL(provider authconfig.AuthProviderConfig, callback string, secrets flowSecrets) (string, error) {
	u, err := url.Parse(provider.AuthURL)
	if err != nil {
		return "", ErrInvalidProvider
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", provider.ClientID)
	q.Set("redirect_uri", callback)
	q.Set("state", secrets.state)
	q.Set("code_challenge", s256(secrets.verifier))
	q.Set("code_challenge_method", "S256")
	if len(provider.Scopes) > 0 {
		q.Set("scope", strings.Join(provider.Scopes, " "))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type providerClient struct {
	http *http.Client
}

func (c *providerClient) exchange(ctx context.Context, provider authconfig.AuthProviderConfig, code, callback, verifier string) (string, error) {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {callback},
		"client_id":    {provider.ClientID},
	}
	if provider.ClientSecret != "" {
		form.Set("client_secret", provider.ClientSecret)
	}
	if v := strings.TrimSpace(verifier); v != "" {
		form.Set("code_verifier", v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req)
	if err != nil {
		return "", err
	}
	return accessTokenFrom(body)
}

// accessTokenFrom accepts both JSON and form-encoded token responses; some
// providers still answer with the latter.
func accessTokenFrom(body []byte) (string, error) {
	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.AccessToken != "" {
		return payload.AccessToken, nil
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return "", fmt.Errorf("oauth: unreadable token response: %w", err)
	}
	if token := values.Get("access_token"); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("oauth: token response without access_token")
}

func (c *providerClient) userInfo(ctx context.Context, provider authconfig.AuthProviderConfig, accessToken string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, provider.APIURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	claims := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&claims); err != nil {
		return nil, fmt.Errorf("oauth: decode user info: %w", err)
	}
	return claims, nil
}

func (c *providerClient) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("oauth: %s %s returned %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return body, nil
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
)

// ErrEmptyToken is returned when a login succeeds without a token.
var ErrEmptyToken = errors.New("login response carried no token")

// Signup registers a user and returns the server's message.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (string, error) {
	body, err := c.post(ctx, "/User/signup", req)
	if err != nil {
		return "", err
	}
	return responseMessage(body), nil
}

// Login authenticates and returns the opaque bearer token. The server may
// answer with the token as plain text or as {"token": "..."}.
func (c *Client) Login(ctx context.Context, req LoginRequest) (string, error) {
	body, err := c.post(ctx, "/User/login", req)
	if err != nil {
		return "", err
	}

	token := parseToken(body)
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}

func parseToken(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var resp tokenResponse
		if err := json.Unmarshal(trimmed, &resp); err == nil {
			if resp.Token != "" {
				return resp.Token
			}
			return resp.AccessToken
		}
	}
	return responseMessage(trimmed)
}

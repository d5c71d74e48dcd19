package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// UserInfo представляет информацию о кураторе из auth-сервиса
type UserInfo struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Lastname string `json:"lastname"`
}

var (
	gBaseURL string
	gClient  *http.Client
)

// InitClient настраивает пакетный клиент auth-сервиса
func InitClient(baseURL string) {
	gBaseURL = strings.TrimRight(baseURL, "/")
	gClient = &http.Client{Timeout: 10 * time.Second}
}

// getUser спрашивает auth-сервис, кому принадлежит токен
func getUser(ctx context.Context, authToken string) (*UserInfo, error) {
	if gClient == nil {
		return nil, fmt.Errorf("auth client is not initialized")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gBaseURL+"/v1/users/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", authToken)

	resp, err := gClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth service returned status %d", resp.StatusCode)
	}

	var body struct {
		User UserInfo `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode auth response: %w", err)
	}

	if body.User.ID == "" {
		return nil, fmt.Errorf("auth service returned empty user id")
	}

	return &body.User, nil
}

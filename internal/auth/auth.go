package auth

import (
	"fmt"
	"net/http"
)

// VerifyToken проверяет bearer-токен запроса через auth-сервис и
// возвращает идентификатор куратора
func VerifyToken(r *http.Request) (string, error) {
	authToken := r.Header.Get("Authorization")
	if authToken == "" {
		return "", fmt.Errorf("no authorization header")
	}

	user, err := getUser(r.Context(), authToken)
	if err != nil {
		return "", err
	}

	return user.ID, nil
}

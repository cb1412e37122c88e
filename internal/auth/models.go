package auth

import "github.com/golang-jwt/jwt/v5"

// DevAuthRequest — запрос на dev-авторизацию. Для роли patient Subject — id пациента.
type DevAuthRequest struct {
	Subject string `json:"subject"`
	Role    string `json:"role"`
}

// DevAuthResponse — ответ на dev-авторизацию
type DevAuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Subject     string `json:"subject"`
	Role        string `json:"role"`
}

// Claims — claims нашего access token
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ErrorResponse — формат ошибки
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthMiddleware enforces the optional pre-shared API key from spec.md
// §6 on every request except the CORS preflight and /health. /ws/video additionally
// accepts a short-lived signed token in its query string (minted via
// GenerateStreamToken, checked by AuthorizedForStream) for viewers who
// were handed a stream link rather than the pre-shared key itself.
type AuthMiddleware struct {
	apiKey    string
	secretKey string
}

// StreamClaims is the payload of a stream-access token.
type StreamClaims struct {
	CameraID string `json:"camera_id"`
	jwt.RegisteredClaims
}

// NewAuthMiddleware builds a middleware that requires apiKey on every
// protected request; an empty apiKey disables the check entirely.
func NewAuthMiddleware(apiKey, secretKey string) *AuthMiddleware {
	return &AuthMiddleware{apiKey: apiKey, secretKey: secretKey}
}

// Enabled reports whether API-key enforcement is configured.
func (am *AuthMiddleware) Enabled() bool { return am.apiKey != "" }

// Check enforces X-API-Key on every request except CORS preflight and
// the health check; a missing or wrong key yields 401 per §7.
func (am *AuthMiddleware) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !am.Enabled() || r.Method == http.MethodOptions || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		if !am.Authorized(r) {
			writeJSONError(w, http.StatusUnauthorized, "missing or invalid X-API-Key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Authorized reports whether r carries the pre-shared key, via header or
// query string. Exported from Check so handlers that cannot use the
// plain http.Handler wrapping (the WebSocket upgrade, which must decide
// before or during the handshake) can still run the identical check.
func (am *AuthMiddleware) Authorized(r *http.Request) bool {
	if !am.Enabled() {
		return true
	}
	key := r.Header.Get("X-API-Key")
	if key == "" {
		key = r.URL.Query().Get("api_key")
	}
	return key == am.apiKey
}

// GenerateStreamToken mints a short-lived token scoped to a single
// camera. Minted by an authed REST call (handleCameraStreamToken) and
// handed to a viewer so a /ws/video link can be shared without also
// sharing the long-lived pre-shared API key.
func (am *AuthMiddleware) GenerateStreamToken(cameraID string) (string, error) {
	claims := StreamClaims{
		CameraID: cameraID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(am.secretKey))
	if err != nil {
		return "", fmt.Errorf("sign stream token: %w", err)
	}
	return signed, nil
}

// VerifyStreamToken checks a stream token minted by GenerateStreamToken
// and returns the camera ID it was scoped to.
func (am *AuthMiddleware) VerifyStreamToken(tokenString string) (string, error) {
	claims := &StreamClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(am.secretKey), nil
	})
	if err != nil {
		return "", fmt.Errorf("parse stream token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid stream token")
	}
	return claims.CameraID, nil
}

// AuthorizedForStream is Authorized, extended to also accept a
// camera-scoped stream token (query param "token") minted by
// GenerateStreamToken. cameraID is the camera the caller is about to
// attach to; a token scoped to a different camera is rejected.
func (am *AuthMiddleware) AuthorizedForStream(r *http.Request, cameraID string) bool {
	if am.Authorized(r) {
		return true
	}
	if !am.Enabled() {
		return true
	}
	tok := r.URL.Query().Get("token")
	if tok == "" {
		return false
	}
	scoped, err := am.VerifyStreamToken(tok)
	if err != nil {
		return false
	}
	return scoped == cameraID
}

// Package adminauth guards the adapter's debug/admin HTTP surface with a
// single admin credential: password login issuing a short-lived JWT,
// refresh-token rotation, session revocation and login rate-limiting
// backed by Redis, mirroring how the teacher layer protects its account
// endpoints.
package adminauth

import (
	"bytes"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"strings"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const (
	jwtTTL      = 15 * time.Minute
	refreshTTL  = 24 * time.Hour
	loginLimit  = 10 // max attempts per IP per window
	loginWindow = time.Minute

	stepUpTTL = 5 * time.Minute

	adminSubject = "admin"
)

func sessionKey(subject string) string  { return "adminauth:session:" + subject }
func refreshKey(token string) string    { return "adminauth:refresh:" + token }
func loginAttemptsKey(ip string) string { return "adminauth:ratelimit:" + strings.ReplaceAll(ip, ":", "_") }
func stepUpKey(subject string) string   { return "adminauth:stepup:" + subject }

// Service issues and validates admin sessions against one configured
// password hash; there is no user store because this adapter owns no
// accounts of its own.
type Service struct {
	kv           *redis.Client
	jwtSecret    []byte
	passwordHash []byte
	totpSecret   string
	issuer       string
}

// New returns a Service that authenticates against passwordHash (a bcrypt
// hash, e.g. produced once via HashPassword at deployment time). totpSecret
// is the base32 TOTP secret enrolled out of band; an empty totpSecret
// disables step-up confirmation entirely.
func New(kv *redis.Client, jwtSecret string, passwordHash []byte, totpSecret, issuer string) *Service {
	return &Service{kv: kv, jwtSecret: []byte(jwtSecret), passwordHash: passwordHash, totpSecret: totpSecret, issuer: issuer}
}

// HashPassword bcrypt-hashes a plaintext admin password for storage in
// configuration.
func HashPassword(plain string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
}

// Routes registers the login/refresh/logout and TOTP endpoints on r.
func (s *Service) Routes(r chi.Router) {
	r.Post("/login", s.login)
	r.Post("/refresh", s.refresh)
	r.Group(func(r chi.Router) {
		r.Use(s.Middleware)
		r.Post("/logout", s.logout)
		r.Get("/totp/qrcode", s.totpQRCode)
		r.Post("/totp/confirm", s.totpConfirm)
	})
}

type loginReq struct {
	Password string `json:"password"`
}

func (s *Service) login(w http.ResponseWriter, r *http.Request) {
	ip := r.RemoteAddr
	attempts, _ := s.kv.Incr(r.Context(), loginAttemptsKey(ip)).Result()
	if attempts == 1 {
		s.kv.Expire(r.Context(), loginAttemptsKey(ip), loginWindow)
	}
	if attempts > loginLimit {
		writeErr(w, http.StatusTooManyRequests, "too many login attempts")
		return
	}

	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(req.Password)); err != nil {
		writeErr(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	accessToken, err := s.issueJWT()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "jwt error")
		return
	}
	refreshToken := uuid.New().String()

	pipe := s.kv.Pipeline()
	pipe.Set(r.Context(), sessionKey(adminSubject), "1", jwtTTL)
	pipe.Set(r.Context(), refreshKey(refreshToken), adminSubject, refreshTTL)
	if _, err := pipe.Exec(r.Context()); err != nil {
		writeErr(w, http.StatusInternalServerError, "session error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	})
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Service) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	subject, err := s.kv.Get(r.Context(), refreshKey(req.RefreshToken)).Result()
	if err != nil {
		writeErr(w, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}

	accessToken, err := s.issueJWT()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "jwt error")
		return
	}

	newRefresh := uuid.New().String()
	pipe := s.kv.Pipeline()
	pipe.Del(r.Context(), refreshKey(req.RefreshToken))
	pipe.Set(r.Context(), sessionKey(subject), "1", jwtTTL)
	pipe.Set(r.Context(), refreshKey(newRefresh), subject, refreshTTL)
	if _, err := pipe.Exec(r.Context()); err != nil {
		writeErr(w, http.StatusInternalServerError, "session error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"access_token":  accessToken,
		"refresh_token": newRefresh,
	})
}

func (s *Service) logout(w http.ResponseWriter, r *http.Request) {
	s.kv.Del(r.Context(), sessionKey(adminSubject))
	w.WriteHeader(http.StatusNoContent)
}

// totpQRCode renders an enrollment QR code for totpSecret as a PNG. The
// admin scans it once with an authenticator app; no enrollment state is
// persisted here since the secret itself is the configured credential.
func (s *Service) totpQRCode(w http.ResponseWriter, r *http.Request) {
	if s.totpSecret == "" {
		writeErr(w, http.StatusNotFound, "totp not configured")
		return
	}
	key, err := otp.NewKeyFromURL(totpURL(s.issuer, adminSubject, s.totpSecret))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "totp key error")
		return
	}
	code, err := qr.Encode(key.String(), qr.M, qr.Auto)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "qr encode error")
		return
	}
	code, err = barcode.Scale(code, 256, 256)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "qr scale error")
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		writeErr(w, http.StatusInternalServerError, "png encode error")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func totpURL(issuer, subject, secret string) string {
	return "otpauth://totp/" + issuer + ":" + subject + "?secret=" + secret + "&issuer=" + issuer
}

type totpConfirmReq struct {
	Code string `json:"code"`
}

// totpConfirm validates a live 6-digit TOTP code and, on success, marks the
// current session as step-up confirmed for stepUpTTL. RequireStepUp checks
// this flag before letting a destroy_object call through.
func (s *Service) totpConfirm(w http.ResponseWriter, r *http.Request) {
	if s.totpSecret == "" {
		writeErr(w, http.StatusNotFound, "totp not configured")
		return
	}
	var req totpConfirmReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !totp.Validate(req.Code, s.totpSecret) {
		writeErr(w, http.StatusUnauthorized, "invalid code")
		return
	}
	if err := s.kv.Set(r.Context(), stepUpKey(adminSubject), "1", stepUpTTL).Err(); err != nil {
		writeErr(w, http.StatusInternalServerError, "session error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequireStepUp wraps a handler that also requires a recent totpConfirm,
// on top of Middleware's ordinary bearer-token check. When no TOTP secret
// is configured the step-up requirement is a no-op, since there is nothing
// to confirm against.
func (s *Service) RequireStepUp(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.totpSecret == "" {
			next.ServeHTTP(w, r)
			return
		}
		exists, err := s.kv.Exists(r.Context(), stepUpKey(adminSubject)).Result()
		if err != nil || exists == 0 {
			writeErr(w, http.StatusForbidden, "totp step-up required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type claims struct {
	jwt.RegisteredClaims
}

func (s *Service) issueJWT() (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   adminSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(jwtTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.jwtSecret)
}

// Middleware validates a Bearer token (or a signed-URL "token" query
// param) and confirms the admin session has not been revoked.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearerToken(r)
		if tokenStr == "" {
			writeErr(w, http.StatusUnauthorized, "missing token")
			return
		}
		var c claims
		tok, err := jwt.ParseWithClaims(tokenStr, &c, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return s.jwtSecret, nil
		})
		if err != nil || !tok.Valid {
			writeErr(w, http.StatusUnauthorized, "invalid token")
			return
		}
		exists, err := s.kv.Exists(r.Context(), sessionKey(c.Subject)).Result()
		if err != nil || exists == 0 {
			writeErr(w, http.StatusUnauthorized, "session expired")
			return
		}
		next.ServeHTTP(w, r.WithContext(r.Context()))
	})
}

func bearerToken(r *http.Request) string {
	hdr := r.Header.Get("Authorization")
	if strings.HasPrefix(hdr, "Bearer ") {
		return strings.TrimPrefix(hdr, "Bearer ")
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	if c, err := r.Cookie("access_token"); err == nil {
		return c.Value
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

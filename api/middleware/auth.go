/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/paylancer/paylancer/config"
	"github.com/paylancer/paylancer/internal/apierror"
	"github.com/paylancer/paylancer/model"
)

const (
	InternalKeyHeader = "X-Internal-Api-Key"
	APIKeyHeader      = "X-Api-Key"
	AdminKeyHeader    = "X-Admin-Key"

	// ContextAPIKey holds the *model.APIKey that authenticated the request,
	// when one did.
	ContextAPIKey = "apiKey"
)

// KeyAuthenticator resolves a raw API key into its stored record.
type KeyAuthenticator interface {
	AuthenticateAPIKey(ctx context.Context, raw string) (*model.APIKey, error)
}

// AuthMiddleware guards the internal and admin route groups.
type AuthMiddleware struct {
	keys KeyAuthenticator
}

func NewAuthMiddleware(keys KeyAuthenticator) *AuthMiddleware {
	return &AuthMiddleware{keys: keys}
}

// extractKey returns the first non-empty credential header.
func extractKey(c *gin.Context) string {
	for _, header := range []string{InternalKeyHeader, APIKeyHeader} {
		if v := strings.TrimSpace(c.GetHeader(header)); v != "" {
			return v
		}
	}
	return ""
}

// Internal accepts the configured server secret or any non-revoked API key.
// Authentication is skipped entirely when the server is not in secure mode.
func (m *AuthMiddleware) Internal() gin.HandlerFunc {
	return func(c *gin.Context) {
		conf, err := config.Fetch()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "configuration is not loaded"})
			return
		}
		if !conf.Server.Secure {
			c.Next()
			return
		}

		key := extractKey(c)
		if key == "" {
			abortUnauthorized(c, "Authentication required")
			return
		}

		if conf.Server.SecretKey != "" && secureCompare(conf.Server.SecretKey, key) {
			c.Next()
			return
		}

		apiKey, err := m.keys.AuthenticateAPIKey(c.Request.Context(), key)
		if err != nil {
			status := apierror.MapErrorToHTTPStatus(err)
			if status >= http.StatusInternalServerError {
				logrus.WithError(err).Error("api key authentication failed")
				c.AbortWithStatusJSON(status, gin.H{"error": "Failed to authenticate request"})
				return
			}
			abortUnauthorized(c, errorMessage(err))
			return
		}

		c.Set(ContextAPIKey, apiKey)
		c.Next()
	}
}

// Admin accepts only the admin key header.
func (m *AuthMiddleware) Admin() gin.HandlerFunc {
	return func(c *gin.Context) {
		conf, err := config.Fetch()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "configuration is not loaded"})
			return
		}
		if !conf.Server.Secure {
			c.Next()
			return
		}
		if conf.Server.AdminKey == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Admin key is not configured"})
			return
		}

		key := strings.TrimSpace(c.GetHeader(AdminKeyHeader))
		if key == "" {
			abortUnauthorized(c, "Missing admin key")
			return
		}
		if !secureCompare(conf.Server.AdminKey, key) {
			abortUnauthorized(c, "Invalid admin key")
			return
		}
		c.Next()
	}
}

func errorMessage(err error) string {
	if apiErr, ok := apierror.As(err); ok {
		return apiErr.Message
	}
	return err.Error()
}

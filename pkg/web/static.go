//go:build !embed

package web

import (
	"net/http"
)

// Without the embed tag the dashboard is read from frontend/dist at runtime.
func embeddedStaticFS() (http.FileSystem, error) {
	return nil, nil
}

//go:build embed

package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed frontend/dist
var dashboardFiles embed.FS

// embeddedStaticFS serves the dashboard compiled into the binary
func embeddedStaticFS() (http.FileSystem, error) {
	sub, err := fs.Sub(dashboardFiles, "frontend/dist")
	if err != nil {
		return nil, err
	}
	return http.FS(sub), nil
}

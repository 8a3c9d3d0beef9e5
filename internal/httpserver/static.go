package httpserver

import (
	"embed"
	"net/http"

	"github.com/labstack/echo/v4"
)

//go:embed ui/index.html
var uiFS embed.FS

// registerUIRoutes serves the embedded single-page UI.
func (c *Controller) registerUIRoutes() {
	c.Echo.GET("/", func(ctx echo.Context) error {
		page, err := uiFS.ReadFile("ui/index.html")
		if err != nil {
			return c.HandleError(ctx, err, "UI page unavailable", http.StatusInternalServerError)
		}
		return ctx.HTMLBlob(http.StatusOK, page)
	})
}

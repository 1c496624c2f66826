package handlers

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

//go:embed docs/openapi.yaml
var openAPIDocument []byte

const openAPIPath = "/openapi.yaml"

// RegisterSwagger serves the Swagger UI and the embedded OpenAPI document
// under r. Both share the wildcard route because gin rejects a static
// sibling next to a catch-all.
func RegisterSwagger(r gin.IRoutes, handlers ...gin.HandlerFunc) {
	ui := ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/docs"+openAPIPath))
	serve := func(c *gin.Context) {
		if c.Param("any") == openAPIPath {
			c.Data(http.StatusOK, "application/yaml", openAPIDocument)
			return
		}
		ui(c)
	}
	r.GET("/docs/*any", chain(handlers, serve)...)
}

package webserver

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mdouchement/logger"
	"github.com/mdouchement/modelshuttle/internal/transfer"
	middlewarepkg "github.com/mdouchement/modelshuttle/internal/webserver/middleware"
)

// A Controller is an Iversion Of Control pattern used to init the server package.
type Controller struct {
	Version string
	Logger  logger.Logger
	Engine  *transfer.Engine
	// Token, when set, is required in the X-Auth-Token header of the model routes.
	Token string
	Debug bool
}

// EchoEngine instantiates the wep server.
func EchoEngine(ctrl Controller) *echo.Echo {
	engine := echo.New()
	engine.HideBanner = true
	engine.HidePort = true

	engine.Use(middleware.Recover())
	engine.Use(middleware.Gzip())
	engine.Use(middlewarepkg.Logger(ctrl.Logger))
	if ctrl.Debug {
		engine.Use(middlewarepkg.Dumpper(ctrl.Logger))
	}

	engine.HTTPErrorHandler = middlewarepkg.NewHTTPErrorHandler(ctrl.Logger)

	engine.Pre(middleware.Rewrite(map[string]string{
		"/": "/version",
	}))

	//
	//
	//

	router := engine.Group("")

	// Generic handlers
	//
	router.GET("/version", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"version": ctrl.Version,
		})
	})

	api := router.Group("")
	if ctrl.Token != "" {
		api.Use(middlewarepkg.Authenticate(ctrl.Token))
	}

	// Models
	//
	models := models{
		logger: ctrl.Logger.WithPrefix("[models]"),
		engine: ctrl.Engine,
	}
	api.GET("/models", models.List)
	api.POST("/models/export", models.Export)
	api.POST("/models/import", models.Import)
	api.DELETE("/models/:name/:tag", models.Delete)

	// Transfers
	//
	transfers := transfers{
		logger: ctrl.Logger.WithPrefix("[transfers]"),
		engine: ctrl.Engine,
	}
	api.GET("/transfers", transfers.List)
	api.POST("/gc", transfers.Collect)

	return engine
}

// PrintRoutes prints the Echo engin exposed routes.
func PrintRoutes(e *echo.Echo) {
	ignored := map[string]bool{
		"":   true,
		".":  true,
		"/*": true,
	}

	routes := e.Routes()
	sort.Slice(routes, func(i int, j int) bool {
		return routes[i].Path < routes[j].Path
	})

	fmt.Println("Routes:")
	for _, route := range routes {
		if ignored[route.Path] {
			continue
		}
		fmt.Printf("%6s %s\n", route.Method, route.Path)
	}
}

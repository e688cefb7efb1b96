package webserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/logger"
	"github.com/mdouchement/modelshuttle/internal/transfer"
	"github.com/mdouchement/modelshuttle/internal/webserver/serializer"
	"github.com/mdouchement/modelshuttle/internal/webserver/weberror"
)

type transfers struct {
	logger logger.Logger
	engine *transfer.Engine
}

func (h *transfers) List(c echo.Context) error {
	c.Set("handler_method", "transfers.List")

	var limit int
	if s := c.QueryParam("limit"); s != "" {
		var err error
		if limit, err = strconv.Atoi(s); err != nil {
			return weberror.New(http.StatusBadRequest, "invalid limit")
		}
	}

	journal, err := h.engine.Transfers(limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, serializer.Transfers(journal))
}

func (h *transfers) Collect(c echo.Context) error {
	c.Set("handler_method", "transfers.Collect")

	var payload struct {
		Orphans bool `json:"orphans"`
		DryRun  bool `json:"dry_run"`
	}
	if err := c.Bind(&payload); err != nil {
		return weberror.New(http.StatusBadRequest, err.Error())
	}

	report, err := h.engine.Collect(c.Request().Context(), transfer.GCOptions{
		Orphans: payload.Orphans,
		DryRun:  payload.DryRun,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, report)
}

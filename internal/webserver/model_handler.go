package webserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/logger"
	"github.com/mdouchement/modelshuttle/internal/archive"
	"github.com/mdouchement/modelshuttle/internal/model"
	"github.com/mdouchement/modelshuttle/internal/transfer"
	"github.com/mdouchement/modelshuttle/internal/webserver/serializer"
	"github.com/mdouchement/modelshuttle/internal/webserver/weberror"
)

type models struct {
	logger logger.Logger
	engine *transfer.Engine
}

func (h *models) List(c echo.Context) error {
	c.Set("handler_method", "models.List")

	entries, err := h.engine.List()
	if err != nil {
		return err
	}

	//

	if c.Request().Header.Get("Accept") == "text/plain" {
		return c.String(http.StatusOK, serializer.TextModels(entries))
	}
	// "application/json"
	return c.JSON(http.StatusOK, serializer.Models(entries))
}

func (h *models) Export(c echo.Context) error {
	c.Set("handler_method", "models.Export")

	var payload struct {
		Model       string `json:"model"`
		Destination string `json:"destination"`
		Overwrite   bool   `json:"overwrite"`
		Compression string `json:"compression"`
		Verify      bool   `json:"verify"`
	}
	if err := c.Bind(&payload); err != nil {
		return weberror.New(http.StatusBadRequest, err.Error())
	}
	if payload.Destination == "" {
		return weberror.New(http.StatusBadRequest, "missing destination")
	}

	id, err := model.ParseIdentity(payload.Model)
	if err != nil {
		return weberror.New(http.StatusBadRequest, err.Error())
	}
	compression, err := archive.ParseCompression(payload.Compression)
	if err != nil {
		return weberror.New(http.StatusBadRequest, err.Error())
	}

	h.logger.Debugf("models.Export: %s to %s", id, payload.Destination)
	res, err := h.engine.Export(c.Request().Context(), transfer.ExportRequest{
		Identity:    id,
		Destination: payload.Destination,
		Overwrite:   payload.Overwrite,
		Compression: compression,
		Verify:      payload.Verify,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, serializer.Result(res))
}

func (h *models) Import(c echo.Context) error {
	c.Set("handler_method", "models.Import")

	var payload struct {
		Archive   string `json:"archive"`
		Name      string `json:"name"`
		Overwrite bool   `json:"overwrite"`
	}
	if err := c.Bind(&payload); err != nil {
		return weberror.New(http.StatusBadRequest, err.Error())
	}
	if payload.Archive == "" {
		return weberror.New(http.StatusBadRequest, "missing archive")
	}

	req := transfer.ImportRequest{
		Archive:   payload.Archive,
		Overwrite: payload.Overwrite,
	}
	if payload.Name != "" {
		id, err := model.ParseIdentity(payload.Name)
		if err != nil {
			return weberror.New(http.StatusBadRequest, err.Error())
		}
		req.Override = &id
	}

	h.logger.Debugf("models.Import: %s", payload.Archive)
	res, err := h.engine.Import(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, serializer.Result(res))
}

func (h *models) Delete(c echo.Context) error {
	c.Set("handler_method", "models.Delete")

	confirmed, _ := strconv.ParseBool(c.QueryParam("confirmed"))

	res, err := h.engine.Delete(c.Request().Context(), transfer.DeleteRequest{
		Identity:  model.NewIdentity(c.Param("name"), c.Param("tag")),
		Confirmed: confirmed,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, serializer.Result(res))
}

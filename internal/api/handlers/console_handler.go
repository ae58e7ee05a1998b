package handlers

import (
	"net/http"
	"time"

	"broadcast-console/internal/domain"
	"broadcast-console/internal/services"
	"broadcast-console/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ConsoleHandler is the HTTP surface the marketplace front end drives.
// Handlers bind, validate, and delegate; all state lives in the
// services.
type ConsoleHandler struct {
	reconciler *services.Reconciler
	controller *services.StreamController
	log        logger.Logger
}

func NewConsoleHandler(reconciler *services.Reconciler, controller *services.StreamController, log logger.Logger) *ConsoleHandler {
	return &ConsoleHandler{
		reconciler: reconciler,
		controller: controller,
		log:        log,
	}
}

func (h *ConsoleHandler) Register(e *echo.Echo) {
	e.POST("/console/connect", h.Connect)
	e.POST("/console/disconnect", h.Disconnect)
	e.GET("/console/status", h.Status)
	e.GET("/console/history", h.History)

	e.POST("/console/venue", h.BindVenue)
	e.GET("/console/scenes", h.Scenes)
	e.POST("/console/scene", h.SwitchScene)
	e.POST("/console/overlay/source", h.CreateOverlaySource)

	e.POST("/console/stream/start", h.StartStreaming)
	e.POST("/console/stream/stop", h.StopStreaming)

	e.POST("/console/auction/start", h.StartAuction)
	e.POST("/console/auction/stop", h.StopAuction)
	e.POST("/console/auction/car", h.UpdateCarInfo)
	e.POST("/console/auction/bid", h.UpdateHighestBidder)
	e.POST("/console/auction/extend", h.ExtendAuction)
	e.POST("/console/auction/active", h.SetAuctionActive)
}

type ConnectRequest struct {
	Address    string `json:"address"`
	Port       int    `json:"port"`
	Credential string `json:"credential"`
}

func (h *ConsoleHandler) Connect(c echo.Context) error {
	var req ConnectRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if req.Address == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Address is required"})
	}

	settings := &domain.ConnectionSettings{
		Address:    req.Address,
		Port:       req.Port,
		Credential: req.Credential,
	}
	if !h.reconciler.Connect(c.Request().Context(), settings) {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Failed to connect to streaming tool"})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "connected"})
}

func (h *ConsoleHandler) Disconnect(c echo.Context) error {
	h.reconciler.Disconnect(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]string{"status": "disconnected"})
}

type StatusResponse struct {
	Phase     string                  `json:"phase"`
	Streaming bool                    `json:"streaming"`
	Venue     *domain.Venue           `json:"venue,omitempty"`
	Auction   *domain.AuctionState    `json:"auction,omitempty"`
	Broadcast *domain.BroadcastRecord `json:"broadcast,omitempty"`
}

func (h *ConsoleHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		Phase:     h.controller.Phase().String(),
		Streaming: h.controller.IsStreaming(),
		Venue:     h.controller.Venue(),
		Auction:   h.controller.CurrentAuction(),
		Broadcast: h.reconciler.Record(),
	})
}

func (h *ConsoleHandler) History(c echo.Context) error {
	events, err := h.reconciler.History(c.Request().Context(), 50)
	if err != nil {
		h.log.Error("Failed to load session history", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load history"})
	}
	return c.JSON(http.StatusOK, events)
}

func (h *ConsoleHandler) BindVenue(c echo.Context) error {
	var venue domain.Venue
	if err := c.Bind(&venue); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if venue.ID == "" || venue.StreamKey == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Venue id and stream key are required"})
	}

	h.controller.BindVenue(venue)
	return c.JSON(http.StatusOK, map[string]string{"status": "bound"})
}

func (h *ConsoleHandler) Scenes(c echo.Context) error {
	if c.QueryParam("refresh") == "true" {
		if err := h.controller.RefreshScenes(c.Request().Context()); err != nil {
			h.log.Error("Failed to refresh scenes", "error", err)
			return c.JSON(http.StatusBadGateway, map[string]string{"error": "Failed to refresh scenes"})
		}
	}

	scenes := h.controller.Scenes()
	if scenes == nil {
		scenes = &domain.SceneSet{}
	}
	return c.JSON(http.StatusOK, scenes)
}

type SwitchSceneRequest struct {
	Name string `json:"name"`
}

func (h *ConsoleHandler) SwitchScene(c echo.Context) error {
	var req SwitchSceneRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Scene name is required"})
	}

	if err := h.controller.SwitchScene(c.Request().Context(), req.Name); err != nil {
		h.log.Error("Failed to switch scene", "scene", req.Name, "error", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Failed to switch scene"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "switched", "scene": req.Name})
}

type CreateOverlaySourceRequest struct {
	Scene string `json:"scene"`
}

func (h *ConsoleHandler) CreateOverlaySource(c echo.Context) error {
	var req CreateOverlaySourceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if req.Scene == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Scene name is required"})
	}

	if err := h.controller.CreateOverlaySource(c.Request().Context(), req.Scene); err != nil {
		h.log.Error("Failed to create overlay source", "scene", req.Scene, "error", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Failed to create overlay source"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "created"})
}

func (h *ConsoleHandler) StartStreaming(c echo.Context) error {
	if !h.reconciler.StartStreaming(c.Request().Context()) {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Streaming could not be started"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "streaming"})
}

func (h *ConsoleHandler) StopStreaming(c echo.Context) error {
	if !h.reconciler.StopStreaming(c.Request().Context()) {
		return c.JSON(http.StatusConflict, map[string]string{"error": "Streaming could not be stopped"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "stopped"})
}

type StartAuctionRequest struct {
	Car          domain.CarInfo `json:"car"`
	EndTime      time.Time      `json:"end_time"`
	MinIncrement float64        `json:"min_increment"`
}

func (h *ConsoleHandler) StartAuction(c echo.Context) error {
	var req StartAuctionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if req.EndTime.Before(time.Now()) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "End time must be in the future"})
	}

	state := &domain.AuctionState{
		Car:          req.Car,
		EndTime:      req.EndTime,
		MinIncrement: req.MinIncrement,
		Active:       true,
	}
	h.controller.StartAuction(state)
	return c.JSON(http.StatusOK, map[string]string{"status": "auction_started"})
}

func (h *ConsoleHandler) StopAuction(c echo.Context) error {
	h.controller.StopAuction()
	return c.JSON(http.StatusOK, map[string]string{"status": "auction_stopped"})
}

func (h *ConsoleHandler) UpdateCarInfo(c echo.Context) error {
	var car domain.CarInfo
	if err := c.Bind(&car); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	if err := h.controller.UpdateCarInfo(c.Request().Context(), car); err != nil {
		h.log.Error("Failed to update car info", "error", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "Failed to update car info"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "updated"})
}

type BidRequest struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

func (h *ConsoleHandler) UpdateHighestBidder(c echo.Context) error {
	var req BidRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if req.Name == "" || req.Amount <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Bidder name and positive amount are required"})
	}

	h.controller.UpdateHighestBidder(domain.Bidder{
		Name:     req.Name,
		Amount:   req.Amount,
		PlacedAt: time.Now(),
	})
	return c.JSON(http.StatusOK, map[string]string{"status": "updated"})
}

type ExtendAuctionRequest struct {
	Seconds int `json:"seconds"`
}

func (h *ConsoleHandler) ExtendAuction(c echo.Context) error {
	var req ExtendAuctionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if req.Seconds <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Extension seconds must be positive"})
	}

	h.controller.ExtendAuctionTime(req.Seconds)
	return c.JSON(http.StatusOK, map[string]string{"status": "extended"})
}

type SetActiveRequest struct {
	Active bool `json:"active"`
}

func (h *ConsoleHandler) SetAuctionActive(c echo.Context) error {
	var req SetActiveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	h.controller.SetAuctionActive(req.Active)
	return c.JSON(http.StatusOK, map[string]string{"status": "updated"})
}

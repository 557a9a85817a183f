package handlers

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/vocall/internal/config"
	"github.com/xpanvictor/vocall/internal/domains/call"
	"github.com/xpanvictor/vocall/internal/domains/dialer"
	"github.com/xpanvictor/vocall/internal/domains/session"
	"github.com/xpanvictor/vocall/pkg/Logger"
	"github.com/xpanvictor/vocall/pkg/telephony"
)

// CallHandler exposes the operator-facing REST surface: placing calls,
// serving the carrier's answer webhook, and browsing call history.
type CallHandler struct {
	cfg    *config.Settings
	store  call.Store
	dialer *dialer.Service
	logger *Logger.Logger
}

func NewCallHandler(
	cfg *config.Settings,
	store call.Store,
	dialerService *dialer.Service,
	logger *Logger.Logger,
) *CallHandler {
	return &CallHandler{
		cfg:    cfg,
		store:  store,
		dialer: dialerService,
		logger: logger,
	}
}

type dialRequest struct {
	Phone    string `json:"phone" binding:"required"`
	Persona  string `json:"persona"`
	Greeting string `json:"greeting"`
}

// PlaceCall places a single outbound call.
func (h *CallHandler) PlaceCall(c *gin.Context) {
	var req dialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request data",
			Details: err.Error(),
		})
		return
	}

	sid, err := h.dialer.Dial(c.Request.Context(), req.Phone, req.Persona, req.Greeting)
	if err != nil {
		h.logger.Errorf("dial error: %v", err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "couldn't place call", Details: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, DialResponse{CallSid: sid})
}

type campaignRequest struct {
	Persona  string `json:"persona"`
	Greeting string `json:"greeting"`
}

// RunCampaign dials every undisposed lead, paced by the dialer interval.
// Runs synchronously; campaign batches are small enough that the caller
// waiting beats a job queue.
func (h *CallHandler) RunCampaign(c *gin.Context) {
	var req campaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request data",
			Details: err.Error(),
		})
		return
	}

	placed, err := h.dialer.RunCampaign(c.Request.Context(), req.Persona, req.Greeting)
	if err != nil {
		h.logger.Errorf("campaign error: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "campaign aborted", Details: err.Error()})
		return
	}

	c.JSON(http.StatusOK, CampaignResponse{Placed: placed})
}

// Answer is the webhook the carrier hits when the callee picks up. It
// returns the XML document pointing the carrier at our stream socket,
// echoing the call parameters so the session can recover them.
func (h *CallHandler) Answer(c *gin.Context) {
	params := telephony.AnswerParams{
		Phone:    c.Query("phone"),
		Persona:  c.Query("persona"),
		Greeting: c.Query("greeting"),
	}
	wsURL := "wss://" + h.cfg.Server.PublicHost + "/calls/stream"

	doc, err := telephony.AnswerXML(wsURL, params)
	if err != nil {
		h.logger.Errorf("answer xml: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}
	c.Data(http.StatusOK, "application/xml", doc)
}

// ListCalls returns recent calls with their transcripts.
func (h *CallHandler) ListCalls(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	calls, err := h.store.ListCalls(c.Request.Context(), limit)
	if err != nil {
		h.logger.Errorf("list calls error: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, CallsResponse{Calls: calls})
}

// ListRecordings lists the stereo recordings on disk.
func (h *CallHandler) ListRecordings(c *gin.Context) {
	entries, err := os.ReadDir(h.cfg.Recording.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusOK, RecordingsResponse{Recordings: []string{}})
			return
		}
		h.logger.Errorf("list recordings error: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".wav") {
			names = append(names, e.Name())
		}
	}
	c.JSON(http.StatusOK, RecordingsResponse{Recordings: names})
}

type createLeadRequest struct {
	Phone string `json:"phone" binding:"required"`
	Name  string `json:"name"`
}

func (h *CallHandler) AddLead(c *gin.Context) {
	var req createLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request data",
			Details: err.Error(),
		})
		return
	}

	lead, err := h.store.AddLead(c.Request.Context(), req.Phone, req.Name)
	if err != nil {
		h.logger.Errorf("add lead error: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}

	c.JSON(http.StatusCreated, LeadResponse{Lead: *lead})
}

func (h *CallHandler) ListLeads(c *gin.Context) {
	leads, err := h.store.ListLeads(c.Request.Context())
	if err != nil {
		h.logger.Errorf("list leads error: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, LeadsResponse{Leads: leads})
}

// Only campaign text lives in settings; anything else is config-file territory.
func settingKeyAllowed(key string) bool {
	return key == session.SettingFAQ || key == session.SettingPitch
}

func (h *CallHandler) GetSetting(c *gin.Context) {
	key := c.Param("key")
	if !settingKeyAllowed(key) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown setting"})
		return
	}

	value, err := h.store.GetSetting(c.Request.Context(), key)
	if err != nil {
		h.logger.Errorf("get setting error: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, SettingResponse{Key: key, Value: value})
}

type updateSettingRequest struct {
	Value string `json:"value" binding:"required"`
}

func (h *CallHandler) SetSetting(c *gin.Context) {
	key := c.Param("key")
	if !settingKeyAllowed(key) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown setting"})
		return
	}

	var req updateSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request data",
			Details: err.Error(),
		})
		return
	}

	if err := h.store.SetSetting(c.Request.Context(), key, req.Value); err != nil {
		h.logger.Errorf("set setting error: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, SettingResponse{Key: key, Value: req.Value})
}

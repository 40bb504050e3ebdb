package plugins

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/linht/rx-filter-cal/rxcal"
)

// CalibrationPlugin exposes receive filter calibration over HTTP
type CalibrationPlugin struct {
	device *rxcal.Device
	hub    *EventHub
	busy   atomic.Bool

	reports   []*rxcal.Report
	reportsMu sync.RWMutex
	history   int
}

// NewCalibrationPlugin creates a new calibration plugin instance
func NewCalibrationPlugin(device *rxcal.Device, history int) (*CalibrationPlugin, error) {
	if device == nil {
		return nil, fmt.Errorf("calibration plugin needs a device")
	}
	if history <= 0 {
		history = 32
	}

	p := &CalibrationPlugin{
		device:  device,
		hub:     NewEventHub(),
		history: history,
	}
	device.SetObserver(p.hub.Publish)

	return p, nil
}

// Name returns the plugin identifier
func (p *CalibrationPlugin) Name() string {
	return "rxcal"
}

// RegisterRoutes adds the plugin's HTTP routes
func (p *CalibrationPlugin) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/rxcal")

	// Calibration
	api.Post("/:channel/bandwidth", p.handleCalibrate)
	api.Post("/:channel/path", p.handleSetPath)
	api.Get("/:channel/fields", p.handleFields)

	// History
	api.Get("/reports", p.handleListReports)
	api.Get("/reports/:id", p.handleGetReport)

	// Reference clocks
	api.Get("/references", p.handleGetReferences)
	api.Put("/references", p.handleSetReferences)

	// Seed preview
	api.Get("/seeds", p.handleSeeds)

	// Live progress
	api.Get("/ws", websocket.New(p.handleWebSocket))

	slog.Info("Calibration plugin routes registered")
}

// Shutdown performs cleanup
func (p *CalibrationPlugin) Shutdown() error {
	p.device.SetObserver(nil)
	p.hub.Close()
	return nil
}

func (p *CalibrationPlugin) handleCalibrate(c *fiber.Ctx) error {
	ch, err := rxcal.ParseChannel(c.Params("channel"))
	if err != nil {
		return SendError(c, 400, err)
	}

	var req struct {
		Bandwidth float64 `json:"bandwidth_hz"`
	}
	if err := c.BodyParser(&req); err != nil || req.Bandwidth <= 0 {
		return SendErrorMessage(c, 400, "Invalid bandwidth")
	}

	if !p.busy.CompareAndSwap(false, true) {
		return SendErrorMessage(c, 409, "Calibration already running")
	}
	defer p.busy.Store(false)

	rep, err := p.device.Calibrate(ch, req.Bandwidth)
	p.addReport(rep)

	if err != nil {
		return c.Status(calibrationStatusCode(err)).JSON(APIResponse{
			Success: false,
			Data:    rep,
			Error:   err.Error(),
		})
	}

	return SendSuccess(c, rep, fmt.Sprintf("Channel %s calibrated for %.3f MHz", ch, rep.Bandwidth/1e6))
}

func (p *CalibrationPlugin) handleSetPath(c *fiber.Ctx) error {
	ch, err := rxcal.ParseChannel(c.Params("channel"))
	if err != nil {
		return SendError(c, 400, err)
	}

	var req struct {
		Path *rxcal.Path `json:"path"`
	}
	if err := c.BodyParser(&req); err != nil || req.Path == nil {
		return SendErrorMessage(c, 400, "Path must be 'lpfl', 'lpfh' or 'bypass'")
	}
	path := *req.Path

	if !p.busy.CompareAndSwap(false, true) {
		return SendErrorMessage(c, 409, "Calibration already running")
	}
	defer p.busy.Store(false)

	if err := p.device.SetPath(ch, path); err != nil {
		return SendError(c, 500, err)
	}

	slog.Info("Filter path set", "channel", ch, "path", path)
	return SendSuccess(c, map[string]interface{}{"path": path}, "")
}

func (p *CalibrationPlugin) handleFields(c *fiber.Ctx) error {
	ch, err := rxcal.ParseChannel(c.Params("channel"))
	if err != nil {
		return SendError(c, 400, err)
	}

	fields := make(map[string]int, len(rxcal.CalibratedFields)+1)
	for _, f := range rxcal.CalibratedFields {
		fields[f.Name] = p.device.Field(ch, f)
	}
	fields[rxcal.GTIARFE.Name] = p.device.Field(ch, rxcal.GTIARFE)

	return SendSuccess(c, map[string]interface{}{
		"channel": ch.String(),
		"fields":  fields,
	}, "")
}

func (p *CalibrationPlugin) handleListReports(c *fiber.Ctx) error {
	p.reportsMu.RLock()
	defer p.reportsMu.RUnlock()

	// Newest first
	list := make([]*rxcal.Report, 0, len(p.reports))
	for i := len(p.reports) - 1; i >= 0; i-- {
		list = append(list, p.reports[i])
	}

	return SendSuccess(c, map[string]interface{}{
		"reports": list,
		"count":   len(list),
	}, "")
}

func (p *CalibrationPlugin) handleGetReport(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return SendErrorMessage(c, 400, "Invalid report ID")
	}

	p.reportsMu.RLock()
	defer p.reportsMu.RUnlock()

	for _, rep := range p.reports {
		if rep.ID == id {
			return SendSuccess(c, rep, "")
		}
	}
	return SendErrorMessage(c, 404, "Report not found")
}

func (p *CalibrationPlugin) handleGetReferences(c *fiber.Ctx) error {
	return SendSuccess(c, p.device.References(), "")
}

func (p *CalibrationPlugin) handleSetReferences(c *fiber.Ctx) error {
	var refs rxcal.References
	if err := c.BodyParser(&refs); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}
	if refs.CGEN < 0 || refs.SXR < 0 || refs.SXT < 0 {
		return SendErrorMessage(c, 400, "Reference clocks must not be negative")
	}

	p.device.SetReferences(refs)

	slog.Info("Reference clocks updated",
		"cgen_mhz", refs.CGEN/1e6,
		"sxr_mhz", refs.SXR/1e6,
		"sxt_mhz", refs.SXT/1e6)
	return SendSuccess(c, refs, "Reference clocks updated")
}

func (p *CalibrationPlugin) handleSeeds(c *fiber.Ctx) error {
	requested := c.QueryFloat("bandwidth_hz", 0)
	if requested <= 0 {
		return SendErrorMessage(c, 400, "Invalid bandwidth")
	}
	tier := c.QueryInt("tier", 3)

	bw, path := rxcal.EffectiveBandwidth(requested)
	cfb, ccomp, rcomp, err := rxcal.TIASeed(bw, tier)
	if err != nil {
		return SendError(c, 400, err)
	}

	seeds := map[string]interface{}{
		"bandwidth_hz":  bw,
		"path":          path,
		"cfb_tia_rfe":   cfb,
		"ccomp_tia_rfe": ccomp,
		"rcomp_tia_rfe": rcomp,
	}
	if path == rxcal.PathHighBand {
		capCode, rcc := rxcal.LPFHSeed(bw)
		seeds["c_ctl_lpfh_rbb"] = capCode
		seeds["rcc_ctl_lpfh_rbb"] = rcc
	} else {
		capCode, rcc := rxcal.LPFLSeed(bw)
		seeds["c_ctl_lpfl_rbb"] = capCode
		seeds["rcc_ctl_lpfl_rbb"] = rcc
	}

	return SendSuccess(c, seeds, "")
}

func (p *CalibrationPlugin) addReport(rep *rxcal.Report) {
	if rep == nil {
		return
	}

	p.reportsMu.Lock()
	defer p.reportsMu.Unlock()

	p.reports = append(p.reports, rep)
	if len(p.reports) > p.history {
		p.reports = p.reports[len(p.reports)-p.history:]
	}
}

// calibrationStatusCode maps a session error to an HTTP status. Requests the
// device refused before touching the chip are client errors.
func calibrationStatusCode(err error) int {
	switch {
	case errors.Is(err, rxcal.ErrOutOfRange),
		errors.Is(err, rxcal.ErrInvalidGainTier):
		return 400
	case errors.Is(err, rxcal.ErrReferenceNotInitialized):
		return 409
	}
	return 500
}

// Register the plugin
func init() {
	Register("rxcal", func(env *Environment) (Plugin, error) {
		return NewCalibrationPlugin(env.Device, env.Config.ReportHistory)
	})
}

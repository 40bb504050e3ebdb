package plugins

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gopkg.in/yaml.v3"

	"github.com/linht/rx-filter-cal/rxcal"
)

// HardwarePlugin provides raw LMS7002M register access through the shared
// calibration device, so the shadow registers stay in step with the chip.
type HardwarePlugin struct {
	device  *rxcal.Device
	backend Backend
}

// NewHardwarePlugin creates a new hardware plugin instance
func NewHardwarePlugin(device *rxcal.Device, backend Backend) (*HardwarePlugin, error) {
	if device == nil || backend == nil {
		return nil, fmt.Errorf("hardware plugin needs a device and a backend")
	}

	slog.Info("Hardware plugin initializing", "backend", backend.Info()["backend"])

	return &HardwarePlugin{
		device:  device,
		backend: backend,
	}, nil
}

// Name returns the plugin identifier
func (p *HardwarePlugin) Name() string {
	return "hardware"
}

// RegisterRoutes adds the plugin's HTTP routes
func (p *HardwarePlugin) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/hardware")

	// Device control endpoints
	api.Post("/reset", p.handleReset)
	api.Post("/flush", p.handleFlush)
	api.Get("/status", p.handleStatus)

	// Register access endpoints
	api.Get("/register/:channel/:addr", p.handleReadRegister)
	api.Post("/register/:channel/:addr", p.handleWriteRegister)
	api.Get("/registers/:channel", p.handleReadAllRegisters)
	api.Post("/registers/:channel/burst", p.handleBurstWrite)
	api.Post("/registers/:channel/reset", p.handleResetRange)
	api.Get("/registers/:channel/export", p.handleExportRegisters)

	// Analog front end
	api.Post("/afe/:channel", p.handleEnableAFE)

	slog.Info("Hardware plugin routes registered")
}

// Shutdown performs cleanup
func (p *HardwarePlugin) Shutdown() error {
	// The backend is shared and closed by main
	return nil
}

// Device control handlers

func (p *HardwarePlugin) handleReset(c *fiber.Ctx) error {
	if err := p.backend.Reset(); err != nil {
		slog.Error("Failed to reset hardware", "error", err)
		return SendError(c, 500, err)
	}

	// The chip is back at power-on values, push the shadow state again
	if err := p.device.Flush(); err != nil {
		slog.Error("Failed to restore registers after reset", "error", err)
		return SendError(c, 500, err)
	}

	slog.Info("Hardware reset successful")
	return SendSuccess(c, nil, "Hardware reset successful")
}

func (p *HardwarePlugin) handleFlush(c *fiber.Ctx) error {
	if err := p.device.Flush(); err != nil {
		return SendError(c, 500, err)
	}
	return SendSuccess(c, nil, "Shadow registers written")
}

func (p *HardwarePlugin) handleStatus(c *fiber.Ctx) error {
	info, err := p.device.ReadRegister(rxcal.ChannelA, RegChipInfo)
	if err != nil {
		return SendError(c, 500, err)
	}

	return SendSuccess(c, map[string]interface{}{
		"backend":    p.backend.Info(),
		"chip_info":  fmt.Sprintf("0x%04X", info),
		"version":    info >> 11,
		"revision":   (info >> 6) & 0x1F,
		"references": p.device.References(),
	}, "")
}

// Register access handlers

func (p *HardwarePlugin) handleReadRegister(c *fiber.Ctx) error {
	ch, addr, err := parseRegisterParams(c)
	if err != nil {
		return SendError(c, 400, err)
	}

	value, err := p.device.ReadRegister(ch, addr)
	if err != nil {
		return SendError(c, 500, err)
	}

	return SendSuccess(c, registerEntry(addr, value), "")
}

func (p *HardwarePlugin) handleWriteRegister(c *fiber.Ctx) error {
	ch, addr, err := parseRegisterParams(c)
	if err != nil {
		return SendError(c, 400, err)
	}

	var req struct {
		Value uint16 `json:"value"`
	}
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}

	if err := p.device.WriteRegister(ch, addr, req.Value); err != nil {
		return SendError(c, 500, err)
	}

	slog.Info("Register write", "channel", ch, "address", fmt.Sprintf("0x%04X", addr), "value", fmt.Sprintf("0x%04X", req.Value))
	return SendSuccess(c, nil, "Register written successfully")
}

func (p *HardwarePlugin) handleReadAllRegisters(c *fiber.Ctx) error {
	ch, err := rxcal.ParseChannel(c.Params("channel"))
	if err != nil {
		return SendError(c, 400, err)
	}

	shadow := p.device.Registers(ch)
	diff, err := p.device.Readback(ch)
	if err != nil {
		return SendError(c, 500, err)
	}

	// Format for JSON response
	addrs := slices.Sorted(maps.Keys(shadow))
	regList := make([]map[string]interface{}, 0, len(addrs))
	for _, addr := range addrs {
		entry := registerEntry(addr, shadow[addr])
		entry["in_sync"] = !slices.Contains(diff, addr)
		regList = append(regList, entry)
	}

	return SendSuccess(c, map[string]interface{}{
		"channel":   ch.String(),
		"registers": regList,
		"count":     len(regList),
		"mismatch":  len(diff),
	}, "")
}

func (p *HardwarePlugin) handleBurstWrite(c *fiber.Ctx) error {
	ch, err := rxcal.ParseChannel(c.Params("channel"))
	if err != nil {
		return SendError(c, 400, err)
	}

	var req struct {
		Registers []struct {
			Address uint16 `json:"address"`
			Value   uint16 `json:"value"`
		} `json:"registers"`
	}
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}

	for _, reg := range req.Registers {
		if err := p.device.WriteRegister(ch, reg.Address, reg.Value); err != nil {
			return SendError(c, 500, fmt.Errorf("failed to write register 0x%04X: %w", reg.Address, err))
		}
	}

	slog.Info("Burst write completed", "channel", ch, "count", len(req.Registers))
	return SendSuccess(c, nil, fmt.Sprintf("Wrote %d registers successfully", len(req.Registers)))
}

func (p *HardwarePlugin) handleResetRange(c *fiber.Ctx) error {
	ch, err := rxcal.ParseChannel(c.Params("channel"))
	if err != nil {
		return SendError(c, 400, err)
	}

	var req struct {
		From uint16 `json:"from"`
		To   uint16 `json:"to"`
	}
	if err := c.BodyParser(&req); err != nil || req.To < req.From {
		return SendErrorMessage(c, 400, "Invalid register range")
	}

	if err := p.device.ResetRange(ch, req.From, req.To); err != nil {
		return SendError(c, 500, err)
	}

	slog.Info("Registers reset to defaults", "channel", ch, "from", fmt.Sprintf("0x%04X", req.From), "to", fmt.Sprintf("0x%04X", req.To))
	return SendSuccess(c, nil, "Registers reset to defaults")
}

// handleExportRegisters renders the shadow registers of a channel in the
// register defaults file format
func (p *HardwarePlugin) handleExportRegisters(c *fiber.Ctx) error {
	ch, err := rxcal.ParseChannel(c.Params("channel"))
	if err != nil {
		return SendError(c, 400, err)
	}

	words := make(map[string]string)
	for addr, value := range p.device.Registers(ch) {
		words[fmt.Sprintf("0x%04X", addr)] = fmt.Sprintf("0x%04X", value)
	}

	out, err := yaml.Marshal(words)
	if err != nil {
		return SendError(c, 500, fmt.Errorf("failed to encode registers: %w", err))
	}

	c.Set(fiber.HeaderContentType, "application/yaml")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=\"lms7002m-%s.yaml\"", strings.ToLower(ch.String())))
	return c.Send(out)
}

func (p *HardwarePlugin) handleEnableAFE(c *fiber.Ctx) error {
	ch, err := rxcal.ParseChannel(c.Params("channel"))
	if err != nil {
		return SendError(c, 400, err)
	}

	var req struct {
		Direction string `json:"direction"`
		Enabled   bool   `json:"enabled"`
	}
	if err := c.BodyParser(&req); err != nil {
		return SendErrorMessage(c, 400, "Invalid request body")
	}

	var dir rxcal.Direction
	switch req.Direction {
	case "rx":
		dir = rxcal.RX
	case "tx":
		dir = rxcal.TX
	default:
		return SendErrorMessage(c, 400, "Direction must be 'rx' or 'tx'")
	}

	if err := p.device.EnableAFE(dir, ch, req.Enabled); err != nil {
		return SendError(c, 500, err)
	}

	return SendSuccess(c, map[string]interface{}{
		"direction": dir.String(),
		"enabled":   req.Enabled,
	}, "")
}

func parseRegisterParams(c *fiber.Ctx) (rxcal.Channel, uint16, error) {
	ch, err := rxcal.ParseChannel(c.Params("channel"))
	if err != nil {
		return 0, 0, err
	}

	// Accept 0x-prefixed hex as well as decimal
	addr, err := strconv.ParseUint(c.Params("addr"), 0, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid register address %q", c.Params("addr"))
	}
	return ch, uint16(addr), nil
}

func registerEntry(addr, value uint16) map[string]interface{} {
	desc := RegisterDescriptions[addr]
	if desc == "" {
		desc = "Unknown register"
	}

	return map[string]interface{}{
		"address":     fmt.Sprintf("0x%04X", addr),
		"value":       fmt.Sprintf("0x%04X", value),
		"value_dec":   value,
		"description": desc,
	}
}

// Register the plugin
func init() {
	Register("hardware", func(env *Environment) (Plugin, error) {
		return NewHardwarePlugin(env.Device, env.Backend)
	})
}

package preview

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/go-framegrab/pkg/capture"
)

// ResolutionRequest is the body of the resolution PUT endpoints.
// Zero dimensions clear the setting; each side is capped at
// capture.MaxDimension.
type ResolutionRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r ResolutionRequest) resolution() capture.Resolution {
	return capture.Resolution{Width: r.Width, Height: r.Height}
}

// handleStatus returns the source status.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.Status())
}

// handleFrame returns the latest frame as JPEG.
func (s *Server) handleFrame(c *fiber.Ctx) error {
	frame, ok := s.source.GetFrame()
	return s.sendFrame(c, frame, ok)
}

// handleInferenceFrame returns the latest frame at inference resolution.
func (s *Server) handleInferenceFrame(c *fiber.Ctx) error {
	frame, ok := s.source.GetFrameForInference()
	return s.sendFrame(c, frame, ok)
}

func (s *Server) sendFrame(c *fiber.Ctx, frame capture.Frame, ok bool) error {
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set(fiber.HeaderContentType, "image/jpeg")

	if !ok {
		native := s.source.Stats().NativeResolution
		data, err := encodeJPEG(placeholder(native.Width, native.Height, "NO SIGNAL", time.Now()), s.cfg.Quality)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusServiceUnavailable).Send(data)
	}

	data, err := encodeJPEG(frame.Image(), s.cfg.Quality)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	c.Set("X-Frame-Seq", fmt.Sprint(frame.Seq))
	c.Set("X-Frame-Timestamp", frame.Timestamp.Format(time.RFC3339Nano))
	return c.Send(data)
}

// handleSetCaptureResolution changes the requested camera mode.
func (s *Server) handleSetCaptureResolution(c *fiber.Ctx) error {
	res, err := parseResolution(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	s.source.SetCaptureResolution(res)
	s.logger.Info("capture resolution set via preview", "resolution", res)
	return c.JSON(s.Status())
}

// handleSetInferenceResolution changes the inference resize target.
func (s *Server) handleSetInferenceResolution(c *fiber.Ctx) error {
	res, err := parseResolution(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	s.source.SetInferenceResolution(res)
	s.logger.Info("inference resolution set via preview", "resolution", res)
	return c.JSON(s.Status())
}

func parseResolution(c *fiber.Ctx) (capture.Resolution, error) {
	var req ResolutionRequest
	if err := c.BodyParser(&req); err != nil {
		return capture.Resolution{}, fmt.Errorf("invalid body: %w", err)
	}
	res := req.resolution()
	if err := res.Validate(); err != nil {
		return capture.Resolution{}, err
	}
	return res, nil
}

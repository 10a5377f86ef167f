package config

import (
	"errors"
	"fmt"
)

var validImageFormats = map[string]struct{}{
	"png":  {},
	"jpeg": {},
}

var validCodecs = map[string]struct{}{
	"h264": {},
	"h265": {},
	"vp8":  {},
	"vp9":  {},
}

// ValidCodec reports whether codec names a supported output codec.
func ValidCodec(codec string) bool {
	_, ok := validCodecs[codec]
	return ok
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateEncoding(); err != nil {
		return err
	}
	if err := c.validateFrameCache(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.StagingDir == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateRender() error {
	if c.Render.Concurrency < 1 {
		return errors.New("render.concurrency must be at least 1")
	}
	if c.Render.FrameTimeoutSeconds < 1 {
		return errors.New("render.frame_timeout_seconds must be at least 1")
	}
	if _, ok := validImageFormats[c.Render.ImageFormat]; !ok {
		return fmt.Errorf("render.image_format must be png or jpeg, got %q", c.Render.ImageFormat)
	}
	if c.Render.JPEGQuality < 1 || c.Render.JPEGQuality > 100 {
		return errors.New("render.jpeg_quality must be between 1 and 100")
	}
	return nil
}

func (c *Config) validateEncoding() error {
	if c.Encoding.FFmpegBinary == "" {
		return errors.New("encoding.ffmpeg_binary must be set")
	}
	if _, ok := validCodecs[c.Encoding.Codec]; !ok {
		return fmt.Errorf("encoding.codec must be one of h264, h265, vp8, vp9, got %q", c.Encoding.Codec)
	}
	return nil
}

func (c *Config) validateFrameCache() error {
	if c.FrameCache.BudgetMiB < 1 {
		return errors.New("frame_cache.budget_mib must be at least 1")
	}
	return nil
}

package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeOutput(); err != nil {
		return err
	}
	if err := c.normalizeFFmpeg(); err != nil {
		return err
	}
	c.normalizeWorkers()
	c.normalizeFastCopy()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeOutput() error {
	var err error
	c.Output.Dir = strings.TrimSpace(c.Output.Dir)
	if c.Output.Dir != "" {
		if c.Output.Dir, err = expandPath(c.Output.Dir); err != nil {
			return fmt.Errorf("output.dir: %w", err)
		}
	}
	c.Output.Template = strings.TrimSpace(c.Output.Template)
	if c.Output.Template == "" {
		c.Output.Template = defaultOutputTemplate
	}
	return nil
}

func (c *Config) normalizeFFmpeg() error {
	var err error
	c.FFmpeg.Binary = strings.TrimSpace(c.FFmpeg.Binary)
	if c.FFmpeg.Binary == "" {
		c.FFmpeg.Binary = "ffmpeg"
	}
	c.FFmpeg.FFprobeBinary = strings.TrimSpace(c.FFmpeg.FFprobeBinary)
	if c.FFmpeg.FFprobeBinary == "" {
		c.FFmpeg.FFprobeBinary = "ffprobe"
	}
	c.FFmpeg.NoiseModelPath = strings.TrimSpace(c.FFmpeg.NoiseModelPath)
	if c.FFmpeg.NoiseModelPath != "" {
		if c.FFmpeg.NoiseModelPath, err = expandPath(c.FFmpeg.NoiseModelPath); err != nil {
			return fmt.Errorf("ffmpeg.noise_model_path: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeWorkers() {
	if c.Workers.Count <= 0 {
		c.Workers.Count = defaultWorkerCount()
	}
	if c.Workers.JobTimeoutSeconds < 0 {
		c.Workers.JobTimeoutSeconds = 0
	}
	if c.Workers.MinFreeSpaceMiB < 0 {
		c.Workers.MinFreeSpaceMiB = 0
	}
}

func (c *Config) normalizeFastCopy() {
	if c.FastCopy.BoundarySlackSeconds < 0 {
		c.FastCopy.BoundarySlackSeconds = defaultBoundarySlackSeconds
	}
	if len(c.FastCopy.Policy) == 0 {
		return
	}
	normalized := make(map[string][]string, len(c.FastCopy.Policy))
	for codec, containers := range c.FastCopy.Policy {
		codec = strings.ToLower(strings.TrimSpace(codec))
		if codec == "" {
			continue
		}
		cleaned := make([]string, 0, len(containers))
		for _, container := range containers {
			container = strings.ToLower(strings.TrimSpace(container))
			if container != "" {
				cleaned = append(cleaned, container)
			}
		}
		normalized[codec] = cleaned
	}
	c.FastCopy.Policy = normalized
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

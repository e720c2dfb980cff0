package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateFastCopy(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateOutput() error {
	if strings.TrimSpace(c.Output.Template) == "" {
		return errors.New("output.template must be set")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if c.Workers.Count < 1 {
		return errors.New("workers.count must be at least 1")
	}
	if c.Workers.JobTimeoutSeconds < 0 {
		return errors.New("workers.job_timeout_seconds must be >= 0 (0 disables the timeout)")
	}
	return nil
}

func (c *Config) validateFastCopy() error {
	if c.FastCopy.BoundarySlackSeconds < 0 {
		return errors.New("fastcopy.boundary_slack_seconds must be >= 0")
	}
	for codec, containers := range c.FastCopy.Policy {
		if len(containers) == 0 {
			return fmt.Errorf("fastcopy.policy.%s must list at least one container", codec)
		}
	}
	return nil
}

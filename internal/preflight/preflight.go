package preflight

import (
	"clipforge/internal/config"
	"clipforge/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every applicable check for the given config.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
		detail := status.Command
		if !status.Available {
			detail = status.Detail
		}
		results = append(results, Result{Name: status.Name, Passed: status.Available, Detail: detail})
	}

	results = append(results,
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Output directory", cfg.Output.Dir),
	)

	if cfg.Workers.MinFreeSpaceMiB > 0 {
		results = append(results, CheckFreeSpace("Output free space", cfg.Output.Dir, cfg.Workers.MinFreeSpaceMiB))
	}
	if cfg.FFmpeg.NoiseModelPath != "" {
		results = append(results, CheckFileReadable("Noise model", cfg.FFmpeg.NoiseModelPath))
	}
	return results
}

// Passed reports whether every check succeeded.
func Passed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}

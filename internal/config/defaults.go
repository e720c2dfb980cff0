package config

import "runtime"

const (
	defaultStagingDir           = "~/.local/share/clipforge/staging"
	defaultLogDir               = "~/.local/share/clipforge/logs"
	defaultOutputTemplate       = "{name}-{position}.{format}"
	defaultJobTimeoutSeconds    = 1800
	defaultMinFreeSpaceMiB      = 256
	defaultBoundarySlackSeconds = 0.5
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		Output: Output{
			Template: defaultOutputTemplate,
		},
		FFmpeg: FFmpeg{
			Binary:        "ffmpeg",
			FFprobeBinary: "ffprobe",
		},
		Workers: Workers{
			Count:             defaultWorkerCount(),
			JobTimeoutSeconds: defaultJobTimeoutSeconds,
			MinFreeSpaceMiB:   defaultMinFreeSpaceMiB,
		},
		FastCopy: FastCopy{
			Enabled:              true,
			BoundarySlackSeconds: defaultBoundarySlackSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

func defaultWorkerCount() int {
	if n := runtime.NumCPU(); n > 1 {
		return n
	}
	return 1
}

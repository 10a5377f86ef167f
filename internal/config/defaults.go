package config

const (
	defaultStagingDir          = "~/.local/share/renderforge/staging"
	defaultLogDir              = "~/.local/share/renderforge/logs"
	defaultExtractBind         = "127.0.0.1:7539"
	defaultConcurrency         = 4
	defaultFrameTimeoutSeconds = 30
	defaultImageFormat         = "png"
	defaultJPEGQuality         = 80
	defaultFFmpegBinary        = "ffmpeg"
	defaultCodec               = "h264"
	defaultCacheBudgetMiB      = 512
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir:  defaultStagingDir,
			LogDir:      defaultLogDir,
			ExtractBind: defaultExtractBind,
		},
		Render: Render{
			Concurrency:         defaultConcurrency,
			FrameTimeoutSeconds: defaultFrameTimeoutSeconds,
			ImageFormat:         defaultImageFormat,
			JPEGQuality:         defaultJPEGQuality,
		},
		Encoding: Encoding{
			FFmpegBinary: defaultFFmpegBinary,
			Codec:        defaultCodec,
		},
		FrameCache: FrameCache{
			BudgetMiB: defaultCacheBudgetMiB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

package config

const (
	defaultScratchDir          = "~/.cache/kiln/scratch"
	defaultLogDir              = "~/.local/state/kiln"
	defaultToolDir             = "/usr/lib/kiln/tools"
	defaultSocketPath          = "/run/kiln/helper.sock"
	defaultLockPath            = "/run/kiln/helper.lock"
	defaultDevice              = "/dev/sr0"
	defaultBurnSpeed           = 16
	defaultMediaMiB            = 4482
	defaultPollIntervalMillis  = 500
	defaultConvertParallelism  = 2
	defaultCancelGraceSeconds  = 5
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ScratchDir: defaultScratchDir,
			LogDir:     defaultLogDir,
			ToolDir:    defaultToolDir,
		},
		Helper: Helper{
			SocketPath: defaultSocketPath,
			LockPath:   defaultLockPath,
		},
		Burn: Burn{
			Device:     defaultDevice,
			Speed:      defaultBurnSpeed,
			EjectAfter: true,
			MediaMiB:   defaultMediaMiB,
		},
		Workflow: Workflow{
			PollIntervalMillis: defaultPollIntervalMillis,
			ConvertParallelism: defaultConvertParallelism,
			CancelGraceSeconds: defaultCancelGraceSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

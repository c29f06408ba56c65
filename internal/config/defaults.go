package config

const (
	defaultThreshold        = 2.0
	defaultConfidence       = 0.995
	defaultMaxIterations    = 2000
	defaultRefine           = true
	defaultSeed             = 1
	defaultWorkers          = 1
	defaultDegeneratePolicy = "static"
	defaultFFmpeg           = "ffmpeg"
	defaultFFprobe          = "ffprobe"
	defaultFFplay           = "ffplay"
	defaultCodec            = "XVID"
	defaultFPS              = 30.0
	defaultLineThickness    = 2.0
	defaultPreviewWidth     = 960
	defaultLogLevel         = "warn"
	defaultLogFormat        = "console"
)

package config

const (
	defaultInputPath    = "/kqi/input/images"
	defaultOutputPath   = "/kqi/output/demo"
	defaultLogPath      = "/kqi/output/logs"
	defaultInputType    = "mnist"
	defaultEpochs       = 100
	defaultBatchSize    = 32
	defaultLearningRate = 0.001
	defaultPatience     = 10
	defaultTestFraction = 0.33
	defaultMaxRotateDeg = 20.0
	defaultMaxShiftFrac = 0.1
	defaultLogFormat    = "console"
	defaultLogLevel     = "info"
)

package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dnsoftware/pvx-wallet/internal/constants"
	"github.com/dnsoftware/pvx-wallet/pkg/utils"
)

const LogLevelProduction = "production"
const LogLevelDebug = "debug"

type Logger struct {
	*zap.Logger
}

var (
	instance *Logger
	once     sync.Once
)

func getLogLevel(env string) zapcore.Level {
	if env == LogLevelProduction {
		return zapcore.InfoLevel
	}
	return zapcore.DebugLevel
}

func getFileWriter(filePath string) zapcore.WriteSyncer {
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		panic(err)
	}
	return zapcore.AddSync(file)
}

func InitLogger(env string, filePath string) {
	once.Do(func() {
		instance = &Logger{newZapLogger(env, filePath)}
	})
}

func newZapLogger(env string, filePath string) *zap.Logger {
	logLevel := getLogLevel(env)
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if env == LogLevelProduction {
		encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	}
	encoder := zapcore.NewJSONEncoder(encoderConfig)
	core := zapcore.NewTee(
		zapcore.NewCore(encoder, getFileWriter(filePath), logLevel),
	)

	if env != LogLevelProduction {
		// Добавить вывод в консоль в режиме отладки
		consoleConfig := encoderConfig
		consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder // подсветка уровня в консоли
		consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfig), zapcore.AddSync(os.Stdout), logLevel)
		core = zapcore.NewTee(core, consoleCore)
	}

	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

func Log() *Logger {
	if instance == nil {
		panic("Logger is not initialized. Call InitLogger() before using Log()")
	}
	return instance
}

func GetLoggerMainLogPath() (string, error) {
	dir, err := utils.GetProjectRoot(constants.ProjectRootAnchorFile)
	if err != nil {
		return "", err
	}
	filePath := dir + "/" + constants.AppLogFile

	return filePath, nil
}

func GetLoggerTestLogPath() (string, error) {
	dir, err := utils.GetProjectRoot(constants.ProjectRootAnchorFile)
	if err != nil {
		return "", err
	}
	filePath := dir + "/" + constants.TestLogFile

	return filePath, nil
}

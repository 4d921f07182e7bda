package actorutil

import (
	"log/slog"
	"time"

	"github.com/db-tech/conbee2panel/internal/core/domain"
	"github.com/db-tech/conbee2panel/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

// NewActorSystemWithZapLogger routes protoactor's slog output through the
// zap logger, at the zap logger's level.
func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	writer := zap.NewStdLog(logger).Writer()
	level := slogLevel(logger.Level())

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {
		return slog.New(tint.NewHandler(writer, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
		}))
	}))
}

func slogLevel(level zapcore.Level) slog.Level {
	switch {
	case level <= zapcore.DebugLevel:
		return slog.LevelDebug
	case level == zapcore.InfoLevel:
		return slog.LevelInfo
	case level == zapcore.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ParsedMQTTCommandToCommand maps a switch command to the panel message it
// triggers. Unknown switches yield nil.
func ParsedMQTTCommandToCommand(cmd mqtt.ParsedMQTTCommand) domain.PanelMessage {
	switch cmd.DeviceId {
	case domain.SWITCH_ID_PLUG:
		return domain.PlugSwitchCommand{On: cmd.On()}
	case domain.SWITCH_ID_MONITORING:
		return domain.MonitoringSwitchCommand{Enable: cmd.On()}
	}
	return nil
}

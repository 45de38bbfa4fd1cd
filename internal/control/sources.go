package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/rx380-logger/internal/infrastructure/mqtt"
)

// Logger interface for optional logging support.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

func orNoop(l Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return l
}

// ReadLines reads one command per line from r until EOF or ctx ends.
//
// A blocked read cannot be interrupted; at shutdown the goroutine running
// ReadLines is simply abandoned, which is fine for stdin.
func ReadLines(ctx context.Context, r io.Reader, ch *Channel, logger Logger) error {
	logger = orNoop(logger)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		cmd, err := ParseCommand(line)
		if err != nil {
			logger.Warn("ignoring console input", "input", line, "hint", "q=quit w=pause r=resume")
			continue
		}
		logger.Info("console command", "command", cmd.String())
		if err := ch.Send(ctx, cmd); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading console: %w", err)
	}
	return nil
}

// WatchSignals sends Quit on SIGINT or SIGTERM until ctx ends.
// Further signals after the first are logged and otherwise ignored.
func WatchSignals(ctx context.Context, ch *Channel, logger Logger) {
	watchSignals(ctx, ch, logger, syscall.SIGINT, syscall.SIGTERM)
}

func watchSignals(ctx context.Context, ch *Channel, logger Logger, sigs ...os.Signal) {
	logger = orNoop(logger)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, sigs...)
	defer signal.Stop(sigCh)

	sent := false
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			if sent {
				logger.Warn("already stopping", "signal", sig.String())
				continue
			}
			logger.Info("received shutdown signal", "signal", sig.String())
			if err := ch.Send(ctx, Quit); err != nil {
				return
			}
			sent = true
		}
	}
}

// Subscriber is the part of mqtt.Client the control topic needs.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, qos byte, handler mqtt.MessageHandler) error
}

// mqttSubscribeTimeout bounds the SUBACK wait.
const mqttSubscribeTimeout = 10 * time.Second

// SubscribeMQTT routes payloads on topic into ch. The subscription lives
// as long as the MQTT client and survives reconnects.
func SubscribeMQTT(ctx context.Context, sub Subscriber, topic string, ch *Channel, logger Logger) error {
	logger = orNoop(logger)

	subCtx, cancel := context.WithTimeout(ctx, mqttSubscribeTimeout)
	defer cancel()

	return sub.Subscribe(subCtx, topic, 1, func(_ string, payload []byte) error {
		cmd, err := ParseCommand(string(payload))
		if err != nil {
			return err
		}
		if err := ch.TrySend(cmd); err != nil {
			if errors.Is(err, ErrChannelFull) {
				logger.Warn("dropping mqtt command, scheduler busy", "command", cmd.String())
			}
			return err
		}
		logger.Info("mqtt command", "command", cmd.String())
		return nil
	})
}

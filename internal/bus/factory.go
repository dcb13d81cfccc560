package bus

import (
	"fmt"
	"strings"

	"github.com/ricesearch/senseval/internal/config"
	"github.com/ricesearch/senseval/internal/pkg/errors"
	"github.com/ricesearch/senseval/internal/pkg/logger"
)

// NewBus creates a new Bus instance based on the configuration. When an
// event log path is configured the bus is wrapped so every published event
// is also appended to that file.
func NewBus(cfg config.BusConfig, log *logger.Logger) (Bus, error) {
	if log == nil {
		log = logger.Discard()
	}

	inner, err := newInner(cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.EventLog == "" {
		return inner, nil
	}

	archive, err := OpenEventLog(cfg.EventLog)
	if err != nil {
		inner.Close()
		return nil, err
	}
	return NewArchived(inner, archive, log), nil
}

func newInner(cfg config.BusConfig, log *logger.Logger) (Bus, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "none", "":
		return NopBus{}, nil

	case "memory":
		return NewMemoryBus(log), nil

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, errors.New(errors.CodeValidation, "kafka brokers not configured")
		}

		consumerGroup := cfg.KafkaGroup
		if consumerGroup == "" {
			consumerGroup = "senseval"
		}

		return NewKafkaBus(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: consumerGroup,
			ClientID:      "senseval-bus",
			Logger:        log,
		})

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}
}

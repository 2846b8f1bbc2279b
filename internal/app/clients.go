package app

import (
	"context"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/progressledger/internal/classifier"
	"github.com/yungbote/progressledger/internal/platform/logger"
	"github.com/yungbote/progressledger/internal/realtime/bus"
	"github.com/yungbote/progressledger/internal/temporalx"
)

type Clients struct {
	Bus        bus.Bus
	Classifier classifier.Classifier
	Temporal   temporalsdkclient.Client
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config, needTemporal bool) (Clients, error) {
	var out Clients

	if cfg.Redis.Addr != "" {
		b, err := bus.NewRedisBus(cfg.Redis, log)
		if err != nil {
			// local delivery still works, only cross-process events are lost
			log.Warn("Redis bus unavailable; job events stay in-process", "addr", cfg.Redis.Addr, "error", err)
		} else {
			out.Bus = b
		}
	}

	if cfg.OpenAI.APIKey != "" {
		c, err := classifier.NewOpenAI(cfg.OpenAI, log)
		if err != nil {
			return out, err
		}
		out.Classifier = c
		log.Info("Classifier configured", "provider", "openai", "model", cfg.OpenAI.Model)
	} else {
		out.Classifier = classifier.NewHeuristic()
		log.Info("Classifier configured", "provider", "heuristic")
	}

	if needTemporal {
		tc, err := temporalx.NewClient(ctx, cfg.Temporal, log)
		if err != nil {
			out.close()
			return out, err
		}
		out.Temporal = tc
	}
	return out, nil
}

func (c Clients) close() {
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
}

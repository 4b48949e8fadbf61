package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/marketpulse/marketpulse-x/internal/ingest"
	"github.com/marketpulse/marketpulse-x/internal/intent"
	"github.com/marketpulse/marketpulse-x/internal/rules"
	"github.com/marketpulse/marketpulse-x/internal/storage"
	"github.com/marketpulse/marketpulse-x/internal/venue"
	"github.com/marketpulse/marketpulse-x/pkg/config"
	"github.com/marketpulse/marketpulse-x/pkg/healthprobe"
	"github.com/marketpulse/marketpulse-x/pkg/httpserver"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	store         storage.Store
	source        venue.Source
	stream        *venue.BookStream
	pipeline      *ingest.Pipeline
	engine        *rules.Engine
	intents       *intent.Service
	ctx           context.Context
	cancel        context.CancelFunc
	readyOnce     sync.Once
	wg            sync.WaitGroup
}

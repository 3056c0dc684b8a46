package app

import (
	"time"

	"github.com/finflow/reconciler/internal/app/api/server"
	"github.com/finflow/reconciler/internal/app/service/eventlog"
	"github.com/finflow/reconciler/internal/app/service/reconciler"
	"github.com/finflow/reconciler/internal/app/service/stripehandler"
	"github.com/finflow/reconciler/internal/platform/db"
	"github.com/finflow/reconciler/pkg/config"
	"github.com/finflow/reconciler/pkg/logger"

	"go.uber.org/fx"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	server.Module,
	reconciler.Module,
	eventlog.Module,
	stripehandler.Module,
)

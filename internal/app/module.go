package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fatflowers/teller/internal/app/api/server"
	"github.com/fatflowers/teller/internal/app/service/payment"
	"github.com/fatflowers/teller/internal/app/service/refund"
	"github.com/fatflowers/teller/internal/app/service/subscription"
	"github.com/fatflowers/teller/internal/app/service/sweeper"
	"github.com/fatflowers/teller/internal/app/service/webhook"
	"github.com/fatflowers/teller/internal/platform/db"
	"github.com/fatflowers/teller/internal/platform/stripegw"
	"github.com/fatflowers/teller/pkg/config"
	"github.com/fatflowers/teller/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	stripegw.Module,
	server.Module,
	subscription.Module,
	payment.Module,
	refund.Module,
	webhook.Module,
	sweeper.Module,
)

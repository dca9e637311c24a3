package providers

import (
	"github.com/kormohq/kormo/internal/providers/email"
	"github.com/kormohq/kormo/internal/providers/pdf"
	"github.com/kormohq/kormo/internal/providers/slack"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	slack.Module,
	pdf.Module,
)

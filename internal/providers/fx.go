package providers

import (
	"github.com/smallbiznis/taskhub/internal/providers/email"
	"github.com/smallbiznis/taskhub/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)

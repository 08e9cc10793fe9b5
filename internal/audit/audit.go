// Package audit deja un rastro de los eventos de identidad: logins
// completados y bindings por escaneo de QR. Es un stream de log aparte
// del operacional para poder filtrarlo y retenerlo distinto.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/wxbridge/internal/observability/logger"
)

// Log escribe un evento de auditoría. Los identificadores externos tienen
// que llegar ya enmascarados (util.MaskID); acá no se filtra nada.
func Log(ctx context.Context, event string, fields ...zap.Field) {
	all := make([]zap.Field, 0, len(fields)+2)
	all = append(all, zap.String("audit_event", event), zap.Time("at", time.Now().UTC()))
	all = append(all, fields...)
	logger.From(ctx).Named("audit").Info("audit", all...)
}

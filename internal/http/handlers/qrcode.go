package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	httpx "github.com/dropDatabas3/wxbridge/internal/http"
	"github.com/dropDatabas3/wxbridge/internal/observability/logger"
	"github.com/dropDatabas3/wxbridge/internal/wechat"
)

// QRCodeHandler crea códigos QR temporales de la cuenta pública para el
// flujo de binding por escaneo.
type QRCodeHandler struct {
	coder *wechat.QRCoder
	log   *zap.Logger
}

func NewQRCodeHandler(coder *wechat.QRCoder) *QRCodeHandler {
	return &QRCodeHandler{coder: coder, log: logger.Named("http.qrcode")}
}

// Create crea un QR temporal y devuelve el ticket junto con la URL pública.
// POST /qrcode/mp
func (h *QRCodeHandler) Create(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.coder.CreateSceneQR(r.Context())
	if err != nil {
		h.log.Error("qrcode creation failed", logger.Err(err))
		code := "qrcode_failed"
		if errors.Is(err, wechat.ErrRemoteRejected) {
			code = "remote_rejected"
		}
		httpx.WriteError(w, http.StatusBadGateway, code, "no se pudo crear el QR", 130220)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"ticket":     ticket,
		"qrcode_url": h.coder.QRCodeURL(ticket),
	})
}

package webhook

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/webhook"
)

// Handler terminates the LiveKit webhook endpoint: signature verification,
// then hand-off to the ingestor.
type Handler struct {
	ingestor *Ingestor
	provider auth.KeyProvider
	log      *slog.Logger
}

func NewHandler(ingestor *Ingestor, apiKey, apiSecret string) Handler {
	return Handler{
		ingestor: ingestor,
		provider: auth.NewSimpleKeyProvider(apiKey, apiSecret),
		log:      slog.Default(),
	}
}

func (h Handler) Receive(c *gin.Context) {
	ev, err := webhook.ReceiveWebhookEvent(c.Request, h.provider)
	if err != nil {
		h.log.Warn("webhook rejected", "err", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook signature"})
		return
	}

	if err := h.ingestor.Process(c.Request.Context(), ev); err != nil {
		h.log.Error("webhook processing failed", "event", ev.GetEvent(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "event processing failed"})
		return
	}
	c.Status(http.StatusOK)
}

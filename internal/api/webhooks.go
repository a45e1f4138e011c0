package api

import (
	"io"
	"net/http"

	"github.com/ignite/campaign-engine/internal/events"
	"github.com/ignite/campaign-engine/internal/pkg/httputil"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// maxWebhookBody caps webhook payloads at 10MB; SparkPost batches are
// far smaller in practice.
const maxWebhookBody = 10 << 20

// SparkPostWebhook ingests a provider event batch. The endpoint always
// answers 200 for a well-formed batch, even when individual events fail,
// because the provider treats non-2xx as "redeliver the whole batch".
func (h *Handlers) SparkPostWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httputil.BadRequest(w, "unreadable body")
		return
	}

	evts, err := events.Normalize(body)
	if err != nil {
		logger.Warn("malformed webhook payload", "error", err.Error())
		httputil.BadRequest(w, "malformed payload")
		return
	}

	res, err := h.processor.ProcessBatch(r.Context(), evts)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, res)
}

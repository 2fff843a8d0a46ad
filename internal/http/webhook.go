package http

import (
	"context"
	"io"
	"net/http"

	"github.com/jmehdipour/payment-alerts/internal/classifier"
	"github.com/jmehdipour/payment-alerts/internal/dispatcher"
	"github.com/jmehdipour/payment-alerts/internal/metrics"
	"github.com/jmehdipour/payment-alerts/internal/model"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// EventRecorder persists the raw body of every webhook delivery.
type EventRecorder interface {
	Append(raw []byte) error
}

type AlertDispatcher interface {
	Dispatch(ctx context.Context, decision model.Decision, recipients []string) (dispatcher.Outcome, error)
}

type dispatchResp struct {
	OK      bool                   `json:"ok"`
	Results []model.DeliveryResult `json:"results"`
}

type errorResp struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func webhookHandler(rec EventRecorder, disp AlertDispatcher, recipients []string, maxBody int64, lg *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBody+1))
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResp{Error: "unreadable body"})
		}
		tooLarge := int64(len(body)) > maxBody
		if tooLarge {
			body = body[:maxBody]
		}

		// record before parsing so malformed and oversized deliveries are kept
		// too; an oversized one is kept up to the cap
		if rec != nil {
			if err := rec.Append(body); err != nil {
				lg.Error("event log append failed", zap.Error(err))
			}
		}

		if tooLarge {
			lg.Warn("webhook body over limit", zap.Int64("max_body_bytes", maxBody))
			return c.JSON(http.StatusRequestEntityTooLarge, errorResp{Error: "body too large"})
		}

		decision := classifier.Classify(model.ParseEnvelope(body))
		countEvent(decision)

		if !decision.Alert {
			return noAlert(c, decision)
		}

		// sends run to completion even if the caller hangs up
		ctx := context.WithoutCancel(c.Request().Context())
		out, err := disp.Dispatch(ctx, decision, recipients)
		if err != nil {
			lg.Error("dispatch failed",
				zap.String("event_type", decision.EventType),
				zap.Error(err))
			return c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		}

		switch out.State {
		case dispatcher.StateNoAlert:
			return noAlert(c, decision)
		case dispatcher.StatePartialFailure:
			return c.JSON(http.StatusMultiStatus, dispatchResp{OK: false, Results: out.Report.Results})
		default:
			return c.JSON(http.StatusOK, dispatchResp{OK: true, Results: out.Report.Results})
		}
	}
}

func noAlert(c echo.Context, d model.Decision) error {
	return c.String(http.StatusOK, "No alert triggered. Event: "+d.EventType)
}

func countEvent(d model.Decision) {
	typ := d.EventType
	if !classifier.Handled(typ) {
		typ = "other"
	}
	decision := "ignore"
	if d.Alert {
		decision = "alert"
	}
	metrics.EventsTotal.WithLabelValues(typ, decision).Inc()
}

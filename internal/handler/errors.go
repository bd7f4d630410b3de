package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/shopease/shop-ease-backend/internal/middleware"
	"github.com/shopease/shop-ease-backend/internal/model"
	"github.com/shopease/shop-ease-backend/internal/service"
)

// Client-facing messages for non-business failures.
const (
	MsgSystemBusy       = "system busy, please retry later"
	MsgMalformedBody    = "malformed request body, please send valid JSON"
	MsgUnsupportedMedia = "unsupported content type, please send application/json"
)

// ErrorHandler is the single boundary that turns errors into envelopes.
// Business errors keep their message, validation errors report the first
// failed rule and everything else is logged and answered generically.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body, unexpected := resolve(err)
		if unexpected {
			log.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				zap.Error(err))
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.Warn("error response not written", zap.Error(err))
		}
	}
}

func resolve(err error) (status int, body model.Result, unexpected bool) {
	if msg, ok := service.PublicMessage(err); ok {
		return http.StatusOK, model.Failure(msg), false
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return http.StatusOK, model.Failure(ve.Msg), false
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		switch he.Code {
		case http.StatusBadRequest:
			return http.StatusBadRequest, model.Failure(MsgMalformedBody), false
		case http.StatusUnsupportedMediaType:
			return http.StatusUnsupportedMediaType, model.Failure(MsgUnsupportedMedia), false
		case http.StatusUnauthorized:
			return http.StatusUnauthorized, model.Unauthenticated(middleware.MsgSessionExpired), false
		}
		if he.Code < http.StatusInternalServerError {
			return he.Code, model.Result{Code: he.Code, Msg: http.StatusText(he.Code)}, false
		}
	}
	return http.StatusOK, model.Failure(MsgSystemBusy), true
}

package response

import (
	"errors"
	"net/http"

	"B24Relay/entity"
)

// CodeInternal marks failures that have no typed relay error behind them.
const CodeInternal = "INTERNAL_ERROR"

// Relay maps a relay error to the HTTP status and body of the webhook contract.
func Relay(err error) (int, *entity.RelayResult) {
	var (
		validation *entity.ValidationError
		config     *entity.ConfigurationError
		refresh    *entity.AuthRefreshError
		remote     *entity.RemoteSendError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, &entity.RelayResult{Error: validation.Reason}
	case errors.As(err, &config):
		return http.StatusInternalServerError, &entity.RelayResult{Error: entity.CodeConfig, Missing: config.Missing}
	case errors.As(err, &refresh):
		return http.StatusInternalServerError, &entity.RelayResult{Error: entity.CodeAuthRefresh, Message: refresh.Error()}
	case errors.As(err, &remote):
		return http.StatusBadGateway, &entity.RelayResult{
			Error:   remote.Code,
			Status:  remote.Status,
			Details: remote.Body,
			Message: remote.Error(),
		}
	}
	return http.StatusInternalServerError, &entity.RelayResult{Error: CodeInternal, Message: err.Error()}
}

package healthcheck

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Readiness reports the state of a component the service depends on.
type Readiness interface {
	IsInitialized() bool
	IsReady() bool
}

func New(profileValidator Readiness) *Service {
	return &Service{profileValidator: profileValidator}
}

// Service reports whether the proxy is up, and whether the profile validator is ready to accept referrals.
type Service struct {
	profileValidator Readiness
}

type status struct {
	Status           string          `json:"status"`
	ProfileValidator *componentState `json:"profileValidator,omitempty"`
}

type componentState struct {
	Initialized bool `json:"initialized"`
	Ready       bool `json:"ready"`
}

func (s Service) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealthCheck)
}

func (s Service) handleHealthCheck(writer http.ResponseWriter, request *http.Request) {
	result := status{Status: "up"}
	statusCode := http.StatusOK
	if s.profileValidator != nil {
		result.ProfileValidator = &componentState{
			Initialized: s.profileValidator.IsInitialized(),
			Ready:       s.profileValidator.IsReady(),
		}
		if !result.ProfileValidator.Ready {
			result.Status = "starting"
			statusCode = http.StatusServiceUnavailable
		}
	}
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(statusCode)
	if err := json.NewEncoder(writer).Encode(result); err != nil {
		log.Ctx(request.Context()).Warn().Err(err).Msg("Failed to write health check response")
	}
}

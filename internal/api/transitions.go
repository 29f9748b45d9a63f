package api

import (
	"net/http"
	"time"

	"sector-registry/sectorhub/internal/auth"
	"sector-registry/sectorhub/internal/common"
	"sector-registry/sectorhub/internal/constants"
	"sector-registry/sectorhub/internal/models/dtos"
)

const defaultUpcomingDays = 7

// UpcomingTransitionsHandler handles GET /api/v1/sector-mappings/transitions/upcoming?days=7
func UpcomingTransitionsHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()

		days, err := queryInt(r, "days", defaultUpcomingDays)
		if err != nil {
			common.RespondMappingError(w, initTime, err)
			return
		}

		upcoming, err := deps.Services.Transitions.GetUpcomingTransitions(r.Context(), days)
		if err != nil {
			common.RespondMappingError(w, initTime, err)
			return
		}
		common.RespondSuccess(w, initTime, "Upcoming transitions fetched", upcoming)
	}
}

// RunTransitionsHandler handles POST /api/v1/sector-mappings/transitions/run.
// The body is optional; without a date today's transitions run.
func RunTransitionsHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()

		var req dtos.RunTransitionsRequest
		if err := decodeBody(r, &req, true); err != nil {
			common.RespondMappingError(w, initTime, err)
			return
		}

		asOf := deps.Services.Transitions.Today()
		if req.Date != nil {
			asOf = *req.Date
		}
		actor := auth.GetActor(r.Context())

		var report *dtos.TransitionReport
		var err error
		if deps.Job != nil {
			report, err = deps.Job.RunNow(r.Context(), asOf, actor)
		} else {
			report, err = deps.Services.Transitions.RunTransitions(r.Context(), asOf, constants.TransitionTriggerManual, actor)
		}
		if err != nil {
			respondServiceError(w, initTime, err)
			return
		}
		common.RespondSuccess(w, initTime, "Transitions executed", report)
	}
}

// TriggerTransitionHandler handles POST /api/v1/sector-mappings/transitions/trigger
func TriggerTransitionHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()

		var req dtos.TriggerTransitionRequest
		if err := decodeBody(r, &req, false); err != nil {
			common.RespondMappingError(w, initTime, err)
			return
		}

		report, err := deps.Services.Transitions.TriggerTransition(r.Context(), req.SectorCode, req.EffectiveDate, auth.GetActor(r.Context()))
		if err != nil {
			respondServiceError(w, initTime, err)
			return
		}
		common.RespondSuccess(w, initTime, "Sector transition executed", report)
	}
}

// TransitionStatusHandler handles GET /api/v1/sector-mappings/transitions/status
func TransitionStatusHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()

		if deps.Job != nil {
			status, err := deps.Job.Status(r.Context())
			if err != nil {
				common.RespondMappingError(w, initTime, err)
				return
			}
			common.RespondSuccess(w, initTime, "Transition job status fetched", status)
			return
		}

		last, err := deps.Services.Transitions.LastRun(r.Context(), "")
		if err != nil {
			common.RespondMappingError(w, initTime, err)
			return
		}
		common.RespondSuccess(w, initTime, "Transition job status fetched", &dtos.JobStatus{
			Name:     "sector_transition",
			State:    "disabled",
			Timezone: deps.Services.Transitions.Location().String(),
			LastRun:  last,
		})
	}
}

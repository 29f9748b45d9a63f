package api

import (
	"net/http"
	"time"

	"sector-registry/sectorhub/internal/auth"
	"sector-registry/sectorhub/internal/common"
	"sector-registry/sectorhub/internal/constants"
	"sector-registry/sectorhub/internal/models"
	"sector-registry/sectorhub/internal/models/dtos"

	"github.com/go-chi/chi/v5"
)

const templateContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ListMappingsHandler handles GET /api/v1/sector-mappings
func ListMappingsHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()
		q := r.URL.Query()

		status, err := models.ParseMappingStatus(q.Get("status"))
		if err != nil {
			common.RespondMappingError(w, initTime, err)
			return
		}
		dateRange, err := models.ParseDateRange(q.Get("dateRange"))
		if err != nil {
			common.RespondMappingError(w, initTime, err)
			return
		}
		page, err := queryInt(r, "page", constants.DefaultPage)
		if err != nil {
			common.RespondMappingError(w, initTime, err)
			return
		}
		limit, err := queryInt(r, "limit", constants.DefaultLimit)
		if err != nil {
			common.RespondMappingError(w, initTime, err)
			return
		}

		result, err := deps.Services.Mappings.List(r.Context(), dtos.ListFilter{
			Status:     status,
			DateRange:  dateRange,
			SectorCode: q.Get("sectorCode"),
			CreatedBy:  q.Get("createdBy"),
			Page:       page,
			Limit:      limit,
		})
		if err != nil {
			common.RespondMappingError(w, initTime, err)
			return
		}
		common.RespondSuccess(w, initTime, "Sector mappings fetched", result)
	}
}

// CreateMappingHandler handles POST /api/v1/sector-mappings
func CreateMappingHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()

		var req dtos.CreateMappingRequest
		if err := decodeBody(r, &req, false); err != nil {
			common.RespondMappingError(w, initTime, err)
			return
		}

		mapping, err := deps.Services.Mappings.Create(r.Context(), req, auth.GetActor(r.Context()))
		if err != nil {
			common.RespondMappingError(w, initTime, err)
			return
		}
		common.RespondSuccess(w, initTime, "Sector mapping created", mapping, http.StatusCreated)
	}
}

// UpdateMappingHandler handles PUT /api/v1/sector-mappings/{id}
func UpdateMappingHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()

		var req dtos.UpdateMappingRequest
		if err := decodeBody(r, &req, false); err != nil {
			common.RespondMappingError(w, initTime, err)
			return
		}

		mapping, err := deps.Services.Mappings.Update(r.Context(), chi.URLParam(r, "id"), req, auth.GetActor(r.Context()))
		if err != nil {
			common.RespondMappingError(w, initTime, err)
			return
		}
		common.RespondSuccess(w, initTime, "Sector mapping updated", mapping)
	}
}

// ApproveMappingsHandler handles POST /api/v1/sector-mappings/approve
func ApproveMappingsHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()

		var req dtos.IDsRequest
		if err := decodeBody(r, &req, false); err != nil {
			common.RespondMappingError(w, initTime, err)
			return
		}

		result, err := deps.Services.Mappings.Approve(r.Context(), req.IDs, auth.GetActor(r.Context()))
		if err != nil {
			if result != nil {
				logPartial("approve", result.ApprovedCount, err)
				common.RespondMappingErrorWithData(w, initTime, err, result)
				return
			}
			common.RespondMappingError(w, initTime, err)
			return
		}
		common.RespondSuccess(w, initTime, "Sector mappings approved", result)
	}
}

// DeleteMappingsHandler handles DELETE /api/v1/sector-mappings
func DeleteMappingsHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()

		var req dtos.IDsRequest
		if err := decodeBody(r, &req, false); err != nil {
			common.RespondMappingError(w, initTime, err)
			return
		}

		result, err := deps.Services.Mappings.Delete(r.Context(), req.IDs, auth.GetActor(r.Context()))
		if err != nil {
			if result != nil {
				logPartial("delete", result.DeletedCount, err)
				common.RespondMappingErrorWithData(w, initTime, err, result)
				return
			}
			common.RespondMappingError(w, initTime, err)
			return
		}
		common.RespondSuccess(w, initTime, "Sector mappings deleted", result)
	}
}

// BatchUploadHandler handles POST /api/v1/sector-mappings/batch-upload
func BatchUploadHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()

		var req dtos.BatchImportRequest
		if err := decodeBody(r, &req, false); err != nil {
			common.RespondMappingError(w, initTime, err)
			return
		}

		result, err := deps.Services.Mappings.BatchImport(r.Context(), req.Mappings, auth.GetActor(r.Context()))
		if err != nil {
			common.RespondMappingError(w, initTime, err)
			return
		}
		common.RespondSuccess(w, initTime, "Sector mappings imported", result, http.StatusCreated)
	}
}

// UploadWorkbookHandler handles POST /api/v1/sector-mappings/upload (multipart, field "file")
func UploadWorkbookHandler(deps *Dependencies, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			common.RespondError(w, initTime, nil, constants.MsgInvalidMultipart, http.StatusBadRequest)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			common.RespondError(w, initTime, nil, constants.MsgMissingUploadFile, http.StatusBadRequest)
			return
		}
		defer file.Close()

		var defaultStart *time.Time
		if raw := r.FormValue("defaultStart"); raw != "" {
			day, err := parseDay(raw, loc)
			if err != nil {
				common.RespondMappingError(w, initTime, err)
				return
			}
			defaultStart = &day
		}

		result, err := deps.Services.Mappings.ImportWorkbook(r.Context(), file, defaultStart, auth.GetActor(r.Context()))
		if err != nil {
			common.RespondMappingError(w, initTime, err)
			return
		}
		common.RespondSuccess(w, initTime, "Workbook imported", result, http.StatusCreated)
	}
}

// TemplateHandler handles GET /api/v1/sector-mappings/template
func TemplateHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()

		body, err := deps.Services.Mappings.TemplateWorkbook(r.Context())
		if err != nil {
			common.RespondMappingError(w, initTime, err)
			return
		}

		w.Header().Set("Content-Type", templateContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="sector-mapping-template.xlsx"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

// ActiveMappingsHandler handles GET /api/v1/sector-mappings/active-mappings
func ActiveMappingsHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()

		rows, err := deps.Services.Mappings.ActiveMappingsForTemplate(r.Context())
		if err != nil {
			common.RespondMappingError(w, initTime, err)
			return
		}
		common.RespondSuccess(w, initTime, "Active mappings fetched", rows)
	}
}

// SectorGroupsHandler handles GET /api/v1/sector-mappings/sector-groups
func SectorGroupsHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()

		groups, err := deps.Services.Mappings.ListSectorGroups(r.Context())
		if err != nil {
			common.RespondMappingError(w, initTime, err)
			return
		}
		common.RespondSuccess(w, initTime, "Sector groups fetched", groups)
	}
}

// EconomicSectorsHandler handles GET /api/v1/sector-mappings/economic-sectors
func EconomicSectorsHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()

		sectors, err := deps.Services.Mappings.ListEconomicSectors(r.Context())
		if err != nil {
			common.RespondMappingError(w, initTime, err)
			return
		}
		common.RespondSuccess(w, initTime, "Economic sectors fetched", sectors)
	}
}

// StatsHandler handles GET /api/v1/sector-mappings/stats
func StatsHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()

		stats, err := deps.Services.Mappings.Stats(r.Context())
		if err != nil {
			common.RespondMappingError(w, initTime, err)
			return
		}
		common.RespondSuccess(w, initTime, "Sector mapping stats fetched", stats)
	}
}

// Package api 对外暴露动态表引擎的 HTTP 接口，所有响应使用统一信封
// {success, data?, error?, message?}。
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hatlonely/dyntab/engine"
	"github.com/hatlonely/dyntab/export"
	"github.com/hatlonely/dyntab/log"
	"github.com/hatlonely/dyntab/schema"
	"github.com/hatlonely/dyntab/store"
	"github.com/hatlonely/dyntab/tableconf"
	"github.com/pkg/errors"
)

// Handler 动态表引擎的 HTTP 处理器
type Handler struct {
	engine *engine.Engine
	logger log.Logger
}

func NewHandler(eng *engine.Engine, logger log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{engine: eng, logger: logger}
}

// RegisterRoutes 注册全部路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /tables/{table}", h.listRecords)
	mux.HandleFunc("POST /tables/{table}", h.createRecord)
	mux.HandleFunc("PUT /tables/{table}", h.updateRecord)
	mux.HandleFunc("DELETE /tables/{table}", h.deleteRecord)
	mux.HandleFunc("GET /tables/{table}/export", h.exportRecords)
	mux.HandleFunc("POST /tables/{table}/export", h.exportRecords)

	mux.HandleFunc("GET /table-configs", h.getConfigs)
	mux.HandleFunc("POST /table-configs", h.createConfig)
	mux.HandleFunc("PUT /table-configs", h.updateConfig)
	mux.HandleFunc("DELETE /table-configs", h.deleteConfig)

	mux.HandleFunc("GET /dynamic-tables/{table}", h.tableStats)
	mux.HandleFunc("DELETE /dynamic-tables/{table}", h.dropTable)
	mux.HandleFunc("PATCH /dynamic-tables/{table}", h.patchTable)
}

type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, resp *response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func writeSuccess(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, &response{Success: true, Data: data, Message: message})
}

// writeError 把引擎错误映射成状态码和信封。校验失败携带字段级错误，
// 存储层错误只透出通用消息加底层错误文本。
func writeError(w http.ResponseWriter, err error) {
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, &response{
			Success: false,
			Error:   "validation failed",
			Data:    map[string]any{"errors": verr.Fields},
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrTableNotConfigured),
		errors.Is(err, tableconf.ErrNotFound),
		errors.Is(err, store.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrTableExists):
		status = http.StatusConflict
	case errors.Is(err, store.ErrNoPrimaryKey),
		errors.Is(err, store.ErrNoUpdatableFields):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, &response{Success: false, Error: err.Error()})
}

// 列表接口的保留查询参数，其余参数按字段等值过滤处理
var reservedParams = map[string]bool{
	"limit":     true,
	"offset":    true,
	"sort":      true,
	"sortOrder": true,
	"search":    true,
	"id":        true,
}

func parseQuery(r *http.Request) *engine.Query {
	q := &engine.Query{Filters: map[string]string{}}
	values := r.URL.Query()
	if v := values.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Limit = n
		}
	}
	if v := values.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Offset = n
		}
	}
	q.Sort = values.Get("sort")
	q.SortOrder = values.Get("sortOrder")
	q.Search = values.Get("search")
	for name, vs := range values {
		if reservedParams[name] || len(vs) == 0 {
			continue
		}
		q.Filters[name] = vs[0]
	}
	return q
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")

	// id 参数表示单条查询
	if id := r.URL.Query().Get("id"); id != "" {
		rec, err := h.engine.GetRecord(r.Context(), table, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, rec, "")
		return
	}

	result, err := h.engine.ListRecords(r.Context(), table, parseQuery(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, result, "")
}

func decodePayload(r *http.Request) (map[string]any, error) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "invalid request body")
	}
	return payload, nil
}

func (h *Handler) createRecord(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	payload, err := decodePayload(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &response{Success: false, Error: err.Error()})
		return
	}

	rec, err := h.engine.CreateRecord(r.Context(), table, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, rec, "record created")
}

func (h *Handler) updateRecord(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, &response{Success: false, Error: "id is required"})
		return
	}
	payload, err := decodePayload(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &response{Success: false, Error: err.Error()})
		return
	}

	rec, err := h.engine.UpdateRecord(r.Context(), table, id, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, rec, "record updated")
}

func (h *Handler) deleteRecord(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, &response{Success: false, Error: "id is required"})
		return
	}

	if err := h.engine.DeleteRecord(r.Context(), table, id); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil, "record deleted")
}

// exportQuery POST 导出请求体
type exportQuery struct {
	Limit     int               `json:"limit"`
	Offset    int               `json:"offset"`
	Sort      string            `json:"sort"`
	SortOrder string            `json:"sortOrder"`
	Search    string            `json:"search"`
	Filters   map[string]string `json:"filters"`
}

func (h *Handler) exportRecords(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")

	q := parseQuery(r)
	if r.Method == http.MethodPost {
		var body exportQuery
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, &response{Success: false, Error: "invalid request body"})
			return
		}
		q = &engine.Query{
			Limit:     body.Limit,
			Offset:    body.Offset,
			Sort:      body.Sort,
			SortOrder: body.SortOrder,
			Search:    body.Search,
			Filters:   body.Filters,
		}
	}

	cfg, records, err := h.engine.ExportRecords(r.Context(), table, q)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, table))
	if err := export.WriteXLSX(w, table, cfg, records); err != nil {
		h.logger.Error("failed to write export", "table", table, "error", err)
	}
}

func (h *Handler) getConfigs(w http.ResponseWriter, r *http.Request) {
	if table := r.URL.Query().Get("table"); table != "" {
		cfg, err := h.engine.TableConfig(table)
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, cfg, "")
		return
	}

	doc, err := h.engine.Configs()
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, doc, "")
}

// configRequest 建表/改表请求体
type configRequest struct {
	Name   string              `json:"name"`
	Config *schema.TableConfig `json:"config"`
}

func decodeConfigRequest(r *http.Request) (*configRequest, error) {
	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.Wrap(err, "invalid request body")
	}
	if req.Name == "" || req.Config == nil {
		return nil, errors.New("name and config are required")
	}
	return &req, nil
}

func (h *Handler) createConfig(w http.ResponseWriter, r *http.Request) {
	req, err := decodeConfigRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &response{Success: false, Error: err.Error()})
		return
	}

	if err := h.engine.CreateTable(r.Context(), req.Name, req.Config); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, nil, "table created")
}

func (h *Handler) updateConfig(w http.ResponseWriter, r *http.Request) {
	req, err := decodeConfigRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &response{Success: false, Error: err.Error()})
		return
	}

	if err := h.engine.UpdateTable(r.Context(), req.Name, req.Config); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil, "table updated")
}

func (h *Handler) deleteConfig(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table")
	if table == "" {
		writeJSON(w, http.StatusBadRequest, &response{Success: false, Error: "table is required"})
		return
	}

	if err := h.engine.DropTable(r.Context(), table); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil, "table dropped")
}

func (h *Handler) tableStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.TableStats(r.Context(), r.PathValue("table"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, stats, "")
}

func (h *Handler) dropTable(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DropTable(r.Context(), r.PathValue("table")); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil, "table dropped")
}

// patchTable 目前只支持 {action: "clear"}
func (h *Handler) patchTable(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, &response{Success: false, Error: "invalid request body"})
		return
	}
	if body.Action != "clear" {
		writeJSON(w, http.StatusBadRequest, &response{Success: false, Error: "unsupported action: " + body.Action})
		return
	}

	if err := h.engine.ClearTable(r.Context(), r.PathValue("table")); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil, "table cleared")
}

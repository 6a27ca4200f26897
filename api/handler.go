package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	sheetstore "github.com/danielGPGT/go-sheetstore"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Store is the data access layer the handlers serve.
type Store interface {
	Lister
	Get(ctx context.Context, sheet, idColumn, idValue string) (*sheetstore.Record, error)
	Headers(ctx context.Context, sheet string) ([]string, error)
	Create(ctx context.Context, sheet string, payload sheetstore.Payload) error
	UpdateCell(ctx context.Context, sheet, idColumn, idValue, column string, value interface{}) error
	BulkUpdate(ctx context.Context, sheet, idColumn, idValue string, cells []sheetstore.CellValue) error
	Delete(ctx context.Context, sheet, idColumn, idValue string) error
}

type handler struct {
	store  Store
	params sheetstore.ParamOptions
	log    logrus.FieldLogger
}

type target struct {
	sheet    string
	idColumn string
	idValue  string
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.log, err)
}

// param returns a decoded path parameter. chi matches on the raw path when
// the request carries escapes, so values such as a%40x.com arrive encoded.
func param(r *http.Request, name string) (string, error) {
	v, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil {
		return "", fmt.Errorf("%w: malformed %s in path", sheetstore.ErrBadRequest, name)
	}
	return v, nil
}

// sheet reads the sheet parameter and checks the caller may use it.
func (h *handler) sheet(w http.ResponseWriter, r *http.Request) (string, bool) {
	sheet, err := param(r, "sheet")
	if err != nil {
		h.fail(w, r, err)
		return "", false
	}
	if p, ok := PrincipalFrom(r.Context()); ok && !p.CanAccess(sheet) {
		h.fail(w, r, fmt.Errorf("%w: Your API key does not have permission to access sheet %q", ErrForbidden, sheet))
		return "", false
	}
	return sheet, true
}

func (h *handler) target(w http.ResponseWriter, r *http.Request) (target, bool) {
	sheet, ok := h.sheet(w, r)
	if !ok {
		return target{}, false
	}
	t := target{sheet: sheet}
	var err error
	if t.idColumn, err = param(r, "idColumn"); err != nil {
		h.fail(w, r, err)
		return target{}, false
	}
	if t.idValue, err = param(r, "idValue"); err != nil {
		h.fail(w, r, err)
		return target{}, false
	}
	return t, true
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	sheet, ok := h.sheet(w, r)
	if !ok {
		return
	}
	headers, err := h.store.Headers(r.Context(), sheet)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	query, err := sheetstore.QueryFromParams(r.URL.Query(), h.params, headers)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	records, err := h.store.List(r.Context(), sheet, query)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *handler) columns(w http.ResponseWriter, r *http.Request) {
	sheet, ok := h.sheet(w, r)
	if !ok {
		return
	}
	headers, err := h.store.Headers(r.Context(), sheet)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sheet": sheet, "columns": headers})
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	t, ok := h.target(w, r)
	if !ok {
		return
	}
	record, err := h.store.Get(r.Context(), t.sheet, t.idColumn, t.idValue)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	sheet, ok := h.sheet(w, r)
	if !ok {
		return
	}
	var body interface{}
	if err := decodeBody(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}

	var payload sheetstore.Payload
	switch v := body.(type) {
	case []interface{}:
		payload.Values = v
	case map[string]interface{}:
		payload.Fields = v
	default:
		h.fail(w, r, fmt.Errorf("%w: request body must be an array or an object", sheetstore.ErrBadRequest))
		return
	}

	if err := h.store.Create(r.Context(), sheet, payload); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"message": "Row created", "sheet": sheet})
}

func (h *handler) update(w http.ResponseWriter, r *http.Request) {
	t, ok := h.target(w, r)
	if !ok {
		return
	}
	var body map[string]interface{}
	if err := decodeBody(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	cell, err := cellFromBody(body)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.store.UpdateCell(r.Context(), t.sheet, t.idColumn, t.idValue, cell.Column, cell.Value); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Cell updated",
		"column":  cell.Column,
		"value":   cell.Value,
	})
}

func (h *handler) bulk(w http.ResponseWriter, r *http.Request) {
	t, ok := h.target(w, r)
	if !ok {
		return
	}
	var body []map[string]interface{}
	if err := decodeBody(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	if len(body) == 0 {
		h.fail(w, r, fmt.Errorf("%w: request body must be a non-empty array of {column, value}", sheetstore.ErrBadRequest))
		return
	}
	cells := make([]sheetstore.CellValue, len(body))
	for i, entry := range body {
		cell, err := cellFromBody(entry)
		if err != nil {
			h.fail(w, r, fmt.Errorf("entry %d: %w", i, err))
			return
		}
		cells[i] = cell
	}

	if err := h.store.BulkUpdate(r.Context(), t.sheet, t.idColumn, t.idValue, cells); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Cells updated", "updated": len(cells)})
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	t, ok := h.target(w, r)
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), t.sheet, t.idColumn, t.idValue); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Row deleted"})
}

func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: "NotFoundError", Message: "Route not found"})
}

// decodeBody reads a JSON body keeping numbers as json.Number.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", sheetstore.ErrBadRequest, err)
	}
	return nil
}

func cellFromBody(body map[string]interface{}) (sheetstore.CellValue, error) {
	column, ok := body["column"].(string)
	if !ok || column == "" {
		return sheetstore.CellValue{}, fmt.Errorf("%w: column must be a non-empty string", sheetstore.ErrBadRequest)
	}
	value, ok := body["value"]
	if !ok {
		return sheetstore.CellValue{}, fmt.Errorf("%w: value is required", sheetstore.ErrBadRequest)
	}
	if err := sheetstore.ValidateValue(value); err != nil {
		return sheetstore.CellValue{}, err
	}
	return sheetstore.CellValue{Column: column, Value: value}, nil
}

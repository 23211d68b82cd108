package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atlekbai/crud_registry/internal/query"
	"github.com/atlekbai/crud_registry/internal/service"
)

const (
	// maxConditionBytes bounds request bodies carrying a condition.
	maxConditionBytes = 1 << 20
	maxBodyBytes      = 8 << 20
)

type Handler struct {
	svc *service.CrudService
}

func New(svc *service.CrudService) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the CRUD routes on r under /api/{object}.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/{object}", func(r chi.Router) {
		r.Get("/getOne", h.GetOne)
		r.Post("/getOne", h.GetOne)
		r.Get("/getOne/{id}", h.GetOneByID)
		r.Get("/getMany", h.GetMany)
		r.Post("/getMany", h.GetMany)
		r.Get("/count", h.Count)
		r.Post("/count", h.Count)
		r.Delete("/deleteOne/{id}", h.DeleteOneByID)
		r.Delete("/deleteMany", h.DeleteMany)
		r.Post("/createOne", h.CreateOne)
		r.Post("/createMany", h.CreateMany)
		r.Patch("/updateOne", h.UpdateOne)
		r.Patch("/updateMany", h.UpdateMany)
	})
}

// GetOne handles GET|POST /api/{object}/getOne
func (h *Handler) GetOne(w http.ResponseWriter, r *http.Request) {
	cond, err := readCondition(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := h.svc.GetOne(r.Context(), chi.URLParam(r, "object"), cond)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, rec)
}

// GetOneByID handles GET /api/{object}/getOne/{id}
func (h *Handler) GetOneByID(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.GetOneByID(r.Context(), chi.URLParam(r, "object"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, rec)
}

// GetMany handles GET|POST /api/{object}/getMany?pageNo=&pageSize=&sortBy=&sortDir=
func (h *Handler) GetMany(w http.ResponseWriter, r *http.Request) {
	object := chi.URLParam(r, "object")
	obj, err := h.svc.Object(object)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := query.ParsePageParams(r.URL.Query(), obj)
	if err != nil {
		writeError(w, r, service.AsInvalidInput(err))
		return
	}
	cond, err := readCondition(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.svc.GetMany(r.Context(), object, cond, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, result)
}

// Count handles GET|POST /api/{object}/count
func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	cond, err := readCondition(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := h.svc.Count(r.Context(), chi.URLParam(r, "object"), cond)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, n)
}

// DeleteOneByID handles DELETE /api/{object}/deleteOne/{id}
func (h *Handler) DeleteOneByID(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.DeleteOneByID(r.Context(), chi.URLParam(r, "object"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, rec)
}

// DeleteMany handles DELETE /api/{object}/deleteMany
func (h *Handler) DeleteMany(w http.ResponseWriter, r *http.Request) {
	cond, err := readCondition(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	records, err := h.svc.DeleteMany(r.Context(), chi.URLParam(r, "object"), cond)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, records)
}

// CreateOne handles POST /api/{object}/createOne with a JSON object body.
func (h *Handler) CreateOne(w http.ResponseWriter, r *http.Request) {
	var in service.Values
	if err := readBody(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := h.svc.CreateOne(r.Context(), chi.URLParam(r, "object"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Envelope{Data: rec, IsSuccess: true})
}

// CreateMany handles POST /api/{object}/createMany with a JSON array body.
func (h *Handler) CreateMany(w http.ResponseWriter, r *http.Request) {
	var in []service.Values
	if err := readBody(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	records, err := h.svc.CreateMany(r.Context(), chi.URLParam(r, "object"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Envelope{Data: records, IsSuccess: true})
}

// UpdateOne handles PATCH /api/{object}/updateOne with a JSON object body
// carrying the id.
func (h *Handler) UpdateOne(w http.ResponseWriter, r *http.Request) {
	var in service.Values
	if err := readBody(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := h.svc.UpdateOne(r.Context(), chi.URLParam(r, "object"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, rec)
}

// UpdateMany handles PATCH /api/{object}/updateMany with a JSON array body.
func (h *Handler) UpdateMany(w http.ResponseWriter, r *http.Request) {
	var in []service.Values
	if err := readBody(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	records, err := h.svc.UpdateMany(r.Context(), chi.URLParam(r, "object"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, records)
}

// readBody decodes a JSON body into v, keeping numbers as json.Number.
func readBody(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return service.AsInvalidInput(errors.New("request body is required"))
	}
	dec := bodyJSON.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return service.AsInvalidInput(errors.New("request body is required"))
		}
		return service.AsInvalidInput(fmt.Errorf("invalid JSON body: %w", err))
	}
	return nil
}

// readCondition returns the request body, or the ?condition= parameter when
// the body is empty.
func readCondition(w http.ResponseWriter, r *http.Request) (string, error) {
	if r.Body != nil {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxConditionBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return "", service.AsInvalidInput(err)
			}
			return "", err
		}
		if len(body) > 0 {
			return string(body), nil
		}
	}
	return r.URL.Query().Get("condition"), nil
}

// Package api exposes the HTTP surface: identification, enrichment, the
// assistant proxy, accounts, and the saved-plant collection.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pozuelo/bioscan/internal/assistant"
	"github.com/pozuelo/bioscan/internal/enrich"
	"github.com/pozuelo/bioscan/internal/plantnet"
	"github.com/pozuelo/bioscan/internal/store"
)

// maxImageSize caps uploaded images at 10 MB; the limit is enforced here,
// not in the classification adapter.
const maxImageSize = 10 << 20

// Identifier turns an uploaded image into an identification record.
type Identifier interface {
	Identify(ctx context.Context, image io.Reader, filename, mimeType string) (*plantnet.Identification, error)
}

// Enricher returns the merged knowledge record for a scientific name.
type Enricher interface {
	Enrich(ctx context.Context, scientificName string) *enrich.Enrichment
}

// Assistant answers free-text questions, optionally scoped to a species.
type Assistant interface {
	Ask(ctx context.Context, question, contextSpecies string) (string, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	identifier Identifier
	enricher   Enricher
	assistant  Assistant
	store      *store.Store
	validate   *validator.Validate
	logger     *zap.Logger
}

// NewHandler creates a new API handler. store may be nil when the database
// is unavailable; collection routes then answer 503.
func NewHandler(identifier Identifier, enricher Enricher, asst Assistant, st *store.Store, logger *zap.Logger) *Handler {
	return &Handler{
		identifier: identifier,
		enricher:   enricher,
		assistant:  asst,
		store:      st,
		validate:   validator.New(),
		logger:     logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Post("/identify", h.identify)
		r.Get("/plant-info/{scientificName}", h.plantInfo)
		r.Post("/chatbot", h.chatbot)

		r.Post("/register", h.register)
		r.Post("/login", h.login)

		r.Post("/save-plant", h.savePlant)
		r.Get("/plants/{userID}", h.listPlants)
		r.Put("/plants/{plantID}", h.updatePlant)
		r.Delete("/plants/{plantID}", h.deletePlant)

		r.Post("/albums", h.createAlbum)
		r.Get("/albums/{userID}", h.listAlbums)
		r.Put("/albums/{albumID}", h.updateAlbum)
		r.Delete("/albums/{albumID}", h.deleteAlbum)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "bioscan"})
}

func (h *Handler) identify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageSize)
	if err := r.ParseMultipartForm(maxImageSize); err != nil {
		writeError(w, http.StatusBadRequest, "Error al procesar el archivo")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No se proporcionó ninguna imagen")
		return
	}
	defer file.Close()
	if header.Size == 0 {
		writeError(w, http.StatusBadRequest, "No se proporcionó ninguna imagen")
		return
	}

	id, err := h.identifier.Identify(r.Context(), file, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		if errors.Is(err, plantnet.ErrNoMatch) {
			writeError(w, http.StatusNotFound, "No se encontraron coincidencias")
			return
		}
		h.logger.Error("identification failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Error en la identificación")
		return
	}
	writeJSON(w, http.StatusOK, id)
}

// plantInfo never hard-fails: a degraded enrichment still renders alongside
// the classification, just with fewer details.
func (h *Handler) plantInfo(w http.ResponseWriter, r *http.Request) {
	scientificName := chi.URLParam(r, "scientificName")
	writeJSON(w, http.StatusOK, h.enricher.Enrich(r.Context(), scientificName))
}

type chatbotRequest struct {
	Question       string `json:"question" validate:"required"`
	ScientificName string `json:"scientificName"`
}

func (h *Handler) chatbot(w http.ResponseWriter, r *http.Request) {
	var req chatbotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Cuerpo de la solicitud no válido")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Es necesario proporcionar una pregunta")
		return
	}

	answer, err := h.assistant.Ask(r.Context(), req.Question, req.ScientificName)
	if err != nil {
		if errors.Is(err, assistant.ErrEmptyQuestion) {
			writeError(w, http.StatusBadRequest, "Es necesario proporcionar una pregunta")
			return
		}
		h.logger.Error("assistant call failed", zap.Error(err))
		// Raw upstream detail stays in the logs.
		writeError(w, http.StatusBadGateway,
			"Lo siento, no he podido procesar tu consulta en este momento")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Email y contraseña requeridos")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Email y contraseña requeridos")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("password hash failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error en el registro")
		return
	}
	if _, err := h.store.CreateUser(r.Context(), req.Email, string(hash)); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			writeError(w, http.StatusBadRequest, "El usuario ya existe")
			return
		}
		h.logger.Error("create user failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error en el registro")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Usuario registrado correctamente"})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Email y contraseña requeridos")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Email y contraseña requeridos")
		return
	}

	u, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Same answer for unknown email and wrong password.
			writeError(w, http.StatusUnauthorized, "Credenciales incorrectas")
			return
		}
		h.logger.Error("login lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error en el inicio de sesión")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Credenciales incorrectas")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Inicio de sesión exitoso",
		"user":    map[string]string{"email": u.Email, "id": u.ID},
	})
}

type savePlantRequest struct {
	UserID          string   `json:"userId" validate:"required"`
	AlbumID         *string  `json:"albumId"`
	Species         string   `json:"species" validate:"required"`
	Family          string   `json:"family"`
	Genus           string   `json:"genus"`
	Confidence      int      `json:"confidence"`
	CommonNames     []string `json:"commonNames"`
	Description     string   `json:"description"`
	Distribution    string   `json:"distribution"`
	Image           string   `json:"image"`
	ScannedImage    string   `json:"scannedImage"`
	WikiURL         string   `json:"wikiUrl"`
	Notes           string   `json:"notes"`
	Location        string   `json:"location"`
	Tags            []string `json:"tags"`
	SortOrder       int      `json:"sortOrder"`
	AllowDuplicates bool     `json:"allowDuplicates"`
}

func (h *Handler) savePlant(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	var req savePlantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Cuerpo de la solicitud no válido")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Se requiere ID de usuario y especie de la planta")
		return
	}

	exists, err := h.store.UserExists(r.Context(), req.UserID)
	if err != nil {
		h.logger.Error("user lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error al guardar la planta")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "Usuario no encontrado")
		return
	}

	plant := &store.Plant{
		UserID:       req.UserID,
		AlbumID:      req.AlbumID,
		Species:      req.Species,
		Family:       req.Family,
		Genus:        req.Genus,
		Confidence:   req.Confidence,
		CommonNames:  req.CommonNames,
		Description:  req.Description,
		Distribution: req.Distribution,
		Image:        req.Image,
		ScannedImage: req.ScannedImage,
		WikiURL:      req.WikiURL,
		Notes:        req.Notes,
		Location:     req.Location,
		Tags:         req.Tags,
		SortOrder:    req.SortOrder,
	}
	saved, duplicate, err := h.store.SavePlant(r.Context(), plant, req.AllowDuplicates)
	if err != nil {
		h.logger.Error("save plant failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error al guardar la planta")
		return
	}
	if duplicate {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message":     "Esta planta ya está en tu colección",
			"plant":       saved,
			"isDuplicate": true,
		})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Planta guardada correctamente",
		"plant":   saved,
	})
}

func (h *Handler) listPlants(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	userID := chi.URLParam(r, "userID")
	q := r.URL.Query()
	plants, err := h.store.ListPlants(r.Context(), userID,
		q.Get("albumId"), q.Get("sortBy"), q.Get("sortOrder"))
	if err != nil {
		h.logger.Error("list plants failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error al obtener plantas guardadas")
		return
	}
	writeJSON(w, http.StatusOK, plants)
}

func (h *Handler) updatePlant(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	var upd store.PlantUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "Cuerpo de la solicitud no válido")
		return
	}
	plant, err := h.store.UpdatePlant(r.Context(), chi.URLParam(r, "plantID"), upd)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Planta no encontrada")
			return
		}
		h.logger.Error("update plant failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error al actualizar la planta")
		return
	}
	writeJSON(w, http.StatusOK, plant)
}

func (h *Handler) deletePlant(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	if err := h.store.DeletePlant(r.Context(), chi.URLParam(r, "plantID")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Planta no encontrada")
			return
		}
		h.logger.Error("delete plant failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error al eliminar la planta")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Planta eliminada correctamente"})
}

type createAlbumRequest struct {
	UserID      string `json:"userId" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

func (h *Handler) createAlbum(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	var req createAlbumRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Cuerpo de la solicitud no válido")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "ID de usuario y nombre requeridos")
		return
	}

	album := &store.Album{
		UserID:      req.UserID,
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
	}
	if err := h.store.CreateAlbum(r.Context(), album); err != nil {
		h.logger.Error("create album failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error al crear el álbum")
		return
	}
	writeJSON(w, http.StatusCreated, album)
}

func (h *Handler) listAlbums(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	albums, err := h.store.ListAlbums(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.logger.Error("list albums failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error al obtener álbumes")
		return
	}
	writeJSON(w, http.StatusOK, albums)
}

func (h *Handler) updateAlbum(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	var upd store.AlbumUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "Cuerpo de la solicitud no válido")
		return
	}
	album, err := h.store.UpdateAlbum(r.Context(), chi.URLParam(r, "albumID"), upd)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Álbum no encontrado")
			return
		}
		h.logger.Error("update album failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error al actualizar el álbum")
		return
	}
	writeJSON(w, http.StatusOK, album)
}

func (h *Handler) deleteAlbum(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w) {
		return
	}
	if err := h.store.DeleteAlbum(r.Context(), chi.URLParam(r, "albumID")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Álbum no encontrado")
			return
		}
		h.logger.Error("delete album failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error al eliminar el álbum")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Álbum eliminado correctamente"})
}

func (h *Handler) requireStore(w http.ResponseWriter) bool {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "Almacenamiento no disponible")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Package api exposes HTTP handlers for the coaching bridge.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/coachsync/internal/auth"
	"example.com/coachsync/internal/domain"
	"example.com/coachsync/internal/garmin"
	"example.com/coachsync/internal/persistence"
)

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	credentials *domain.CredentialService
	catalog     *domain.CatalogService
	shares      *domain.ShareService
	importer    *domain.Importer
}

// NewHandler builds a Handler.
func NewHandler(credentials *domain.CredentialService, catalog *domain.CatalogService, shares *domain.ShareService, importer *domain.Importer) *Handler {
	return &Handler{
		credentials: credentials,
		catalog:     catalog,
		shares:      shares,
		importer:    importer,
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/garmin/connect", h.garminConnect)
	mux.HandleFunc("/v1/garmin/status", h.garminStatus)
	mux.HandleFunc("/v1/garmin/test", h.garminTest)
	mux.HandleFunc("/v1/garmin/disconnect", h.garminDisconnect)
	mux.HandleFunc("/v1/coach/workouts", h.coachWorkouts)
	mux.HandleFunc("/v1/coach/share", h.coachShare)
	mux.HandleFunc("/v1/athlete/workouts", h.athleteWorkouts)
	mux.HandleFunc("/v1/athlete/workouts/", h.athleteWorkoutByID)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) garminConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeGarminManage)
	if !ok {
		return
	}

	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	status, err := h.credentials.Connect(r.Context(), claims.Subject, req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toConnectionView(status))
}

func (h *Handler) garminStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeGarminManage)
	if !ok {
		return
	}

	status, err := h.credentials.Status(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no Garmin credentials on file")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, CredentialStatusView{
		Connected:   status.Connected,
		GarminEmail: status.GarminEmail,
		LastSync:    status.LastSync,
		Error:       status.Error,
	})
}

func (h *Handler) garminTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeGarminManage)
	if !ok {
		return
	}

	status, err := h.credentials.Test(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no Garmin credentials on file")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toConnectionView(status))
}

func (h *Handler) garminDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeGarminManage)
	if !ok {
		return
	}

	if err := h.credentials.Disconnect(r.Context(), claims.Subject); err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no Garmin credentials on file")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) coachWorkouts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireRole(w, r, auth.RoleCoach)
	if !ok {
		return
	}
	if !claims.HasScope(auth.ScopeWorkoutsRead) && !claims.HasScope(auth.ScopeWorkoutsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope workouts:read required")
		return
	}

	var filter *domain.WorkoutType
	if raw := r.URL.Query().Get("type"); raw != "" {
		parsed, valid := domain.ParseWorkoutType(raw)
		if !valid {
			writeError(w, http.StatusBadRequest, "validation_failed", "unknown workout type: "+raw)
			return
		}
		filter = &parsed
	}

	workouts, err := h.catalog.RefreshWorkouts(r.Context(), claims.Subject, filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]WorkoutView, 0, len(workouts))
	for _, workout := range workouts {
		items = append(items, toWorkoutView(workout))
	}
	writeJSON(w, http.StatusOK, ListWorkoutsResponse{Items: items})
}

func (h *Handler) coachShare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireRole(w, r, auth.RoleCoach)
	if !ok {
		return
	}
	if !claims.HasScope(auth.ScopeWorkoutsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope workouts:write required")
		return
	}

	var req ShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	outcome, err := h.shares.ShareWorkouts(r.Context(), claims.Subject, req.AthleteID, req.WorkoutIDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ShareResponse{
		SharedCount: outcome.SharedCount,
		Errors:      outcome.Errors,
	})
}

func (h *Handler) athleteWorkouts(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireRole(w, r, auth.RoleAthlete)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.listSharedWorkouts(w, r, claims)
	case http.MethodPost:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use /v1/athlete/workouts/import")
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) athleteWorkoutByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/athlete/workouts/")
	if rest == "import" {
		h.importWorkouts(w, r)
		return
	}

	claims, ok := requireRole(w, r, auth.RoleAthlete)
	if !ok {
		return
	}

	if rest == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing shared workout id")
		return
	}

	switch r.Method {
	case http.MethodDelete:
		h.removeSharedWorkout(w, r, claims, rest)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) listSharedWorkouts(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	if !claims.HasScope(auth.ScopeWorkoutsRead) && !claims.HasScope(auth.ScopeWorkoutsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope workouts:read required")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	listings, next, err := h.shares.ListShares(r.Context(), claims.Subject, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]SharedWorkoutView, 0, len(listings))
	for _, listing := range listings {
		items = append(items, toSharedWorkoutView(listing))
	}
	writeJSON(w, http.StatusOK, ListSharedWorkoutsResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) importWorkouts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireRole(w, r, auth.RoleAthlete)
	if !ok {
		return
	}
	if !claims.HasScope(auth.ScopeWorkoutsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope workouts:write required")
		return
	}

	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	results, err := h.importer.ImportWorkouts(r.Context(), claims.Subject, req.SharedWorkoutIDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]ImportResultView, 0, len(results))
	for _, result := range results {
		items = append(items, ImportResultView{
			SharedWorkoutID: result.SharedWorkoutID,
			Status:          string(result.Code),
			Message:         result.Message,
			GarminImportID:  result.GarminImportID,
		})
	}
	writeJSON(w, http.StatusOK, ImportResponse{Results: items})
}

func (h *Handler) removeSharedWorkout(w http.ResponseWriter, r *http.Request, claims *auth.Claims, shareID string) {
	if !claims.HasScope(auth.ScopeWorkoutsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope workouts:write required")
		return
	}

	if err := h.shares.RemoveShare(r.Context(), claims.Subject, shareID); err != nil {
		if errors.Is(err, domain.ErrShareNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "shared workout not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}

func requireRole(w http.ResponseWriter, r *http.Request, role string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if claims.Role != role {
		writeError(w, http.StatusForbidden, "forbidden", "role "+role+" required")
		return nil, false
	}
	return claims, true
}

// writeDomainError maps domain sentinels and adapter faults onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotConnected) {
		writeError(w, http.StatusConflict, "garmin_not_connected", "Garmin account not connected. Connect your account first.")
		return
	}

	var fault *garmin.Fault
	if errors.As(err, &fault) {
		writeError(w, http.StatusBadGateway, string(fault.Kind), fault.Reason)
		return
	}

	writeError(w, http.StatusInternalServerError, "server_error", err.Error())
}

// ConnectRequest is the payload for POST /v1/garmin/connect.
type ConnectRequest struct {
	Email    string `json:"garmin_email"`
	Password string `json:"garmin_password"`
}

// Validate ensures request correctness.
func (r ConnectRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return errors.New("garmin_email is required")
	}
	if r.Password == "" {
		return errors.New("garmin_password is required")
	}
	return nil
}

// ShareRequest is the payload for POST /v1/coach/share.
type ShareRequest struct {
	AthleteID  string   `json:"athlete_id"`
	WorkoutIDs []string `json:"workout_ids"`
}

// Validate ensures request correctness.
func (r ShareRequest) Validate() error {
	if strings.TrimSpace(r.AthleteID) == "" {
		return errors.New("athlete_id is required")
	}
	if len(r.WorkoutIDs) == 0 {
		return errors.New("workout_ids must not be empty")
	}
	return nil
}

// ImportRequest is the payload for POST /v1/athlete/workouts/import.
type ImportRequest struct {
	SharedWorkoutIDs []string `json:"shared_workout_ids"`
}

// Validate ensures request correctness.
func (r ImportRequest) Validate() error {
	if len(r.SharedWorkoutIDs) == 0 {
		return errors.New("shared_workout_ids must not be empty")
	}
	return nil
}

// ConnectionView reports the outcome of a credential probe.
type ConnectionView struct {
	Connected   bool   `json:"connected"`
	ProfileName string `json:"profile_name,omitempty"`
	Message     string `json:"message"`
	ErrorKind   string `json:"error_kind,omitempty"`
}

// CredentialStatusView describes the stored credential record.
type CredentialStatusView struct {
	Connected   bool       `json:"connected"`
	GarminEmail string     `json:"garmin_email,omitempty"`
	LastSync    *time.Time `json:"last_sync,omitempty"`
	Error       *string    `json:"error,omitempty"`
}

// WorkoutView exposes a cached workout.
type WorkoutView struct {
	WorkoutID       string    `json:"workout_id"`
	GarminWorkoutID string    `json:"garmin_workout_id"`
	Name            string    `json:"name"`
	Type            string    `json:"type"`
	Description     string    `json:"description,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ListWorkoutsResponse packages the coach catalog.
type ListWorkoutsResponse struct {
	Items []WorkoutView `json:"items"`
}

// ShareResponse reports a share batch.
type ShareResponse struct {
	SharedCount int      `json:"shared_count"`
	Errors      []string `json:"errors,omitempty"`
}

// SharedWorkoutView exposes one share from the athlete's perspective.
type SharedWorkoutView struct {
	SharedWorkoutID string     `json:"shared_workout_id"`
	WorkoutID       string     `json:"workout_id"`
	WorkoutName     string     `json:"workout_name"`
	WorkoutType     string     `json:"workout_type"`
	Description     string     `json:"description,omitempty"`
	Status          string     `json:"status"`
	ImportError     *string    `json:"import_error,omitempty"`
	GarminImportID  *string    `json:"garmin_import_id,omitempty"`
	SharedAt        time.Time  `json:"shared_at"`
	ImportedAt      *time.Time `json:"imported_at,omitempty"`
}

// ListSharedWorkoutsResponse packages list results.
type ListSharedWorkoutsResponse struct {
	Items      []SharedWorkoutView `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

// ImportResultView reports one shared workout's import attempt.
type ImportResultView struct {
	SharedWorkoutID string `json:"shared_workout_id"`
	Status          string `json:"status"`
	Message         string `json:"message"`
	GarminImportID  string `json:"garmin_import_id,omitempty"`
}

// ImportResponse packages import results.
type ImportResponse struct {
	Results []ImportResultView `json:"results"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toConnectionView(status domain.ConnectionStatus) ConnectionView {
	return ConnectionView{
		Connected:   status.Connected,
		ProfileName: status.ProfileName,
		Message:     status.Message,
		ErrorKind:   string(status.Kind),
	}
}

func toWorkoutView(workout domain.Workout) WorkoutView {
	return WorkoutView{
		WorkoutID:       workout.ID,
		GarminWorkoutID: workout.GarminWorkoutID,
		Name:            workout.Name,
		Type:            string(workout.Type),
		Description:     workout.Description,
		CreatedAt:       workout.CreatedAt,
		UpdatedAt:       workout.UpdatedAt,
	}
}

func toSharedWorkoutView(listing domain.ShareListing) SharedWorkoutView {
	return SharedWorkoutView{
		SharedWorkoutID: listing.Share.ID,
		WorkoutID:       listing.Share.WorkoutID,
		WorkoutName:     listing.WorkoutName,
		WorkoutType:     string(listing.WorkoutType),
		Description:     listing.Description,
		Status:          string(listing.Share.State),
		ImportError:     listing.Share.ImportError,
		GarminImportID:  listing.Share.GarminImportID,
		SharedAt:        listing.Share.SharedAt,
		ImportedAt:      listing.Share.ImportedAt,
	}
}

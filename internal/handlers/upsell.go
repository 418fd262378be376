package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/topup/upsell/internal/catalog"
	"github.com/topup/upsell/internal/config"
	"github.com/topup/upsell/internal/models"
	"github.com/topup/upsell/internal/services"
	"github.com/topup/upsell/internal/timer"
)

// UpsellDependencies holds what the upsell pages need
type UpsellDependencies struct {
	Variants *catalog.Set
	Repo     services.SessionRepository
	Client   services.CheckoutClient
	Checkout *config.CheckoutConfig
	Logger   *zap.Logger
	// BasePath is where the handler is mounted, used to build redirects
	BasePath string
	// Ticker overrides the countdown ticker, mainly for tests
	Ticker timer.TickerFactory
}

// UpsellHandler serves the upsell pages
type UpsellHandler struct {
	page     *template.Template
	redirect *template.Template
	deps     UpsellDependencies
	// inflight guards against concurrent payments for one browser session
	inflight sync.Map
}

// NewUpsellHandler parses the page templates from templatesDir
func NewUpsellHandler(templatesDir string, deps UpsellDependencies) (*UpsellHandler, error) {
	page, err := template.ParseFiles(filepath.Join(templatesDir, "upsell.html"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	redirect, err := template.ParseFiles(filepath.Join(templatesDir, "redirect.html"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.BasePath == "" {
		deps.BasePath = "/upsell"
	}
	if deps.Checkout == nil {
		deps.Checkout = &config.CheckoutConfig{PaymentRoute: "/buy", DeclineRoute: "/"}
	}

	return &UpsellHandler{
		page:     page,
		redirect: redirect,
		deps:     deps,
	}, nil
}

// Routes returns the upsell routes, relative to the mount point
func (h *UpsellHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{slug}", h.Page)
	r.Post("/{slug}/toggle", h.Toggle)
	r.Post("/{slug}/pay", h.Pay)
	r.Get("/{slug}/countdown", h.Countdown)
	return r
}

// ItemView is one offer row on the page
type ItemView struct {
	ID       string
	Name     string
	Price    string
	Image    string
	Selected bool
}

// CountdownView is the countdown block on the page
type CountdownView struct {
	Clock     string
	Remaining int
	Urgent    bool
	Label     string
	Urgency   string
	StreamURL string
}

// UpsellPage represents the data for the upsell template
type UpsellPage struct {
	Slug         string
	Heading      string
	Subtext      string
	BuyerName    string
	Items        []ItemView
	Selected     []string
	Toggleable   bool
	Total        string
	AcceptLabel  string
	DeclineLabel string
	DeclineRoute string
	ToggleURL    string
	PayURL       string
	Countdown    *CountdownView
	Advisory     string
}

// RedirectPage represents the data for the redirect template
type RedirectPage struct {
	Message       string
	Target        string
	DelaySeconds  string
	TransactionID string
}

func (h *UpsellHandler) variant(w http.ResponseWriter, r *http.Request) (*catalog.Variant, bool) {
	v, err := h.deps.Variants.Get(chi.URLParam(r, "slug"))
	if err != nil {
		http.NotFound(w, r)
		return nil, false
	}
	return v, true
}

func (h *UpsellHandler) storage(r *http.Request) (services.Storage, error) {
	sessionID := SessionID(r.Context())
	if sessionID == "" {
		return nil, errors.New("request has no browser session")
	}
	return services.NewScopedStorage(h.deps.Repo, sessionID), nil
}

func (h *UpsellHandler) newFlow(v *catalog.Variant, storage services.Storage, deps services.FlowDependencies) *services.UpsellFlow {
	deps.Storage = storage
	deps.Client = h.deps.Client
	deps.Logger = h.deps.Logger
	deps.RedirectDelay = h.deps.Checkout.RedirectDelay
	deps.PaymentRoute = h.deps.Checkout.PaymentRoute
	if h.deps.Ticker != nil {
		deps.CountdownOptions = append(deps.CountdownOptions, timer.WithTicker(h.deps.Ticker))
	}
	return services.NewUpsellFlow(v, deps)
}

// Page handles GET /{slug}
func (h *UpsellHandler) Page(w http.ResponseWriter, r *http.Request) {
	v, ok := h.variant(w, r)
	if !ok {
		return
	}
	storage, err := h.storage(r)
	if err != nil {
		http.Error(w, "Session not initialized", http.StatusInternalServerError)
		return
	}

	flow := h.newFlow(v, storage, services.FlowDependencies{})
	flow.Mount(r.Context())
	defer flow.Unmount()
	flow.Restore(r.URL.Query()["selected"])

	h.render(w, v, flow, "", http.StatusOK)
}

// Toggle handles POST /{slug}/toggle: flips one offer and redirects back
// to the page carrying the new selection
func (h *UpsellHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	v, ok := h.variant(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	sel := v.NewSelection()
	for _, id := range r.PostForm["selected"] {
		if !sel.Contains(id) {
			sel.Toggle(id)
		}
	}
	sel.Toggle(r.PostForm.Get("id"))

	http.Redirect(w, r, h.pageURL(v.Slug, sel.IDs()), http.StatusSeeOther)
}

// clientScheduler hands the delay to the browser: the task runs at once
// and the rendered page waits before following the navigation
type clientScheduler struct {
	delay time.Duration
}

func (s *clientScheduler) Schedule(delay time.Duration, task func()) timer.Task {
	s.delay = delay
	task()
	return doneTask{}
}

type doneTask struct{}

func (doneTask) Cancel() bool { return false }

// Pay handles POST /{slug}/pay
func (h *UpsellHandler) Pay(w http.ResponseWriter, r *http.Request) {
	v, ok := h.variant(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	storage, err := h.storage(r)
	if err != nil {
		http.Error(w, "Session not initialized", http.StatusInternalServerError)
		return
	}

	var target string
	scheduler := &clientScheduler{}
	flow := h.newFlow(v, storage, services.FlowDependencies{
		Navigator: services.NavigatorFunc(func(t string) { target = t }),
		Scheduler: scheduler,
	})
	flow.Mount(r.Context())
	defer flow.Unmount()
	flow.Restore(r.PostForm["selected"])

	record, err := h.submit(r.Context(), flow)
	if err != nil {
		message, status := getFailureMessage(v.Copy, err)
		if status >= http.StatusInternalServerError {
			h.deps.Logger.Error("payment initiation failed", zap.String("variant", v.Slug), zap.Error(err))
		}
		h.render(w, v, flow, message, status)
		return
	}

	data := RedirectPage{
		Message:       v.Copy.Redirecting,
		Target:        target,
		DelaySeconds:  strconv.FormatFloat(scheduler.delay.Seconds(), 'f', -1, 64),
		TransactionID: record.TransactionID,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := h.redirect.Execute(w, data); err != nil {
		h.deps.Logger.Error("error rendering template", zap.Error(err))
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

func (h *UpsellHandler) submit(ctx context.Context, flow *services.UpsellFlow) (*models.PaymentSessionRecord, error) {
	sessionID := SessionID(ctx)
	if _, busy := h.inflight.LoadOrStore(sessionID, struct{}{}); busy {
		return nil, services.ErrSubmitInProgress
	}
	defer h.inflight.Delete(sessionID)
	return flow.Submit(ctx)
}

// Countdown handles GET /{slug}/countdown as a server-sent event stream.
// Each connection owns one countdown, stopped when the client goes away.
func (h *UpsellHandler) Countdown(w http.ResponseWriter, r *http.Request) {
	v, ok := h.variant(w, r)
	if !ok {
		return
	}
	if !v.HasCountdown() {
		http.NotFound(w, r)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	storage, err := h.storage(r)
	if err != nil {
		http.Error(w, "Session not initialized", http.StatusInternalServerError)
		return
	}

	ticks := make(chan timer.State, 1)
	flow := h.newFlow(v, storage, services.FlowDependencies{
		CountdownOptions: []timer.Option{timer.OnTick(func(s timer.State) { offerLatest(ticks, s) })},
	})
	flow.Mount(r.Context())
	defer flow.Unmount()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	state, _ := flow.Countdown()
	if err := writeTick(w, state); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case state := <-ticks:
			if err := writeTick(w, state); err != nil {
				return
			}
			flusher.Flush()
			if state.Expired {
				return
			}
		}
	}
}

// offerLatest replaces an unread state so a slow client only sees the newest
func offerLatest(ch chan timer.State, s timer.State) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

type tickEvent struct {
	Remaining int    `json:"remaining"`
	Clock     string `json:"clock"`
	Urgent    bool   `json:"urgent"`
	Expired   bool   `json:"expired"`
}

func writeTick(w http.ResponseWriter, s timer.State) error {
	payload, err := json.Marshal(tickEvent{
		Remaining: s.Remaining,
		Clock:     timer.FormatClock(s.Remaining),
		Urgent:    s.Urgent,
		Expired:   s.Expired,
	})
	if err != nil {
		return err
	}
	event := "tick"
	if s.Expired {
		event = "expired"
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}

func (h *UpsellHandler) pageURL(slug string, selected []string) string {
	u := h.deps.BasePath + "/" + url.PathEscape(slug)
	if len(selected) == 0 {
		return u
	}
	return u + "?" + url.Values{"selected": selected}.Encode()
}

func (h *UpsellHandler) render(w http.ResponseWriter, v *catalog.Variant, flow *services.UpsellFlow, advisory string, status int) {
	selected := flow.SelectedIDs()
	isSelected := make(map[string]bool, len(selected))
	for _, id := range selected {
		isSelected[id] = true
	}

	items := make([]ItemView, 0, v.Catalog().Len())
	for _, it := range v.Catalog().Items() {
		items = append(items, ItemView{
			ID:       it.ID,
			Name:     it.Name,
			Price:    models.FormatPrice(it.Price),
			Image:    it.ImageRef,
			Selected: isSelected[it.ID],
		})
	}

	total := models.FormatPrice(flow.Total())
	toggleable := v.Mode == models.SelectionModeToggle
	accept := v.Copy.AcceptLabel
	if toggleable {
		accept = fmt.Sprintf("%s R$ %s", accept, total)
	}

	base := h.deps.BasePath + "/" + url.PathEscape(v.Slug)
	data := UpsellPage{
		Slug:         v.Slug,
		Heading:      v.Copy.Heading,
		Subtext:      v.Copy.Subtext,
		BuyerName:    flow.Buyer().Name,
		Items:        items,
		Selected:     selected,
		Toggleable:   toggleable,
		Total:        total,
		AcceptLabel:  accept,
		DeclineLabel: v.Copy.DeclineLabel,
		DeclineRoute: h.deps.Checkout.DeclineRoute,
		ToggleURL:    base + "/toggle",
		PayURL:       base + "/pay",
		Advisory:     advisory,
	}
	if state, ok := flow.Countdown(); ok {
		data.Countdown = &CountdownView{
			Clock:     timer.FormatClock(state.Remaining),
			Remaining: state.Remaining,
			Urgent:    state.Urgent,
			Label:     v.Copy.CountdownLabel,
			Urgency:   v.Copy.Urgency,
			StreamURL: base + "/countdown",
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := h.page.Execute(w, data); err != nil {
		h.deps.Logger.Error("error rendering template", zap.Error(err))
	}
}

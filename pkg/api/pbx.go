package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/voxlane/backoffice/pkg/auth"
	"github.com/voxlane/backoffice/pkg/models"
)

// sipSecretLength is the length of generated extension passwords
const sipSecretLength = 20

// ListExtensions lists the caller's extensions without secrets
func (h *Handler) ListExtensions(w http.ResponseWriter, r *http.Request) {
	exts, err := h.store.ListExtensions(r.Context(), customerID(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	out := make([]models.Extension, len(exts))
	for i, e := range exts {
		out[i] = e.Redacted()
	}
	listResponse(w, out, len(out))
}

// CreateExtension adds an extension and returns its SIP secret once
func (h *Handler) CreateExtension(w http.ResponseWriter, r *http.Request) {
	var req models.ExtensionRequest
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	secret, err := auth.GenerateToken()
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	cid := customerID(r)
	now := h.now().UTC()
	ext := &models.Extension{
		ID:         uuid.NewString(),
		CustomerID: cid,
		Secret:     secret[:sipSecretLength],
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	req.Apply(ext)
	if err := h.store.CreateExtension(r.Context(), ext); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.record(r, models.EntityExtension, "create", ext.ID, cid, nil, ext.Redacted())
	h.invalidate(r.Context(), cid)
	writeJSON(w, http.StatusCreated, ext)
}

// GetExtension returns one of the caller's extensions
func (h *Handler) GetExtension(w http.ResponseWriter, r *http.Request) {
	ext, err := h.store.GetExtension(r.Context(), customerID(r), pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ext.Redacted())
}

// UpdateExtension replaces an extension. The SIP secret is kept.
func (h *Handler) UpdateExtension(w http.ResponseWriter, r *http.Request) {
	var req models.ExtensionRequest
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	cid := customerID(r)
	ext, err := h.store.GetExtension(r.Context(), cid, pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	before := ext.Redacted()
	req.Apply(ext)
	ext.UpdatedAt = h.now().UTC()
	if err := h.store.UpdateExtension(r.Context(), ext); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.record(r, models.EntityExtension, "update", ext.ID, cid, before, ext.Redacted())
	writeJSON(w, http.StatusOK, ext.Redacted())
}

// DeleteExtension moves an extension to the trash
func (h *Handler) DeleteExtension(w http.ResponseWriter, r *http.Request) {
	cid := customerID(r)
	ext, err := h.store.GetExtension(r.Context(), cid, pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if err := h.store.DeleteExtension(r.Context(), cid, ext.ID); err != nil {
		h.handleError(w, r, err)
		return
	}
	item := h.discard(r, models.EntityExtension, ext.ID, cid, ext, ext.Redacted())
	h.invalidate(r.Context(), cid)
	writeJSON(w, http.StatusOK, deletedResponse(ext.ID, item))
}

// ListIVRMenus lists the caller's IVR menus
func (h *Handler) ListIVRMenus(w http.ResponseWriter, r *http.Request) {
	menus, err := h.store.ListIVRMenus(r.Context(), customerID(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	listResponse(w, menus, len(menus))
}

// CreateIVRMenu adds an IVR menu
func (h *Handler) CreateIVRMenu(w http.ResponseWriter, r *http.Request) {
	var req models.IVRRequest
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	cid := customerID(r)
	now := h.now().UTC()
	menu := &models.IVRMenu{ID: uuid.NewString(), CustomerID: cid, CreatedAt: now, UpdatedAt: now}
	req.Apply(menu)
	if err := h.store.CreateIVRMenu(r.Context(), menu); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.record(r, models.EntityIVR, "create", menu.ID, cid, nil, menu)
	h.invalidate(r.Context(), cid)
	writeJSON(w, http.StatusCreated, menu)
}

// GetIVRMenu returns one of the caller's IVR menus
func (h *Handler) GetIVRMenu(w http.ResponseWriter, r *http.Request) {
	menu, err := h.store.GetIVRMenu(r.Context(), customerID(r), pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, menu)
}

// UpdateIVRMenu replaces an IVR menu
func (h *Handler) UpdateIVRMenu(w http.ResponseWriter, r *http.Request) {
	var req models.IVRRequest
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	cid := customerID(r)
	menu, err := h.store.GetIVRMenu(r.Context(), cid, pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	before := *menu
	req.Apply(menu)
	menu.UpdatedAt = h.now().UTC()
	if err := h.store.UpdateIVRMenu(r.Context(), menu); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.record(r, models.EntityIVR, "update", menu.ID, cid, before, menu)
	writeJSON(w, http.StatusOK, menu)
}

// DeleteIVRMenu moves an IVR menu to the trash
func (h *Handler) DeleteIVRMenu(w http.ResponseWriter, r *http.Request) {
	cid := customerID(r)
	menu, err := h.store.GetIVRMenu(r.Context(), cid, pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if err := h.store.DeleteIVRMenu(r.Context(), cid, menu.ID); err != nil {
		h.handleError(w, r, err)
		return
	}
	item := h.discard(r, models.EntityIVR, menu.ID, cid, menu)
	h.invalidate(r.Context(), cid)
	writeJSON(w, http.StatusOK, deletedResponse(menu.ID, item))
}

// ListVoiceAgents lists the caller's voice agents
func (h *Handler) ListVoiceAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.store.ListVoiceAgents(r.Context(), customerID(r))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	listResponse(w, agents, len(agents))
}

// CreateVoiceAgent adds a voice agent
func (h *Handler) CreateVoiceAgent(w http.ResponseWriter, r *http.Request) {
	var req models.VoiceAgentRequest
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	cid := customerID(r)
	now := h.now().UTC()
	agent := &models.VoiceAgent{ID: uuid.NewString(), CustomerID: cid, CreatedAt: now, UpdatedAt: now}
	req.Apply(agent)
	if err := h.store.CreateVoiceAgent(r.Context(), agent); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.record(r, models.EntityVoiceAgent, "create", agent.ID, cid, nil, agent)
	h.invalidate(r.Context(), cid)
	writeJSON(w, http.StatusCreated, agent)
}

// GetVoiceAgent returns one of the caller's voice agents
func (h *Handler) GetVoiceAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.store.GetVoiceAgent(r.Context(), customerID(r), pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// UpdateVoiceAgent replaces a voice agent
func (h *Handler) UpdateVoiceAgent(w http.ResponseWriter, r *http.Request) {
	var req models.VoiceAgentRequest
	if err := decode(w, r, &req); err != nil {
		h.handleError(w, r, err)
		return
	}
	cid := customerID(r)
	agent, err := h.store.GetVoiceAgent(r.Context(), cid, pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	before := *agent
	req.Apply(agent)
	agent.UpdatedAt = h.now().UTC()
	if err := h.store.UpdateVoiceAgent(r.Context(), agent); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.record(r, models.EntityVoiceAgent, "update", agent.ID, cid, before, agent)
	writeJSON(w, http.StatusOK, agent)
}

// DeleteVoiceAgent moves a voice agent to the trash
func (h *Handler) DeleteVoiceAgent(w http.ResponseWriter, r *http.Request) {
	cid := customerID(r)
	agent, err := h.store.GetVoiceAgent(r.Context(), cid, pathVar(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if err := h.store.DeleteVoiceAgent(r.Context(), cid, agent.ID); err != nil {
		h.handleError(w, r, err)
		return
	}
	item := h.discard(r, models.EntityVoiceAgent, agent.ID, cid, agent)
	h.invalidate(r.Context(), cid)
	writeJSON(w, http.StatusOK, deletedResponse(agent.ID, item))
}

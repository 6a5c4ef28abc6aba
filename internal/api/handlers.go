package api

import (
	"net/http"
	"strconv"

	"github.com/louieee/chatclone/internal/chat"
)

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in chat.SignupInput
	if !a.decode(w, r, &in) {
		return
	}
	profile, err := a.service.Signup(r.Context(), in)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, profile)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !a.decode(w, r, &in) {
		return
	}
	token, err := a.service.Login(r.Context(), in.Username, in.Password)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	profile, err := a.service.Profile(r.Context(), principal.ID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, profile)
}

func (a *API) handleListRooms(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	rooms, err := a.service.Rooms(r.Context(), principal.ID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, rooms)
}

func (a *API) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var in chat.RoomInput
	if !a.decode(w, r, &in) {
		return
	}
	room, err := a.service.CreateRoom(r.Context(), principal.ID, in)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, room)
}

func (a *API) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	roomID, err := pathID(r, "id")
	if err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid room id"})
		return
	}
	detail, err := a.service.RoomDetail(r.Context(), roomID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	// Rooms are only visible to their members.
	visible := false
	for _, m := range detail.Members {
		if m.ID == principal.ID {
			visible = true
			break
		}
	}
	if !visible {
		a.writeJSON(w, http.StatusNotFound, errorResponse{Detail: "not found"})
		return
	}
	a.writeJSON(w, http.StatusOK, detail)
}

func (a *API) handleUpdateRoom(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	roomID, err := pathID(r, "id")
	if err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid room id"})
		return
	}
	var in chat.RoomInput
	if !a.decode(w, r, &in) {
		return
	}
	detail, err := a.service.UpdateRoom(r.Context(), principal.ID, roomID, in)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, detail)
}

func (a *API) handleRoomAction(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var in struct {
		Chat   int64  `json:"chat"`
		Action string `json:"action"`
	}
	if !a.decode(w, r, &in) {
		return
	}
	var detail *chat.RoomDetail
	var err error
	switch in.Action {
	case "join":
		detail, err = a.service.JoinRoom(r.Context(), principal.ID, in.Chat)
	case "leave":
		detail, err = a.service.LeaveRoom(r.Context(), principal.ID, in.Chat)
	default:
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "action must be join or leave"})
		return
	}
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, detail)
}

// paginatedMessages mirrors the page envelope clients expect.
type paginatedMessages struct {
	Count    int                  `json:"count"`
	Next     *int                 `json:"next"`
	Previous *int                 `json:"previous"`
	Page     int                  `json:"page"`
	Results  []chat.MessageDetail `json:"results"`
}

func (a *API) handleListMessages(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	chatID, err := strconv.ParseInt(r.URL.Query().Get("chat_id"), 10, 64)
	if err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "chat_id is required"})
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	result, err := a.service.ListMessages(r.Context(), principal.ID, chatID, page, pageSize)
	if err != nil {
		a.writeError(w, err)
		return
	}

	resp := paginatedMessages{
		Count:   result.Count,
		Page:    result.Page,
		Results: result.Results,
	}
	if result.Page > 1 {
		prev := result.Page - 1
		resp.Previous = &prev
	}
	if result.Page*result.PageSize < result.Count {
		next := result.Page + 1
		resp.Next = &next
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var in struct {
		Chat int64  `json:"chat"`
		Text string `json:"text"`
	}
	if !a.decode(w, r, &in) {
		return
	}
	if in.Chat == 0 {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "chat is required"})
		return
	}
	detail, err := a.service.CreateMessage(r.Context(), principal.ID, in.Chat, in.Text)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, detail)
}

package handlers

import (
	"bytes"
	"chatcord-backend/internal/authz"
	"chatcord-backend/internal/chat"
	"chatcord-backend/internal/conversation"
	"chatcord-backend/internal/fileHandlers"
	"chatcord-backend/internal/hub"
	"chatcord-backend/internal/jwt"
	"chatcord-backend/internal/keyValue"
	"chatcord-backend/internal/models"
	"chatcord-backend/internal/pagination"
	"chatcord-backend/internal/store"
	"chatcord-backend/internal/store/storetest"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	router   http.Handler
	store    store.Store
	services Services

	owner       models.Profile
	guest       models.Profile
	outside     models.Profile
	server      models.Server
	ownerMember models.Member
	guestMember models.Member
	general     models.Channel
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	nop := zap.NewNop().Sugar()
	jwt.Setup("test-secret", false)
	keyValue.Setup(nop, nil, true)

	s := storetest.New(t)
	registry := hub.NewRegistry(16)
	h := hub.New(registry, hub.NewLocalBroker(registry), nop)
	gate := authz.New(s, nop)
	messages := chat.NewMessageService(s, gate, h, nop)
	engine := pagination.New(s)

	svc := Services{
		Profiles:      chat.NewProfileService(s, nop),
		Servers:       chat.NewServerService(s, gate, h, nop),
		Messages:      messages,
		Conversations: conversation.NewResolver(s, nop),
		Pages:         engine,
		Gate:          gate,
		Sessions: chat.NewSessions(chat.SessionConfig{
			Gate:     gate,
			Engine:   engine,
			Messages: messages,
			Registry: registry,
			Retry:    chat.DefaultRetryPolicy(),
			Sugar:    nop,
		}),
		Uploader: fileHandlers.NewUploader(t.TempDir(), "http://chat.test"),
	}

	cfg := &models.ConfigFile{MessageRateLimit: 1000, UploadMaxBytes: 8 << 20}

	env := &testEnv{
		router:   Setup(cfg, nop, svc),
		store:    s,
		services: svc,
		owner:    storetest.Profile(t, s, "owner"),
		guest:    storetest.Profile(t, s, "guest"),
		outside:  storetest.Profile(t, s, "outside"),
	}
	env.server, env.ownerMember, env.general = storetest.Server(t, s, env.owner, "S")
	env.guestMember = storetest.Member(t, s, env.server.ID, env.guest, models.RoleGuest)
	return env
}

// cookie signs a token for the profile's external id. The cached profile id
// is dropped afterwards since every test has its own database.
func cookie(t *testing.T, externalID string) *http.Cookie {
	t.Helper()

	var claims jwt.IdentityToken
	claims.Subject = externalID

	c, err := jwt.CreateToken(claims, time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = keyValue.Del(context.Background(), profileCacheKey(externalID)) })
	return &c
}

func (e *testEnv) do(t *testing.T, as *models.Profile, method string, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, target, reader)
	if as != nil {
		req.AddCookie(cookie(t, as.ExternalAuthID))
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}

func TestLiveness(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, nil, http.MethodGet, "/api/test", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello world!", rec.Body.String())
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t)
	target := "/api/messages?scopeId=" + id(env.general.ID)

	rec := env.do(t, nil, http.MethodGet, target, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.AddCookie(&http.Cookie{Name: jwt.CookieName, Value: "forged"})
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), jwt.CookieName+"=;")

	c := cookie(t, env.guest.ExternalAuthID)
	req = httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Authorization", "Bearer "+c.Value)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProfileIsCreatedOnFirstAccess(t *testing.T) {
	env := newTestEnv(t)
	externalID := "user_" + uuid.NewString()

	token := jwt.IdentityToken{Username: "newcomer", DisplayName: "New Comer"}
	token.Subject = externalID
	c, err := jwt.CreateToken(token, time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = keyValue.Del(context.Background(), profileCacheKey(externalID)) })

	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/api/profiles/me", nil)
		req.AddCookie(&c)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		profile := decode[models.Profile](t, rec)
		assert.Equal(t, "newcomer", profile.Username)
		assert.Equal(t, "New Comer", profile.DisplayName)
	}

	profiles, err := env.store.ListProfiles(context.Background())
	require.NoError(t, err)
	assert.Len(t, profiles, 4)
}

func TestUpdateOwnProfile(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, &env.guest, http.MethodPatch, "/api/profiles/me", chat.ProfileInput{DisplayName: "Guesty", About: "hi"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, &env.owner, http.MethodGet, "/api/profiles/"+id(env.guest.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	public := decode[map[string]any](t, rec)
	assert.Equal(t, "Guesty", public["displayName"])
	assert.NotContains(t, public, "about")

	rec = env.do(t, &env.guest, http.MethodPatch, "/api/profiles/me", chat.ProfileInput{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessagePagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	scope := models.ChannelScope(env.general.ID)

	for i := range 13 {
		_, err := env.services.Messages.Send(ctx, env.guest.ID, scope, chat.NewMessage{Content: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
	}

	rec := env.do(t, &env.owner, http.MethodGet, "/api/messages?scopeId="+id(env.general.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[models.Page](t, rec)
	require.Len(t, first.Items, 12)
	assert.Equal(t, "m12", first.Items[0].Content)
	require.NotNil(t, first.NextCursor)
	assert.Equal(t, id(first.Items[11].ID), *first.NextCursor)

	rec = env.do(t, &env.owner, http.MethodGet, "/api/messages?scopeId="+id(env.general.ID)+"&cursor="+*first.NextCursor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[models.Page](t, rec)
	require.Len(t, second.Items, 1)
	assert.Equal(t, "m0", second.Items[0].Content)
	assert.Nil(t, second.NextCursor)
}

func TestMessageListErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		as       *models.Profile
		target   string
		expected int
	}{
		{name: "missing scope", as: &env.owner, target: "/api/messages", expected: http.StatusBadRequest},
		{name: "bad cursor", as: &env.owner, target: "/api/messages?scopeId=" + id(env.general.ID) + "&cursor=abc", expected: http.StatusBadRequest},
		{name: "not a member", as: &env.outside, target: "/api/messages?scopeId=" + id(env.general.ID), expected: http.StatusForbidden},
		{name: "unknown channel", as: &env.owner, target: "/api/messages?scopeId=12345", expected: http.StatusForbidden},
		{name: "unknown conversation", as: &env.owner, target: "/api/direct-messages?scopeId=12345", expected: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.as, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.expected, rec.Code, rec.Body.String())
		})
	}
}

func TestMessageLifecycle(t *testing.T) {
	env := newTestEnv(t)
	base := "/api/messages"
	query := "?scopeId=" + id(env.general.ID)

	rec := env.do(t, &env.guest, http.MethodPost, base+query, chat.NewMessage{Content: "hello"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	msg := decode[models.Message](t, rec)
	assert.Equal(t, env.guestMember.ID, msg.MemberID)

	rec = env.do(t, &env.owner, http.MethodPatch, base+"/"+id(msg.ID)+query, map[string]string{"content": "hijacked"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, &env.guest, http.MethodPatch, base+"/"+id(msg.ID)+query, map[string]string{"content": "hello again"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello again", decode[models.Message](t, rec).Content)

	rec = env.do(t, &env.owner, http.MethodDelete, base+"/"+id(msg.ID)+query, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	deleted := decode[models.Message](t, rec)
	assert.True(t, deleted.Deleted)
	assert.Equal(t, models.DeletedMessageContent, deleted.Content)

	rec = env.do(t, &env.outside, http.MethodPost, base+query, chat.NewMessage{Content: "let me in"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServersAndChannels(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, &env.outside, http.MethodPost, "/api/servers", chat.ServerInput{Name: "Mine"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	server := decode[models.Server](t, rec)

	rec = env.do(t, &env.outside, http.MethodGet, "/api/servers/"+id(server.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	details := decode[models.ServerDetails](t, rec)
	require.Len(t, details.Channels, 1)
	general := details.Channels[0]
	assert.Equal(t, models.GeneralChannelName, general.Name)

	rec = env.do(t, &env.outside, http.MethodDelete, "/api/channels/"+id(general.ID), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, &env.outside, http.MethodPost, "/api/servers/"+id(server.ID)+"/channels", chat.ChannelInput{Name: "general"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, &env.outside, http.MethodPost, "/api/servers/"+id(server.ID)+"/channels", chat.ChannelInput{Name: "random"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	random := decode[models.Channel](t, rec)

	rec = env.do(t, &env.guest, http.MethodPost, "/api/servers/invite/"+server.InviteCode, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, &env.guest, http.MethodDelete, "/api/channels/"+id(random.ID), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, &env.guest, http.MethodPost, "/api/servers/"+id(server.ID)+"/join", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, &env.guest, http.MethodDelete, "/api/servers/"+id(server.ID), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, &env.outside, http.MethodDelete, "/api/channels/"+id(random.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, &env.guest, http.MethodGet, "/api/servers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Server](t, rec), 2)
}

func TestMembers(t *testing.T) {
	env := newTestEnv(t)
	target := "/api/servers/" + id(env.server.ID) + "/members/" + id(env.guestMember.ID)

	rec := env.do(t, &env.guest, http.MethodPatch, "/api/servers/"+id(env.server.ID)+"/members/"+id(env.ownerMember.ID), map[string]string{"role": "ADMIN"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, &env.owner, http.MethodPatch, target, map[string]string{"role": "OWNER"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, &env.owner, http.MethodPatch, target, map[string]string{"role": "MODERATOR"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.RoleModerator, decode[models.Member](t, rec).Role)

	rec = env.do(t, &env.owner, http.MethodDelete, target, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, &env.guest, http.MethodGet, "/api/servers/"+id(env.server.ID), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOpenConversation(t *testing.T) {
	env := newTestEnv(t)
	base := "/api/servers/" + id(env.server.ID) + "/conversations/"

	rec := env.do(t, &env.owner, http.MethodPost, base+id(env.guestMember.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fromOwner := decode[models.Conversation](t, rec)

	rec = env.do(t, &env.guest, http.MethodPost, base+id(env.ownerMember.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, fromOwner.ID, decode[models.Conversation](t, rec).ID)

	rec = env.do(t, &env.guest, http.MethodPost, base+id(env.guestMember.ID), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_MEMBER")

	rec = env.do(t, &env.outside, http.MethodPost, base+id(env.guestMember.ID), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, &env.guest, http.MethodPost, "/api/direct-messages?scopeId="+id(fromOwner.ID), chat.NewMessage{Content: "psst"})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

var onePixelPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func (e *testEnv) upload(t *testing.T, kind string, data []byte) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "upload.bin")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload?kind="+kind, &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.AddCookie(cookie(t, e.guest.ExternalAuthID))

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, "image", onePixelPNG)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	url := decode[uploadResult](t, rec).URL
	require.True(t, strings.HasPrefix(url, "http://chat.test/cdn/"), url)

	served := httptest.NewRecorder()
	env.router.ServeHTTP(served, httptest.NewRequest(http.MethodGet, strings.TrimPrefix(url, "http://chat.test"), nil))
	require.Equal(t, http.StatusOK, served.Code)
	assert.Equal(t, onePixelPNG, served.Body.Bytes())

	rec = env.upload(t, "image", []byte("%PDF-1.4\n"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.upload(t, "video", onePixelPNG)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, nil, http.MethodGet, "/api/test", nil)

	rec := env.do(t, nil, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chat_api_request_duration_seconds")
}

func readUntil(t *testing.T, conn *websocket.Conn, frameType string) hub.Event {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var ev hub.Event
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == frameType {
			return ev
		}
	}
}

func TestWebSocketSession(t *testing.T) {
	env := newTestEnv(t)

	server := httptest.NewServer(env.router)
	defer server.Close()

	header := http.Header{}
	header.Add("Cookie", jwt.CookieName+"="+cookie(t, env.guest.ExternalAuthID).Value)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", header)
	require.NoError(t, err)
	defer conn.Close()

	readUntil(t, conn, hub.FrameStatus)

	subscribe, err := hub.NewEvent(hub.FrameSubscribe, "", chat.Frame{Scope: models.ScopeChannel, ID: env.general.ID})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(subscribe))

	var history chat.HistoryFrame
	require.NoError(t, json.Unmarshal(readUntil(t, conn, hub.FrameHistory).Data, &history))
	assert.Equal(t, "initial", history.Mode)
	assert.Empty(t, history.Items)

	rec := env.do(t, &env.owner, http.MethodPost, "/api/messages?scopeId="+id(env.general.ID), chat.NewMessage{Content: "live"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var live models.Message
	require.NoError(t, json.Unmarshal(readUntil(t, conn, hub.MessageCreated).Data, &live))
	assert.Equal(t, "live", live.Content)
}

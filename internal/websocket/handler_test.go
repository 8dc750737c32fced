package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/chorepoints/internal/auth"
	"github.com/dukerupert/chorepoints/internal/authz"
	"github.com/dukerupert/chorepoints/internal/event"
	"github.com/dukerupert/chorepoints/internal/logging"
	"github.com/dukerupert/chorepoints/internal/model"
)

// familyDirectory makes every caller a child of one family.
type familyDirectory struct{ familyID int64 }

func (d familyDirectory) Membership(_ context.Context, userID, familyID int64) (*model.FamilyMembership, error) {
	if familyID != d.familyID {
		return nil, nil
	}
	return &model.FamilyMembership{FamilyID: familyID, UserID: userID, Role: model.RoleChild}, nil
}

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	logger := logging.Discard()
	guard := authz.NewGuard(familyDirectory{familyID: 5}, nil, logger)
	h := HandleWebSocket(hub, guard)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test-User") != "" {
			r = r.WithContext(auth.WithCaller(r.Context(), auth.Caller{UserID: 9}))
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHandleWebSocketStream(t *testing.T) {
	hub := NewHub(logging.Discard())
	srv := newTestServer(t, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?family_id=5"
	conn, _, err := ws.Dial(ctx, url, &ws.DialOptions{
		HTTPHeader: http.Header{"X-Test-User": []string{"9"}},
	})
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(ctx, event.New(event.ChoreApproved, 6, 9, 1, 100))
	hub.Publish(ctx, event.New(event.ChoreApproved, 5, 9, 1, 101))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var got Message
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "chore_approved", got.Type)
	assert.Equal(t, int64(101), got.ID)
	assert.Equal(t, int64(5), got.FamilyID)

	require.NoError(t, conn.Close(ws.StatusNormalClosure, ""))
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHandleWebSocketRejects(t *testing.T) {
	hub := NewHub(logging.Discard())
	srv := newTestServer(t, hub)

	tests := []struct {
		name   string
		query  string
		user   bool
		status int
	}{
		{"anonymous", "?family_id=5", false, http.StatusUnauthorized},
		{"missing family", "", true, http.StatusBadRequest},
		{"other family", "?family_id=6", true, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, srv.URL+tt.query, nil)
			require.NoError(t, err)
			if tt.user {
				req.Header.Set("X-Test-User", "9")
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
	assert.Zero(t, hub.ClientCount())
}

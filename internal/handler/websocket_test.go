package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insider-one/dispatch-service/internal/domain"
)

func TestEventFilter_Matches(t *testing.T) {
	event := &domain.DispatchEvent{
		Channel:  domain.ChannelSMS,
		TenantID: "t1",
		Outcome:  domain.OutcomeSent,
	}

	tests := []struct {
		name   string
		filter *EventFilter
		want   bool
	}{
		{"nil filter", nil, true},
		{"empty filter", &EventFilter{}, true},
		{"channel match", &EventFilter{Channels: []domain.Channel{domain.ChannelEmail, domain.ChannelSMS}}, true},
		{"channel miss", &EventFilter{Channels: []domain.Channel{domain.ChannelEmail}}, false},
		{"tenant match", &EventFilter{TenantIDs: []string{"t1"}}, true},
		{"tenant miss", &EventFilter{TenantIDs: []string{"t2"}}, false},
		{"all lists must match", &EventFilter{
			Channels: []domain.Channel{domain.ChannelSMS},
			Outcomes: []domain.OutcomeKind{domain.OutcomeThrottled},
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(event))
		})
	}
}

func TestFilterFromQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?channel=sms&channel=email&tenant=t1", nil)
	filter := filterFromQuery(r)

	require.NotNil(t, filter)
	assert.Equal(t, []domain.Channel{domain.ChannelSMS, domain.ChannelEmail}, filter.Channels)
	assert.Equal(t, []string{"t1"}, filter.TenantIDs)
	assert.Empty(t, filter.Outcomes)

	assert.Nil(t, filterFromQuery(httptest.NewRequest(http.MethodGet, "/ws", nil)))
}

func TestWebSocketHub_StreamsFilteredEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewWebSocketHub(testLogger())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(NewWebSocketHandler(hub).HandleWebSocket))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?channel=sms"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.BroadcastEvent(&domain.DispatchEvent{Channel: domain.ChannelEmail, TemplateID: "skipped", Outcome: domain.OutcomeSent})
	hub.BroadcastEvent(&domain.DispatchEvent{Channel: domain.ChannelSMS, TemplateID: "otp", Outcome: domain.OutcomeThrottled})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg EventMessage
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, "dispatch", msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, "otp", msg.Event.TemplateID)
	assert.Equal(t, domain.OutcomeThrottled, msg.Event.Outcome)
}

func TestWebSocketHub_Unregisters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewWebSocketHub(testLogger())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(NewWebSocketHandler(hub).HandleWebSocket))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

package monitor

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/HeronMkII/obc/canbus"
	"github.com/HeronMkII/obc/command"
	"github.com/HeronMkII/obc/mem"
	"github.com/HeronMkII/obc/rtc"
	"github.com/HeronMkII/obc/transceiver"
)

type nullPort struct{}

func (nullPort) Read(b []byte) (int, error)  { return 0, io.EOF }
func (nullPort) Write(b []byte) (int, error) { return len(b), nil }
func (nullPort) Close() error                { return nil }
func (nullPort) SetBaudRate(uint) error      { return nil }

type nullBus struct{}

func (nullBus) Send(canbus.Destination, canbus.Message) error { return nil }

func newTestMonitor(t *testing.T) (*Monitor, *httptest.Server) {
	trans := transceiver.New(nullPort{})
	router := canbus.NewRouter(canbus.ProfileStatusByte2, nullBus{})
	store, err := mem.OpenStoreAt(filepath.Join(t.TempDir(), "eeprom.gob"))
	require.NoError(t, err)
	epsHK, payHK, payOpt := mem.DefaultSections(store)
	engine := command.NewEngine(trans, router, rtc.NewSystemClock(),
		mem.NewSimDevice(), store, epsHK, payHK, payOpt)

	m := New(engine)
	r := mux.NewRouter()
	m.InitRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return m, srv
}

func getJSON(t *testing.T, url string, out interface{}) {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestStatusRoute(t *testing.T) {
	_, srv := newTestMonitor(t)

	var status statusResponse
	getJSON(t, srv.URL+"/status", &status)

	require.True(t, status.Idle)
	require.Equal(t, "nop", status.Current)
	require.Equal(t, 0, status.QueueSize)
	require.Len(t, status.AutoDataCol, 3)
	require.EqualValues(t, command.EPSHKAutoPeriod, status.AutoDataCol[0].Period)
}

func TestQueueRouteEmpty(t *testing.T) {
	_, srv := newTestMonitor(t)

	var q queueResponse
	getJSON(t, srv.URL+"/queue", &q)
	require.Empty(t, q.Pending)
}

func TestEventsDrain(t *testing.T) {
	m, srv := newTestMonitor(t)

	m.Publish("engine", "command %s finished", "ping")
	m.Publish("link", "NACK status 0x%02X", 3)

	var events eventsResponse
	getJSON(t, srv.URL+"/events", &events)
	require.Len(t, events.Events, 2)
	require.Equal(t, "engine", events.Events[0].Source)
	require.Equal(t, "command ping finished", events.Events[0].Text)

	// Drained: a second read returns nothing.
	getJSON(t, srv.URL+"/events", &events)
	require.Empty(t, events.Events)
}

func TestEventBufferDropsOldest(t *testing.T) {
	m, srv := newTestMonitor(t)

	for i := 0; i < eventBufferSize+5; i++ {
		m.Publish("engine", "event %d", i)
	}

	var events eventsResponse
	getJSON(t, srv.URL+"/events", &events)
	require.Len(t, events.Events, eventBufferSize)
	require.Equal(t, "event 5", events.Events[0].Text)
}

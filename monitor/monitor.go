// Package monitor exposes the engine over HTTP for bench testing: REST
// routes for status and queue inspection, and a websocket stream of events.
// It never runs in flight.
package monitor

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/HeronMkII/obc/command"
)

const eventBufferSize = 64

// Event is one monitor record: a command finishing, an ACK going out, a
// link fault.
type Event struct {
	Source string `json:"source"`
	Text   string `json:"text"`
	Time   string `json:"time"`
}

// Monitor serves engine state and buffers recent events in a ring that
// drops the oldest entries when full.
type Monitor struct {
	engine *command.Engine
	events *queue.RingBuffer

	socketsLock sync.Mutex
	sockets     map[string]chan Event
	wsID        uint
}

func New(engine *command.Engine) *Monitor {
	return &Monitor{
		engine:  engine,
		events:  queue.NewRingBuffer(eventBufferSize),
		sockets: make(map[string]chan Event),
	}
}

// InitRoutes registers the monitor's REST and websocket routes.
func (m *Monitor) InitRoutes(r *mux.Router) {
	r.HandleFunc("/status", m.statusHandler).Methods("GET")
	r.HandleFunc("/queue", m.queueHandler).Methods("GET")
	r.HandleFunc("/events", m.eventsHandler).Methods("GET")
	r.HandleFunc("/events/websocket", m.websocketHandler).Methods("GET")
}

// Publish records an event and pushes it to every connected websocket.
func (m *Monitor) Publish(source, format string, args ...interface{}) {
	ev := Event{
		Source: source,
		Text:   fmt.Sprintf(format, args...),
		Time:   time.Now().Format(time.RFC3339),
	}

	// Make room by discarding the oldest entry when full.
	if ok, _ := m.events.Offer(ev); !ok {
		m.events.Poll(time.Millisecond)
		m.events.Offer(ev)
	}

	m.socketsLock.Lock()
	for _, out := range m.sockets {
		select {
		case out <- ev:
		default: // slow consumer, drop
		}
	}
	m.socketsLock.Unlock()
}

type statusResponse struct {
	Current       string        `json:"current"`
	Idle          bool          `json:"idle"`
	QueueSize     int           `json:"queueSize"`
	PrevSucceeded bool          `json:"prevSucceeded"`
	AutoDataCol   []autoColResp `json:"autoDataCol"`
}

type autoColResp struct {
	BlockType uint32 `json:"blockType"`
	Enabled   bool   `json:"enabled"`
	Period    uint32 `json:"period"`
	Elapsed   uint32 `json:"elapsed"`
}

func (m *Monitor) statusHandler(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Current:       m.engine.CurrentName(),
		Idle:          m.engine.Idle(),
		QueueSize:     m.engine.QueueSize(),
		PrevSucceeded: m.engine.PrevSucceeded(),
	}
	for blockType := uint32(0); blockType < 3; blockType++ {
		enabled, period, elapsed := m.engine.AutoDataCol(blockType)
		resp.AutoDataCol = append(resp.AutoDataCol, autoColResp{
			BlockType: blockType,
			Enabled:   enabled,
			Period:    period,
			Elapsed:   elapsed,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

type queueEntryResp struct {
	CmdID  uint16 `json:"cmdId"`
	Opcode uint8  `json:"opcode"`
}

type queueResponse struct {
	Pending []queueEntryResp `json:"pending"`
}

func (m *Monitor) queueHandler(w http.ResponseWriter, r *http.Request) {
	resp := queueResponse{Pending: []queueEntryResp{}}
	for i := 0; ; i++ {
		id, opcode, ok := m.engine.PendingAt(i)
		if !ok {
			break
		}
		resp.Pending = append(resp.Pending, queueEntryResp{CmdID: id, Opcode: opcode})
	}
	respondJSON(w, http.StatusOK, resp)
}

type eventsResponse struct {
	Events []Event `json:"events"`
}

// eventsHandler drains the buffered events.
func (m *Monitor) eventsHandler(w http.ResponseWriter, r *http.Request) {
	resp := eventsResponse{Events: []Event{}}
	for n := m.events.Len(); n > 0; n-- {
		item, err := m.events.Poll(time.Millisecond)
		if err != nil {
			break
		}
		resp.Events = append(resp.Events, item.(Event))
	}
	respondJSON(w, http.StatusOK, resp)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (m *Monitor) websocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	m.socketsLock.Lock()
	name := fmt.Sprintf("websocket%d", m.wsID)
	m.wsID++
	out := make(chan Event, 5)
	m.sockets[name] = out
	m.socketsLock.Unlock()

	go func() {
		for ev := range out {
			if err := conn.WriteJSON(ev); err != nil {
				log.Println(name, "disconnecting:", err)
				conn.Close()
				m.socketsLock.Lock()
				delete(m.sockets, name)
				m.socketsLock.Unlock()
				return
			}
		}
	}()
}

func respondJSON(w http.ResponseWriter, httpStatus int, resp interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(resp)
}

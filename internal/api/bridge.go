package api

import (
	"net/http"

	"github.com/nerrad567/devicesync-core/internal/infrastructure/mqtt"
)

// bridgeStatus is the body of GET /bridge and the bridge.status event.
type bridgeStatus struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

func newBridgeStatus(state mqtt.State, err error) bridgeStatus {
	st := bridgeStatus{State: state.String()}
	if err != nil {
		st.Error = err.Error()
	}
	return st
}

// handleBridgeStatus returns the broker connection state.
func (s *Server) handleBridgeStatus(w http.ResponseWriter, _ *http.Request) {
	if s.bridge == nil {
		writeJSON(w, http.StatusOK, bridgeStatus{State: mqtt.StateDisconnected.String()})
		return
	}
	writeJSON(w, http.StatusOK, newBridgeStatus(s.bridge.State()))
}

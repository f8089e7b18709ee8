package domain

// InstanceStateUnknown is reported when the connection-state probe fails.
const InstanceStateUnknown = "unknown"

// InstanceStateOpen is the only state in which an instance can deliver.
const InstanceStateOpen = "open"

// MsgReconnectInstance is recommended whenever the instance is not ready.
const MsgReconnectInstance = "Instância não está conectada: reconecte a instância (escaneie o QR code) e tente novamente."

// Diagnostics summarizes the pre-flight probes and cascade bookkeeping.
type Diagnostics struct {
	ServerStatus        *int     `json:"serverStatus"`
	InstanceState       string   `json:"instanceState"`
	InstanceReady       bool     `json:"instanceReady"`
	DiscoveredAvailable int      `json:"discoveredAvailable"`
	DiscoveredUsed      int      `json:"discoveredUsed"`
	DeadlineExceeded    bool     `json:"deadlineExceeded"`
	Recommendations     []string `json:"recommendations"`
}

// DispatchResult is the terminal output of one dispatch.
type DispatchResult struct {
	Success        bool             `json:"success"`
	Status         int              `json:"status"`
	ResponseTimeMs *int64           `json:"responseTimeMs"`
	RequestID      string           `json:"requestId"`
	Endpoint       *string          `json:"endpoint"`
	Body           any              `json:"body"`
	Attempts       []*AttemptRecord `json:"attempts"`
	Diagnostics    Diagnostics      `json:"diagnostics"`

	// Winner is the attempt the outcome was taken from (nil when nothing was tried).
	Winner *AttemptRecord `json:"-"`
}

// ErrorEnvelope is returned instead of a DispatchResult when the request
// is rejected before the cascade starts.
type ErrorEnvelope struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	RequestID string `json:"requestId"`
}

// NewErrorEnvelope builds a failed envelope.
func NewErrorEnvelope(requestID, msg string) ErrorEnvelope {
	return ErrorEnvelope{Success: false, Error: msg, RequestID: requestID}
}

// SelectOutcome picks the attempt that represents the whole cascade:
// the first successful one, or the last one tried when none succeeded.
func SelectOutcome(attempts []*AttemptRecord) (rec *AttemptRecord, success bool) {
	for _, a := range attempts {
		if a.Succeeded() {
			return a, true
		}
	}
	if len(attempts) == 0 {
		return nil, false
	}
	return attempts[len(attempts)-1], false
}

// Recommendations derives operator hints from the instance state.
func Recommendations(instanceReady bool) []string {
	if instanceReady {
		return []string{}
	}
	return []string{MsgReconnectInstance}
}
